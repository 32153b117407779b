package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	stateDir := fs.String("state-dir", defaultStateDir(), "state directory")
	outDir := fs.String("out-dir", "downloads", "download output directory")
	chrome := fs.String("chrome", "", "Chrome binary path to verify")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	checks := make([]doctorCheck, 0, 3)
	checks = append(checks, chromeCheck(strings.TrimSpace(*chrome)))
	checks = append(checks, dirCheck("directory:state", strings.TrimSpace(*stateDir)))
	checks = append(checks, dirCheck("directory:downloads", strings.TrimSpace(*outDir)))

	res := doctorResult{OK: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			res.OK = false
			break
		}
	}

	if *jsonOut {
		return printJSON(res)
	}
	for _, c := range res.Checks {
		status := "ok"
		if !c.OK {
			status = "fail"
		}
		fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("doctor: all checks passed")
	return nil
}

func chromeCheck(explicit string) doctorCheck {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return doctorCheck{Name: "dependency:chrome", OK: false, Message: fmt.Sprintf("%s: %v", explicit, err)}
		}
		return doctorCheck{Name: "dependency:chrome", OK: true, Message: "found at " + explicit}
	}
	for _, candidate := range chromeCandidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return doctorCheck{Name: "dependency:chrome", OK: true, Message: "found at " + path}
		}
	}
	return doctorCheck{
		Name:    "dependency:chrome",
		OK:      false,
		Message: "no Chrome/Chromium binary on PATH (pass --chrome or use --remote)",
	}
}

func dirCheck(name, dir string) doctorCheck {
	if dir == "" {
		return doctorCheck{Name: name, OK: false, Message: "directory not set"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return doctorCheck{Name: name, OK: false, Message: err.Error()}
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return doctorCheck{Name: name, OK: false, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	probePath := probe.Name()
	_ = probe.Close()
	_ = os.Remove(probePath)
	return doctorCheck{Name: name, OK: true, Message: filepath.Clean(dir) + " is writable"}
}
