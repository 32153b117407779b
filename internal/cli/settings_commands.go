package cli

import (
	"flag"
	"fmt"
	"strings"

	"imagine-pilot/internal/runstore"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "edit":
		return runSettingsEdit(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func printSettingsUsage() {
	fmt.Println("settings: persisted run defaults")
	fmt.Println()
	fmt.Println("  settings show   print the stored defaults")
	fmt.Println("  settings set    update stored defaults from flags")
	fmt.Println("  settings edit   interactive editor")
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	stateDir := fs.String("state-dir", defaultStateDir(), "state directory")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := runstore.New(strings.TrimSpace(*stateDir))
	settings, stored, err := store.LoadSettings()
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"path":     store.SettingsPath(),
			"stored":   stored,
			"settings": settings,
		})
	}

	if stored {
		fmt.Printf("settings: %s\n", store.SettingsPath())
	} else {
		fmt.Println("settings: (defaults, nothing stored yet)")
	}
	fmt.Printf("delay_seconds: %d\n", settings.DelaySeconds)
	if settings.RandomizeRatio {
		fmt.Printf("aspect_ratio: random from [%s]\n", strings.Join(settings.AspectRatios, ", "))
	} else {
		fmt.Printf("aspect_ratio: %s\n", settings.FixedRatio)
	}
	fmt.Printf("upscale_videos: %s\n", yesNo(settings.UpscaleVideos))
	fmt.Printf("auto_download: %s\n", yesNo(settings.AutoDownload))
	fmt.Printf("download_all_images: %s (up to %d per prompt)\n", yesNo(settings.DownloadAllImages), settings.DownloadMultiCount)
	fmt.Printf("save_prompt_text: %s\n", yesNo(settings.SavePromptText))
	if settings.DownloadSubfolder != "" {
		fmt.Printf("download_subfolder: %s\n", settings.DownloadSubfolder)
	}
	if settings.BreakEnabled {
		fmt.Printf("breaks: every %d prompts, %d-%d min\n", settings.BreakPrompts, settings.BreakMinutesMin, settings.BreakMinutesMax)
	} else {
		fmt.Println("breaks: off")
	}
	fmt.Printf("video_duration: %s\n", settings.VideoDuration)
	return nil
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	stateDir := fs.String("state-dir", defaultStateDir(), "state directory")
	sf := registerSettingsFlags(fs)
	autoDownload := fs.String("auto-download", "", "download detected media automatically: yes|no")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := runstore.New(strings.TrimSpace(*stateDir))
	base, _, err := store.LoadSettings()
	if err != nil {
		return err
	}
	settings, err := sf.apply(base)
	if err != nil {
		return err
	}
	if v, set, err := parseYesNo("auto-download", *autoDownload); err != nil {
		return err
	} else if set {
		settings.AutoDownload = v
	}
	if err := store.SaveSettings(settings); err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{"path": store.SettingsPath(), "settings": settings})
	}
	fmt.Printf("updated settings in %s\n", store.SettingsPath())
	return nil
}
