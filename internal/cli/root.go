// Package cli is the flag-based command dispatcher for imagine-pilot.
package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runStart(args[1:])
	case "img2vid":
		return runImageToVideo(args[1:])
	case "resume":
		return runResume(args[1:])
	case "serve":
		return runServe(args[1:])
	case "status":
		return runStatus(args[1:])
	case "stop":
		return runStop(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("imagine-pilot: drives a Chrome tab through bulk generative image/video runs")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  imagine-pilot run --prompts prompts.txt --mode video")
	fmt.Println("  imagine-pilot img2vid --images ./stills")
	fmt.Println("  imagine-pilot status")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       submit prompts from a file (video or image mode)")
	fmt.Println("  img2vid   animate a directory of still images")
	fmt.Println("  resume    continue the persisted run after a restart")
	fmt.Println("  serve     attach to Chrome and wait for control-endpoint commands")
	fmt.Println("  status    show the current or persisted run")
	fmt.Println("  stop      stop a run via the control endpoint")
	fmt.Println("  settings  show/update persisted run defaults (interactive editor: settings edit)")
	fmt.Println("  doctor    run Chrome and filesystem preflight checks")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - The control endpoint listens on loopback only; share --control-token with your UI")
}
