package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"imagine-pilot/internal/automation"
	"imagine-pilot/internal/model"
	"imagine-pilot/internal/runstore"
)

func runStart(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	opts := registerRuntimeFlags(fs)
	sf := registerSettingsFlags(fs)
	promptsPath := fs.String("prompts", "", "prompts file, one per line (# comments allowed)")
	mode := fs.String("mode", "video", "generation mode: video|image")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	runMode := model.Mode(strings.ToLower(strings.TrimSpace(*mode)))
	if runMode != model.ModeVideo && runMode != model.ModeImage {
		return fmt.Errorf("--mode must be video or image, got %q", *mode)
	}
	if strings.TrimSpace(*promptsPath) == "" {
		return errors.New("--prompts is required")
	}
	prompts, err := readPromptLines(strings.TrimSpace(*promptsPath))
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("no prompts found in %s", *promptsPath)
	}
	items := make([]model.WorkItem, 0, len(prompts))
	for _, p := range prompts {
		items = append(items, model.WorkItem{Prompt: p})
	}

	return launchRuntime(opts, false, func(ctx context.Context, engine *automation.Engine, store runstore.Store) error {
		base, _, err := store.LoadSettings()
		if err != nil {
			return err
		}
		settings, err := sf.apply(base)
		if err != nil {
			return err
		}
		fmt.Printf("starting %s run: %d prompts, delay %ds\n", runMode, len(items), settings.DelaySeconds)
		return engine.Start(ctx, runMode, items, settings)
	})
}

func runImageToVideo(args []string) error {
	fs := flag.NewFlagSet("img2vid", flag.ContinueOnError)
	opts := registerRuntimeFlags(fs)
	sf := registerSettingsFlags(fs)
	imagesDir := fs.String("images", "", "directory of stills to animate (replaces the stored queue)")
	keepQueue := fs.Bool("keep-queue", false, "reuse the stored image queue instead of --images")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir := strings.TrimSpace(*imagesDir)
	if dir == "" && !*keepQueue {
		return errors.New("--images is required (or pass --keep-queue to reuse the stored queue)")
	}

	return launchRuntime(opts, false, func(ctx context.Context, engine *automation.Engine, store runstore.Store) error {
		if dir != "" {
			images, err := loadImageQueue(dir)
			if err != nil {
				return err
			}
			if err := store.SaveQueue(images); err != nil {
				return err
			}
			fmt.Printf("queued %d images from %s\n", len(images), dir)
		}
		base, _, err := store.LoadSettings()
		if err != nil {
			return err
		}
		settings, err := sf.apply(base)
		if err != nil {
			return err
		}
		return engine.StartImageToVideo(ctx, settings)
	})
}

func runResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	opts := registerRuntimeFlags(fs)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	return launchRuntime(opts, false, func(ctx context.Context, engine *automation.Engine, store runstore.Store) error {
		if err := engine.Resume(ctx); err != nil {
			if errors.Is(err, runstore.ErrNotResumable) {
				return fmt.Errorf("%w (use run to start fresh)", err)
			}
			return err
		}
		fmt.Println("resuming persisted run")
		return nil
	})
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	opts := registerRuntimeFlags(fs)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.NoControl {
		return errors.New("serve needs the control endpoint; drop --no-control")
	}
	fmt.Printf("serving control commands on %s (ctrl-c to quit)\n", opts.ControlAddr)
	return launchRuntime(opts, true, nil)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	stateDir := fs.String("state-dir", defaultStateDir(), "state directory")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := runstore.New(strings.TrimSpace(*stateDir))
	snap, found, err := store.LoadState()
	if err != nil {
		return err
	}
	if !found {
		if *jsonOut {
			return printJSON(map[string]any{"phase": model.PhaseIdle})
		}
		fmt.Println("no persisted run")
		return nil
	}
	if *jsonOut {
		return printJSON(snap)
	}

	fmt.Printf("run: %s\n", snap.RunID)
	fmt.Printf("mode: %s\n", snap.Mode)
	fmt.Printf("phase: %s\n", snap.Phase)
	cursor := snap.Cursor
	if snap.Mode == model.ModeImageToVideo {
		cursor = snap.CurrentImageIndex
	}
	fmt.Printf("progress: %d/%d\n", cursor, len(snap.Items))
	fmt.Printf("downloaded: %d\n", len(snap.Downloaded))
	if resumable := runstore.ValidateResumable(snap); resumable == nil {
		fmt.Println("resumable: yes (imagine-pilot resume)")
	} else {
		fmt.Printf("resumable: no (%v)\n", resumable)
	}
	return nil
}

func runStop(args []string) error {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	addr := fs.String("control-addr", "127.0.0.1:17713", "control endpoint address")
	token := fs.String("control-token", "", "control endpoint token")
	reset := fs.Bool("reset-queue", false, "also clear the image queue and persisted state")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *reset && !*yes {
		ok, err := promptConfirm("clear the image queue and persisted run state? [y/N] ")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()
	client, err := dialControl(ctx, *addr, *token)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := client.Call(ctx, "stopAutomation", nil); err != nil {
		return fmt.Errorf("stop run: %w", err)
	}
	fmt.Println("run stopped")
	if *reset {
		if _, err := client.Call(ctx, "resetQueue", nil); err != nil {
			return fmt.Errorf("reset queue: %w", err)
		}
		fmt.Println("queue and state cleared")
	}
	return nil
}
