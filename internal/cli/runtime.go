package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"imagine-pilot/internal/automation"
	"imagine-pilot/internal/browser"
	"imagine-pilot/internal/capture"
	"imagine-pilot/internal/logs"
	"imagine-pilot/internal/model"
	"imagine-pilot/internal/observer"
	"imagine-pilot/internal/overlay"
	"imagine-pilot/internal/relay"
	"imagine-pilot/internal/runstore"
)

type runtimeOptions struct {
	StateDir     string
	OutDir       string
	ComposerURL  string
	ChromePath   string
	RemoteURL    string
	UserDataDir  string
	Headless     bool
	NoOverlay    bool
	NoControl    bool
	ControlAddr  string
	ControlToken string
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "state"
	}
	return filepath.Join(home, ".imagine-pilot")
}

func registerRuntimeFlags(fs *flag.FlagSet) *runtimeOptions {
	opts := &runtimeOptions{}
	fs.StringVar(&opts.StateDir, "state-dir", defaultStateDir(), "state directory (run blob, queue, settings)")
	fs.StringVar(&opts.OutDir, "out-dir", "downloads", "download output directory")
	fs.StringVar(&opts.ComposerURL, "composer-url", browser.DefaultComposerURL, "composer page URL")
	fs.StringVar(&opts.ChromePath, "chrome", "", "Chrome binary path (default: let chromedp find one)")
	fs.StringVar(&opts.RemoteURL, "remote", "", "attach to a running Chrome devtools websocket URL instead of launching")
	fs.StringVar(&opts.UserDataDir, "user-data-dir", "", "Chrome profile directory (keeps the site login)")
	fs.BoolVar(&opts.Headless, "headless", false, "run Chrome headless")
	fs.BoolVar(&opts.NoOverlay, "no-overlay", false, "do not inject the in-page status panel")
	fs.BoolVar(&opts.NoControl, "no-control", false, "do not open the control endpoint")
	fs.StringVar(&opts.ControlAddr, "control-addr", "127.0.0.1:17713", "control endpoint listen address (loopback only)")
	fs.StringVar(&opts.ControlToken, "control-token", "", "shared token control clients must present")
	return opts
}

// launchRuntime wires the whole driver together and blocks until the run
// finishes or a signal arrives. When serveOnly is set it keeps serving the
// control endpoint after runs complete.
func launchRuntime(opts *runtimeOptions, serveOnly bool, start func(ctx context.Context, engine *automation.Engine, store runstore.Store) error) error {
	logger := logs.Setup(logs.FromEnv())

	lock, err := runstore.AcquireStateLock(opts.StateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn().Err(err).Msg("release state lock")
		}
	}()
	store := runstore.New(opts.StateDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := browser.NewSession(ctx, browser.Config{
		ComposerURL: opts.ComposerURL,
		RemoteURL:   opts.RemoteURL,
		ChromePath:  opts.ChromePath,
		UserDataDir: opts.UserDataDir,
		Headless:    opts.Headless,
	}, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	obs, err := observer.Attach(session.Ctx(), logger)
	if err != nil {
		return err
	}

	panel := overlay.New(session, !opts.NoOverlay, logger)
	reporter := automation.NewRelayReporter(nil, panel, logger)
	sink := &automation.MirroredSink{Inner: capture.NewDiskSink(opts.OutDir, logger)}

	factory := func(run *model.Run, persist func()) automation.Capturer {
		return capture.NewDispatcher(run, sink, session, persist, logger)
	}
	engine := automation.NewEngine(session, store, factory, reporter, logger)

	var server *relay.Server
	if !opts.NoControl {
		server = relay.NewServer(relay.Config{
			ListenAddr: opts.ControlAddr,
			Token:      opts.ControlToken,
		}, automation.NewCommands(engine, logger), logger)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			if err := server.Close(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("close control endpoint")
			}
		}()
		reporter.SetServer(server)
		sink.Server = server
		logger.Info().Str("addr", server.Addr()).Msg("control endpoint listening")
	}

	go engine.Pump(ctx, obs.Events())

	if start != nil {
		if err := start(ctx, engine, store); err != nil {
			return err
		}
	}

	done := engine.Done()
	if serveOnly {
		done = nil
	}
	select {
	case <-ctx.Done():
		if err := engine.Stop(context.Background()); err != nil && !errors.Is(err, automation.ErrNotRunning) {
			logger.Warn().Err(err).Msg("stop run on shutdown")
		}
		fmt.Println("interrupted, run state preserved for resume where applicable")
	case <-done:
	}
	panel.Remove(context.Background())
	return nil
}

// mergeSettings layers flag overrides on the persisted defaults. Sentinel
// values (-1, empty) keep the stored value, mirroring settings set.
type settingsFlags struct {
	Delay        int
	Ratios       string
	FixedRatio   string
	Upscale      string
	NoDownload   bool
	DownloadAll  string
	MultiCount   int
	SavePrompt   string
	Subfolder    string
	Breaks       string
	BreakPrompts int
	BreakMin     int
	BreakMax     int
	Duration     string
}

func registerSettingsFlags(fs *flag.FlagSet) *settingsFlags {
	sf := &settingsFlags{}
	fs.IntVar(&sf.Delay, "delay", -1, "seconds between items (-1 keeps stored default)")
	fs.StringVar(&sf.Ratios, "ratios", "", "comma-separated aspect ratios drawn at random per prompt")
	fs.StringVar(&sf.FixedRatio, "ratio", "", "fixed aspect ratio (empty keeps stored default)")
	fs.StringVar(&sf.Upscale, "upscale", "", "upscale finished videos to HD: yes|no (empty keeps stored default)")
	fs.BoolVar(&sf.NoDownload, "no-download", false, "detect media but do not download")
	fs.StringVar(&sf.DownloadAll, "download-all", "", "save the whole gallery per prompt: yes|no")
	fs.IntVar(&sf.MultiCount, "multi-count", -1, "gallery images saved per prompt with --download-all (-1 keeps stored default)")
	fs.StringVar(&sf.SavePrompt, "save-prompt-txt", "", "write the prompt text next to each file: yes|no")
	fs.StringVar(&sf.Subfolder, "subfolder", "", "subfolder under the output dir")
	fs.StringVar(&sf.Breaks, "breaks", "", "pause periodically during long runs: yes|no")
	fs.IntVar(&sf.BreakPrompts, "break-prompts", -1, "prompts between breaks (-1 keeps stored default)")
	fs.IntVar(&sf.BreakMin, "break-min", -1, "minimum break length in minutes (-1 keeps stored default)")
	fs.IntVar(&sf.BreakMax, "break-max", -1, "maximum break length in minutes (-1 keeps stored default)")
	fs.StringVar(&sf.Duration, "duration", "", "video duration: 5s|6s|10s (empty keeps stored default)")
	return sf
}

func parseYesNo(flagName, raw string) (value, set bool, err error) {
	switch raw {
	case "":
		return false, false, nil
	case "yes", "y", "true", "1", "on":
		return true, true, nil
	case "no", "n", "false", "0", "off":
		return false, true, nil
	default:
		return false, false, fmt.Errorf("--%s must be yes or no", flagName)
	}
}

func (sf *settingsFlags) apply(base model.Settings) (model.Settings, error) {
	out := base
	if sf.Delay != -1 {
		if sf.Delay <= 0 {
			return model.Settings{}, errors.New("--delay must be >= 1")
		}
		out.DelaySeconds = sf.Delay
	}
	if ratios := parseRatioList(sf.Ratios); len(ratios) > 0 {
		out.AspectRatios = ratios
		out.RandomizeRatio = true
	}
	if sf.FixedRatio != "" {
		out.FixedRatio = sf.FixedRatio
		out.RandomizeRatio = false
	}
	if v, set, err := parseYesNo("upscale", sf.Upscale); err != nil {
		return model.Settings{}, err
	} else if set {
		out.UpscaleVideos = v
	}
	if sf.NoDownload {
		out.AutoDownload = false
	}
	if v, set, err := parseYesNo("download-all", sf.DownloadAll); err != nil {
		return model.Settings{}, err
	} else if set {
		out.DownloadAllImages = v
	}
	if sf.MultiCount != -1 {
		if sf.MultiCount <= 0 {
			return model.Settings{}, errors.New("--multi-count must be >= 1")
		}
		out.DownloadMultiCount = sf.MultiCount
	}
	if v, set, err := parseYesNo("save-prompt-txt", sf.SavePrompt); err != nil {
		return model.Settings{}, err
	} else if set {
		out.SavePromptText = v
	}
	if sf.Subfolder != "" {
		out.DownloadSubfolder = sf.Subfolder
	}
	if v, set, err := parseYesNo("breaks", sf.Breaks); err != nil {
		return model.Settings{}, err
	} else if set {
		out.BreakEnabled = v
	}
	if sf.BreakPrompts != -1 {
		if sf.BreakPrompts <= 0 {
			return model.Settings{}, errors.New("--break-prompts must be >= 1")
		}
		out.BreakPrompts = sf.BreakPrompts
	}
	if sf.BreakMin != -1 {
		if sf.BreakMin <= 0 {
			return model.Settings{}, errors.New("--break-min must be >= 1")
		}
		out.BreakMinutesMin = sf.BreakMin
	}
	if sf.BreakMax != -1 {
		if sf.BreakMax <= 0 {
			return model.Settings{}, errors.New("--break-max must be >= 1")
		}
		out.BreakMinutesMax = sf.BreakMax
	}
	if sf.Duration != "" {
		out.VideoDuration = sf.Duration
	}
	return out.Normalized(), nil
}
