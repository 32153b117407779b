package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const DefaultComposerURL = "https://grok.com/imagine"

var ErrNotConnected = errors.New("browser session is not connected")

type Config struct {
	// ComposerURL is the generation page the driver works on.
	ComposerURL string
	// RemoteURL attaches to an already running browser (DevTools ws://
	// endpoint). When empty a local browser is launched.
	RemoteURL   string
	ChromePath  string
	UserDataDir string
	Headless    bool
	// AttachAttempts bounds the connection retries on startup.
	AttachAttempts int
}

func (c Config) normalized() Config {
	out := c
	if strings.TrimSpace(out.ComposerURL) == "" {
		out.ComposerURL = DefaultComposerURL
	}
	if out.AttachAttempts <= 0 {
		out.AttachAttempts = 3
	}
	return out
}

// Session owns one browser tab on the generation site. All page access
// from the other packages funnels through Eval/EvalAsync so the
// interaction surface stays in one place.
type Session struct {
	cfg     Config
	ctx     context.Context
	cancels []context.CancelFunc
	log     zerolog.Logger
}

// NewSession launches (or attaches to) a browser and verifies the tab
// responds. Attachment is retried with an attempt-scaled backoff before
// giving up.
func NewSession(parent context.Context, cfg Config, log zerolog.Logger) (*Session, error) {
	cfg = cfg.normalized()

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if strings.TrimSpace(cfg.RemoteURL) != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(1440, 900),
		)
		if strings.TrimSpace(cfg.ChromePath) != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
		}
		if strings.TrimSpace(cfg.UserDataDir) != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, opts...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:     cfg,
		ctx:     tabCtx,
		cancels: []context.CancelFunc{tabCancel, allocCancel},
		log:     log,
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.AttachAttempts; attempt++ {
		if lastErr = chromedp.Run(tabCtx); lastErr == nil {
			break
		}
		s.log.Warn().Err(lastErr).Int("attempt", attempt).Msg("browser attach failed")
		if attempt < cfg.AttachAttempts {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-parent.Done():
				s.Close()
				return nil, parent.Err()
			}
		}
	}
	if lastErr != nil {
		s.Close()
		return nil, fmt.Errorf("attach to browser: %w", lastErr)
	}

	s.log.Info().Str("composer_url", cfg.ComposerURL).Msg("browser session ready")
	return s, nil
}

// Ctx exposes the tab context for CDP-level wiring (bindings, target
// listeners). Everything else should use the typed methods.
func (s *Session) Ctx() context.Context { return s.ctx }

func (s *Session) ComposerURL() string { return s.cfg.ComposerURL }

func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.ctx == nil {
		return ErrNotConnected
	}
	tctx := s.ctx
	if ctx != nil {
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			tctx, cancel = context.WithDeadline(tctx, deadline)
			defer cancel()
		}
	}
	return chromedp.Run(tctx, actions...)
}

// Eval runs a synchronous page expression and unmarshals its result
// into out. Snippets must evaluate to a JSON-serializable value.
func (s *Session) Eval(ctx context.Context, js string, out any) error {
	return s.run(ctx, chromedp.Evaluate(js, out))
}

// EvalAsync runs an async page expression (a promise) and waits for it
// to settle before unmarshaling the resolved value.
func (s *Session) EvalAsync(ctx context.Context, js string, out any) error {
	return s.run(ctx, chromedp.Evaluate(js, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// NavigateComposer drives the tab back to the composer page.
func (s *Session) NavigateComposer(ctx context.Context) error {
	return s.Navigate(ctx, s.cfg.ComposerURL)
}

// PageContext describes where on the site the tab currently is.
type PageContext struct {
	URL          string `json:"url"`
	Path         string `json:"path"`
	OnComposer   bool   `json:"-"`
	OnResultPage bool   `json:"-"`
}

func (s *Session) PageContext(ctx context.Context) (PageContext, error) {
	var pc PageContext
	err := s.Eval(ctx, `({url: location.href, path: location.pathname})`, &pc)
	if err != nil {
		return PageContext{}, fmt.Errorf("read page location: %w", err)
	}
	pc.OnResultPage = strings.Contains(pc.Path, "/imagine/post/")
	pc.OnComposer = !pc.OnResultPage && strings.Contains(pc.URL, "/imagine")
	return pc, nil
}
