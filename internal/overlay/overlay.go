// Package overlay renders a small status panel inside the page so a
// watched browser shows what the driver is doing. It is presentation
// only: nothing reads back from it.
package overlay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"imagine-pilot/internal/browser"
)

type PageEvaluator interface {
	Eval(ctx context.Context, js string, out any) error
}

// Status is one panel refresh.
type Status struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Elapsed string `json:"elapsed"`
	Badge   string `json:"badge"`
}

type Overlay struct {
	page    PageEvaluator
	enabled bool
	started time.Time
	log     zerolog.Logger
}

func New(page PageEvaluator, enabled bool, log zerolog.Logger) *Overlay {
	return &Overlay{page: page, enabled: enabled, started: time.Now(), log: log}
}

const ensureAndUpdateBody = `
	let panel = document.getElementById('pilot-overlay');
	if (!panel) {
		panel = document.createElement('div');
		panel.id = 'pilot-overlay';
		Object.assign(panel.style, {
			position: 'fixed',
			bottom: '20px',
			right: '20px',
			width: '320px',
			maxWidth: '90vw',
			zIndex: '999999',
			background: 'linear-gradient(180deg, rgba(15, 23, 42, 0.95), rgba(15, 23, 42, 0.85))',
			border: '1px solid rgba(255, 255, 255, 0.08)',
			borderRadius: '12px',
			padding: '12px 14px',
			color: '#e5e7eb',
			fontFamily: "'Segoe UI', sans-serif",
			fontSize: '13px',
			lineHeight: '1.5',
			boxShadow: '0 20px 40px rgba(0, 0, 0, 0.35)'
		});
		panel.innerHTML =
			'<div style="display:flex;justify-content:space-between;align-items:center;margin-bottom:6px;">' +
			'<strong id="pilot-overlay-title">Imagine Pilot</strong>' +
			'<span id="pilot-overlay-badge" style="font-size:11px;padding:2px 8px;border-radius:999px;background:rgba(56,189,248,0.2);"></span>' +
			'</div>' +
			'<div id="pilot-overlay-message"></div>' +
			'<div id="pilot-overlay-detail" style="opacity:0.7;white-space:nowrap;overflow:hidden;text-overflow:ellipsis;"></div>' +
			'<div id="pilot-overlay-progress" style="margin-top:6px;opacity:0.8;font-size:12px;"></div>';
		document.body.appendChild(panel);
	}

	document.getElementById('pilot-overlay-message').textContent = ARGS.message;
	document.getElementById('pilot-overlay-detail').textContent = ARGS.detail;
	document.getElementById('pilot-overlay-badge').textContent = ARGS.badge;
	const progress = ARGS.total > 0
		? ARGS.index + '/' + ARGS.total + (ARGS.elapsed ? ' · ' + ARGS.elapsed : '')
		: (ARGS.elapsed || '');
	document.getElementById('pilot-overlay-progress').textContent = progress;
	return true;
`

// Update ensures the panel exists (the page may have reloaded since
// the last call) and refreshes its contents. Failures are logged and
// swallowed: the panel must never break the automation.
func (o *Overlay) Update(ctx context.Context, status Status) {
	if !o.enabled {
		return
	}
	if status.Elapsed == "" {
		status.Elapsed = time.Since(o.started).Round(time.Second).String()
	}
	if err := o.page.Eval(ctx, browser.Script(ensureAndUpdateBody, status), new(bool)); err != nil {
		o.log.Debug().Err(err).Msg("overlay update failed")
	}
}

// Announce is the shorthand for a message-only refresh.
func (o *Overlay) Announce(ctx context.Context, badge, format string, args ...any) {
	o.Update(ctx, Status{Message: fmt.Sprintf(format, args...), Badge: badge})
}

func (o *Overlay) Remove(ctx context.Context) {
	if !o.enabled {
		return
	}
	err := o.page.Eval(ctx, browser.Script(`
		const panel = document.getElementById('pilot-overlay');
		if (panel) panel.remove();
		return true;
	`, nil), new(bool))
	if err != nil {
		o.log.Debug().Err(err).Msg("overlay removal failed")
	}
}
