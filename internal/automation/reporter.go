package automation

import (
	"context"

	"github.com/rs/zerolog"

	"imagine-pilot/internal/capture"
	"imagine-pilot/internal/overlay"
	"imagine-pilot/internal/relay"
)

// RelayReporter fans engine status out to relay clients and the in-page
// overlay. Either sink may be nil.
type RelayReporter struct {
	server  *relay.Server
	overlay *overlay.Overlay
	log     zerolog.Logger
}

func NewRelayReporter(server *relay.Server, panel *overlay.Overlay, log zerolog.Logger) *RelayReporter {
	return &RelayReporter{server: server, overlay: panel, log: log}
}

// SetServer binds the relay after construction. The relay server takes the
// engine's command handler at construction, so the two are wired in this
// order; call it before any run starts.
func (r *RelayReporter) SetServer(server *relay.Server) { r.server = server }

func (r *RelayReporter) Status(ctx context.Context, update StatusUpdate) {
	if r.server != nil {
		r.server.Notify("updateStatus", update)
	}
	if r.overlay != nil {
		r.overlay.Update(ctx, overlay.Status{
			Message: update.Message,
			Detail:  update.Progress,
			Index:   update.Index,
			Total:   update.Total,
			Elapsed: update.Elapsed,
			Badge:   update.Type,
		})
	}
	r.log.Info().Str("type", update.Type).Str("progress", update.Progress).
		Msg(update.Message)
}

func (r *RelayReporter) Completed(ctx context.Context, runID string, downloaded, totalItems int) {
	if r.server != nil {
		r.server.Notify("automationComplete", map[string]any{
			"run_id":     runID,
			"downloaded": downloaded,
			"totalItems": totalItems,
		})
	}
	if r.overlay != nil {
		r.overlay.Announce(ctx, "done", "All items submitted (%d downloads)", downloaded)
		r.overlay.Remove(ctx)
	}
}

func (r *RelayReporter) Failed(ctx context.Context, runID string, err error) {
	if r.server != nil {
		r.server.Notify("automationError", map[string]any{
			"run_id": runID,
			"error":  err.Error(),
		})
	}
	if r.overlay != nil {
		r.overlay.Announce(ctx, "error", "Automation failed: %v", err)
	}
}

// Notifier is the slice of the relay server the mirrored sink needs.
type Notifier interface {
	Notify(method string, params any)
}

// MirroredSink wraps a download sink and mirrors each request to relay
// clients as downloadImage events.
type MirroredSink struct {
	Inner  capture.Sink
	Server Notifier
}

func (m *MirroredSink) Download(req capture.Request) error {
	if m.Server != nil {
		m.Server.Notify("downloadImage", map[string]any{
			"url":    req.URL,
			"prompt": req.PromptText,
			"type":   req.Kind,
		})
	}
	return m.Inner.Download(req)
}
