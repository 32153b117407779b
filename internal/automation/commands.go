package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"imagine-pilot/internal/model"
)

// Commands adapts the engine to the relay's command handler contract.
type Commands struct {
	engine *Engine
	log    zerolog.Logger
}

func NewCommands(engine *Engine, log zerolog.Logger) *Commands {
	return &Commands{engine: engine, log: log.With().Str("component", "commands").Logger()}
}

type startParams struct {
	Prompts  []string       `json:"prompts"`
	Mode     string         `json:"mode"`
	Settings model.Settings `json:"settings"`
}

type startImageParams struct {
	Settings model.Settings `json:"settings"`
}

func (c *Commands) HandleCommand(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "ping":
		snap, found := c.engine.Status()
		resp := map[string]any{"ok": true, "phase": model.PhaseIdle}
		if found {
			resp["phase"] = snap.Phase
		}
		return resp, nil
	case "startAutomation":
		return c.startAutomation(ctx, params)
	case "startImageToVideo":
		return c.startImageToVideo(ctx, params)
	case "stopAutomation":
		if err := c.engine.Stop(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"stopped": true}, nil
	case "resetQueue":
		if err := c.engine.ResetQueue(); err != nil {
			return nil, err
		}
		return map[string]any{"reset": true}, nil
	case "clearState":
		if err := c.engine.ClearState(); err != nil {
			return nil, err
		}
		return map[string]any{"cleared": true}, nil
	case "status":
		snap, found := c.engine.Status()
		if !found {
			return map[string]any{"phase": model.PhaseIdle}, nil
		}
		return snap, nil
	default:
		return nil, fmt.Errorf("unknown command %q", method)
	}
}

func (c *Commands) startAutomation(ctx context.Context, params json.RawMessage) (any, error) {
	var p startParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("decode start params: %w", err)
	}
	items := make([]model.WorkItem, 0, len(p.Prompts))
	for _, prompt := range p.Prompts {
		prompt = strings.TrimSpace(prompt)
		if prompt != "" {
			items = append(items, model.WorkItem{Prompt: prompt})
		}
	}
	if len(items) == 0 {
		return nil, ErrNoWorkItems
	}
	mode := model.Mode(p.Mode)
	if p.Mode == "" {
		mode = model.ModeVideo
	}
	if err := c.engine.Start(ctx, mode, items, p.Settings); err != nil {
		return nil, err
	}
	c.log.Info().Int("items", len(items)).Str("mode", string(mode)).
		Msg("run started over the wire")
	return map[string]any{"started": true, "items": len(items)}, nil
}

func (c *Commands) startImageToVideo(ctx context.Context, params json.RawMessage) (any, error) {
	var p startImageParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("decode start params: %w", err)
		}
	}
	if err := c.engine.StartImageToVideo(ctx, p.Settings); err != nil {
		return nil, err
	}
	c.log.Info().Msg("image-to-video run started over the wire")
	return map[string]any{"started": true}, nil
}
