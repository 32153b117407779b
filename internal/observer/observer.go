// Package observer injects a MutationObserver into the generation page
// and streams its reports back over a CDP binding. The page side only
// detects; all claiming and dispatch decisions stay in the driver.
package observer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"imagine-pilot/internal/browser"
)

const bindingName = "__pilotMediaEvent"

const (
	KindVideo    = "video"
	KindMutation = "mutation"
)

// Event is one report from the injected observer.
type Event struct {
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
}

// Observer owns the binding and the event stream for one tab.
type Observer struct {
	events chan Event
	log    zerolog.Logger
}

// Attach registers the binding, arranges for the observer script to be
// (re)injected on every document, and installs it into the current one.
// Injection on new documents is what keeps detection alive across the
// redirects and reloads the automation performs.
func Attach(tabCtx context.Context, log zerolog.Logger) (*Observer, error) {
	o := &Observer{
		events: make(chan Event, 64),
		log:    log,
	}

	source := fmt.Sprintf(pageScript, bindingName, bindingName, browser.VideoURLMarker)

	err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := runtime.AddBinding(bindingName).Do(ctx); err != nil {
				return fmt.Errorf("add media binding: %w", err)
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(source).Do(ctx); err != nil {
				return fmt.Errorf("register observer script: %w", err)
			}
			return nil
		}),
		chromedp.Evaluate(source, nil),
	)
	if err != nil {
		return nil, err
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != bindingName {
			return
		}
		var event Event
		if err := json.Unmarshal([]byte(called.Payload), &event); err != nil {
			o.log.Warn().Err(err).Str("payload", called.Payload).Msg("malformed observer payload")
			return
		}
		select {
		case o.events <- event:
		default:
			// drop rather than stall the CDP event loop
			o.log.Warn().Str("kind", event.Kind).Msg("observer event queue full, dropping")
		}
	})

	log.Debug().Str("binding", bindingName).Msg("mutation observer attached")
	return o, nil
}

// Events is the stream of page reports. It is never closed; consumers
// stop by abandoning it when the tab context ends.
func (o *Observer) Events() <-chan Event {
	return o.events
}
