package capture

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"imagine-pilot/internal/browser"
	"imagine-pilot/internal/model"
)

// PageEvaluator is the slice of the browser session the capture layer
// needs: evaluating snippets in the page.
type PageEvaluator interface {
	Eval(ctx context.Context, js string, out any) error
	EvalAsync(ctx context.Context, js string, out any) error
}

// Dispatcher turns detected media into sink downloads. It owns the
// dedup discipline: every page event may fire more than once for the
// same media, so each path claims through the run's sets before any
// slow work starts.
type Dispatcher struct {
	run     *model.Run
	sink    Sink
	page    PageEvaluator
	persist func()
	log     zerolog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) bool

	sweepMu       sync.Mutex
	sweepActive   bool
	inspectActive bool
	bulkCounts    map[int]int

	wg sync.WaitGroup
}

func NewDispatcher(run *model.Run, sink Sink, page PageEvaluator, persist func(), log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		run:     run,
		sink:    sink,
		page:    page,
		persist: persist,
		log:     log,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Wait blocks until all in-flight sink writes finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// ProcessVideo handles one detected video: claim the work-item index,
// optionally run the upscale workflow, then capture. The processing
// claim is released on every path so a failed upscale never wedges the
// index.
func (d *Dispatcher) ProcessVideo(ctx context.Context, index int, url string) {
	if !d.run.Active() {
		return
	}
	if d.run.Downloaded(index) {
		d.log.Debug().Int("index", index).Msg("video already captured, skipping")
		return
	}
	if !d.run.ClaimProcessing(index) {
		d.log.Debug().Int("index", index).Msg("video already being processed, skipping")
		return
	}
	defer d.run.ReleaseProcessing(index)

	captureURL := url
	settings := d.run.Settings()
	if settings.UpscaleVideos && !d.run.Upscaled(index) {
		result := d.upscaleVideo(ctx, url)
		d.run.MarkUpscaled(index)
		if result.Success && result.URL != "" {
			captureURL = result.URL
			d.log.Info().Int("index", index).Str("method", result.Method).Msg("captured HD variant")
		} else {
			d.log.Warn().Int("index", index).Str("method", result.Method).Msg("upscale unavailable, keeping SD")
		}
	} else {
		// let the player settle before grabbing the blob
		if !d.sleep(ctx, 2*time.Second) {
			return
		}
	}

	d.CaptureAndDownload(ctx, index, captureURL, "video", "")
}

// CaptureAndDownload assigns the structured filename and hands the
// media to the sink. For videos the downloaded-set entry is made at
// dispatch time and persisted, so a reload right after dispatch cannot
// double-save the same index.
func (d *Dispatcher) CaptureAndDownload(ctx context.Context, index int, url, kind, nameSuffix string) {
	if kind == "video" && !d.run.MarkDownloaded(index) {
		d.log.Debug().Int("index", index).Msg("duplicate video dispatch suppressed")
		return
	}

	label := fallbackBaseName
	if item, ok := d.run.Item(index); ok && item.Label() != "" {
		label = item.Label()
	}

	finalURL := url
	if kind == "video" && isBlobURL(url) {
		if dataURL, err := d.materializeBlob(ctx, url); err == nil {
			finalURL = dataURL
		} else {
			d.log.Warn().Err(err).Int("index", index).Msg("blob conversion failed, using original URL")
		}
	}

	settings := d.run.Settings()
	filename := BuildFilename(settings.DownloadSubfolder, label+nameSuffix, d.now().UnixMilli(), finalURL, kind)

	promptText := ""
	if settings.SavePromptText {
		promptText = label
	}

	req := Request{URL: finalURL, Filename: filename, Kind: kind, PromptText: promptText}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sink.Download(req); err != nil {
			d.log.Error().Err(err).Str("file", filename).Msg("media download failed")
		}
	}()

	// persist only while the run is live: once a stop has cleared the
	// state file a straggling capture must not write it back
	if kind == "video" && d.run.Active() {
		d.persist()
	}
	d.log.Info().Int("index", index).Str("file", filename).Str("kind", kind).Msg("capture dispatched")
}

// materializeBlob converts a blob: URL into a data URL inside the
// page, since blob URLs are only dereferenceable there.
func (d *Dispatcher) materializeBlob(ctx context.Context, url string) (string, error) {
	var dataURL string
	err := d.page.EvalAsync(ctx, browser.ScriptAsync(`
		const resp = await fetch(ARGS.url);
		const blob = await resp.blob();
		return await new Promise((resolve, reject) => {
			const reader = new FileReader();
			reader.onloadend = () => resolve(reader.result);
			reader.onerror = reject;
			reader.readAsDataURL(blob);
		});
	`, map[string]string{"url": url}), &dataURL)
	if err != nil {
		return "", err
	}
	return dataURL, nil
}

func isBlobURL(url string) bool {
	return len(url) > 5 && url[:5] == "blob:"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
