package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"imagine-pilot/internal/relay"
	"imagine-pilot/internal/runstore"
)

const clientTimeout = 10 * time.Second

var imageMimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// loadImageQueue reads every supported still in dir into a data-URL queue
// entry, ordered by filename.
func loadImageQueue(dir string) ([]runstore.QueuedImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read images directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := imageMimeByExt[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no .png/.jpg/.webp images in %s", dir)
	}
	sort.Strings(names)

	images := make([]runstore.QueuedImage, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", name, err)
		}
		mime := imageMimeByExt[strings.ToLower(filepath.Ext(name))]
		images = append(images, runstore.QueuedImage{
			ID:   fmt.Sprintf("img-%03d", i+1),
			Name: name,
			Data: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
		})
	}
	return images, nil
}

// dialControl retries a few times with a growing delay; the driver may
// still be attaching to Chrome when the first attempt lands.
func dialControl(ctx context.Context, addr, token string) (*relay.Client, error) {
	const attempts = 3
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := relay.Dial(ctx, strings.TrimSpace(addr), strings.TrimSpace(token), "imagine-pilot-cli")
		if err == nil {
			return client, nil
		}
		lastErr = err
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	return nil, fmt.Errorf("connect to control endpoint %s: %w (is a driver running?)", addr, lastErr)
}
