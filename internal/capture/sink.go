package capture

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"imagine-pilot/internal/runstore"
)

// Request is one media payload to persist.
type Request struct {
	URL      string
	Filename string
	Kind     string
	// PromptText, when non-empty, is written as a sibling .txt file.
	PromptText string
}

// Sink receives capture requests from the dispatcher.
type Sink interface {
	Download(req Request) error
}

// DiskSink writes captured media under a downloads directory. Name
// collisions are resolved with a " (n)" suffix, matching the behavior
// of a regular browser download.
type DiskSink struct {
	mu      sync.Mutex
	outDir  string
	pending map[string]string
	client  *http.Client
	log     zerolog.Logger
}

func NewDiskSink(outDir string, log zerolog.Logger) *DiskSink {
	return &DiskSink{
		outDir:  outDir,
		pending: make(map[string]string),
		client:  &http.Client{Timeout: 2 * time.Minute},
		log:     log,
	}
}

// Download resolves the payload bytes and writes them (and the prompt
// sidecar, when requested) under the sink directory.
func (s *DiskSink) Download(req Request) error {
	s.registerPending(req.URL, req.Filename)

	data, err := s.resolve(req.URL)
	if err != nil {
		s.takePending(req.URL)
		return fmt.Errorf("resolve media %s: %w", req.Kind, err)
	}

	name := s.takePending(req.URL)
	if name == "" {
		name = req.Filename
	}

	target, err := s.uniquePath(name)
	if err != nil {
		return err
	}
	if err := runstore.WriteBytes(target, data); err != nil {
		return fmt.Errorf("write media file: %w", err)
	}
	s.log.Info().Str("file", target).Str("kind", req.Kind).Int("bytes", len(data)).Msg("media saved")

	if req.PromptText != "" {
		txtPath := strings.TrimSuffix(target, filepath.Ext(target)) + ".txt"
		if err := runstore.WriteBytes(txtPath, []byte(req.PromptText)); err != nil {
			// the media itself landed; a failed sidecar is not fatal
			s.log.Warn().Err(err).Str("file", txtPath).Msg("prompt sidecar write failed")
		}
	}
	return nil
}

// registerPending remembers the assigned filename for an in-flight
// URL; takePending consumes it. The two-step shape keeps the name
// decision at dispatch time even though the write happens later.
func (s *DiskSink) registerPending(url, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[url] = filename
}

func (s *DiskSink) takePending(url string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := s.pending[url]
	delete(s.pending, url)
	return name
}

func (s *DiskSink) resolve(url string) ([]byte, error) {
	switch {
	case strings.HasPrefix(url, "data:"):
		return decodeDataURL(url)
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		resp, err := s.client.Get(url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
		}
		return io.ReadAll(resp.Body)
	default:
		return nil, fmt.Errorf("unsupported media URL scheme: %.32s", url)
	}
}

func (s *DiskSink) uniquePath(name string) (string, error) {
	base := filepath.Join(s.outDir, filepath.FromSlash(name))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := base
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("probe download path %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
}

func decodeDataURL(url string) ([]byte, error) {
	meta, payload, found := strings.Cut(url, ",")
	if !found {
		return nil, fmt.Errorf("malformed data URL")
	}
	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return data, nil
	}
	return []byte(payload), nil
}
