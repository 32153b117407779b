package automation

import (
	"sync"
	"testing"

	"imagine-pilot/internal/capture"
)

type recordingNotifier struct {
	mu      sync.Mutex
	methods []string
	params  []any
}

func (n *recordingNotifier) Notify(method string, params any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods = append(n.methods, method)
	n.params = append(n.params, params)
}

type passthroughSink struct {
	mu   sync.Mutex
	reqs []capture.Request
}

func (s *passthroughSink) Download(req capture.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return nil
}

func TestMirroredSinkEchoesDownloadDetails(t *testing.T) {
	notes := &recordingNotifier{}
	inner := &passthroughSink{}
	sink := &MirroredSink{Inner: inner, Server: notes}

	req := capture.Request{
		URL:        "data:image/jpeg;base64,AAAA",
		Filename:   "a_fox_1700000000000.jpg",
		Kind:       "image",
		PromptText: "a fox",
	}
	if err := sink.Download(req); err != nil {
		t.Fatalf("download: %v", err)
	}

	if len(inner.reqs) != 1 {
		t.Fatalf("inner sink got %d requests, want 1", len(inner.reqs))
	}
	if len(notes.methods) != 1 || notes.methods[0] != "downloadImage" {
		t.Fatalf("notified methods = %v, want [downloadImage]", notes.methods)
	}
	params, ok := notes.params[0].(map[string]any)
	if !ok {
		t.Fatalf("params type = %T, want map", notes.params[0])
	}
	if params["url"] != req.URL || params["prompt"] != req.PromptText || params["type"] != req.Kind {
		t.Fatalf("downloadImage params = %v", params)
	}
}

func TestMirroredSinkWorksWithoutServer(t *testing.T) {
	inner := &passthroughSink{}
	sink := &MirroredSink{Inner: inner}
	if err := sink.Download(capture.Request{URL: "u", Filename: "f", Kind: "video"}); err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(inner.reqs) != 1 {
		t.Fatalf("inner sink got %d requests, want 1", len(inner.reqs))
	}
}
