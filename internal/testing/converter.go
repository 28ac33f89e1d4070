package testing

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// FakeConverter serves a conversion provider at /convert and the converted audio at /files/{id}.
type FakeConverter struct {
	Server *httptest.Server

	Payload []byte

	// ConvertStatus and DownloadStatus override the 200 responses when non-zero.
	ConvertStatus  int
	DownloadStatus int
	NoResult       bool
	NoLink         bool

	// Delay is slept before answering /convert, to widen race windows in tests.
	Delay time.Duration

	ConvertCalls  atomic.Int32
	DownloadCalls atomic.Int32

	mu      sync.Mutex
	refs    []string
	headers http.Header
}

// NewFakeConverter starts a fake provider that is closed when the test ends.
func NewFakeConverter(t *testing.T) *FakeConverter {
	t.Helper()

	f := &FakeConverter{Payload: []byte("ID3\x04fake-mp3-payload")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /convert", f.handleConvert)
	mux.HandleFunc("GET /files/{id}", f.handleFile)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// Refs returns every ref passed to /convert, in order.
func (f *FakeConverter) Refs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refs...)
}

// LastHeaders returns the headers of the most recent /convert request.
func (f *FakeConverter) LastHeaders() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers
}

func (f *FakeConverter) handleConvert(w http.ResponseWriter, r *http.Request) {
	f.ConvertCalls.Add(1)

	ref := r.URL.Query().Get("ref")
	f.mu.Lock()
	f.refs = append(f.refs, ref)
	f.headers = r.Header.Clone()
	f.mu.Unlock()

	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}

	if f.ConvertStatus != 0 {
		http.Error(w, "provider error", f.ConvertStatus)
		return
	}

	if f.NoResult {
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
		return
	}

	id := "unknown"
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		id = path.Base(u.Path)
	}

	link := f.Server.URL + "/files/" + id
	if f.NoLink {
		link = ""
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"title":        "Title " + id,
			"artist":       "Artist " + id,
			"album":        "Album " + id,
			"cover":        "https://i.scdn.co/image/" + id,
			"downloadLink": link,
		},
	})
}

func (f *FakeConverter) handleFile(w http.ResponseWriter, r *http.Request) {
	f.DownloadCalls.Add(1)

	if f.DownloadStatus != 0 {
		http.Error(w, "gone", f.DownloadStatus)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write(f.Payload)
}
