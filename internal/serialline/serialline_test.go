package serialline

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/system76/pihsm/internal/chainsigner"
	"github.com/system76/pihsm/internal/frame"
)

// fakePort is a Port backed by a queue of canned reads, one slice
// consumed per Read call. An empty (zero-length) queued slice mimics a
// per-read timeout: Read returns (0, nil), matching the real timeout
// semantics Port documents.
type fakePort struct {
	reads   [][]byte
	readIdx int
	writes  [][]byte
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readIdx >= len(p.reads) {
		return 0, nil
	}
	chunk := p.reads[p.readIdx]
	p.readIdx++
	n := copy(b, chunk)
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Flush() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type memStore struct{ data map[string][]byte }

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Write(sig, b []byte) error {
	m.data[string(sig)] = append([]byte(nil), b...)
	return nil
}

// TestMakeRequestRetryUnderLoss reproduces spec §8's property 5: a
// serial mock that returns nothing on the first attempt and the correct
// response on the second must be answered in exactly 2 write attempts,
// with exactly one additional drain read along the way.
func TestMakeRequestRetryUnderLoss(t *testing.T) {
	aux, _ := chainsigner.NewProxySigner(newMemStore())
	digest := make([]byte, frame.DigestSize)
	request, _ := aux.Sign(digest, nil)

	signer, _ := chainsigner.New(newMemStore())
	response, _ := signer.Sign(request, nil)

	port := &fakePort{
		reads: [][]byte{
			{},        // attempt 1's readExact: timeout
			{},        // attempt 1's drain read: nothing to drain
			response,  // attempt 2's readExact: the real response
		},
	}

	client := NewClient(port, Config{Retries: 3, Timeout: time.Second}, discardLogger())
	got, err := client.MakeRequest(request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, response) {
		t.Error("returned response does not match the canned response")
	}
	if len(port.writes) != 2 {
		t.Errorf("expected exactly 2 write attempts, got %d", len(port.writes))
	}
	if port.readIdx != 3 {
		t.Errorf("expected exactly 3 Read calls (1 timeout + 1 drain + 1 success), got %d", port.readIdx)
	}
}

func TestMakeRequestExhaustsRetries(t *testing.T) {
	aux, _ := chainsigner.NewProxySigner(newMemStore())
	digest := make([]byte, frame.DigestSize)
	request, _ := aux.Sign(digest, nil)

	port := &fakePort{} // never returns anything
	client := NewClient(port, Config{Retries: 2, Timeout: time.Second}, discardLogger())

	_, err := client.MakeRequest(request)
	if err != ErrTransportFailure {
		t.Fatalf("expected ErrTransportFailure, got %v", err)
	}
	if len(port.writes) != 2 {
		t.Errorf("expected exactly 2 write attempts, got %d", len(port.writes))
	}
}

func TestServeForeverSignsValidRequest(t *testing.T) {
	aux, _ := chainsigner.NewProxySigner(newMemStore())
	digest := make([]byte, frame.DigestSize)
	request, _ := aux.Sign(digest, nil)

	signer, _ := chainsigner.New(newMemStore())

	port := &fakePort{reads: [][]byte{request}}
	var pushed []byte
	srv := NewServer(port, signer, func(r []byte) { pushed = append([]byte(nil), r...) }, discardLogger())

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.ServeForever(stop) }()

	// Let the loop consume the one queued request and then stop it;
	// after that it only sees timeouts (zero-length reads) until stop
	// fires.
	time.Sleep(50 * time.Millisecond)
	close(stop)
	if err := <-done; err != nil {
		t.Fatalf("ServeForever returned error: %v", err)
	}

	if len(port.writes) != 1 {
		t.Fatalf("expected exactly 1 response written, got %d", len(port.writes))
	}
	if !bytes.Equal(pushed, port.writes[0]) {
		t.Error("onTip was not called with the written response")
	}
	if frame.Counter(port.writes[0]) != 1 {
		t.Errorf("counter = %d, want 1", frame.Counter(port.writes[0]))
	}
}
