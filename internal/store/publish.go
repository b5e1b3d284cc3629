package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// TailPublisher atomically publishes the signer's current chain tip to a
// well-known file (spec §4.6's "publish file", reference
// /run/pihsm-private/tail) so the display daemon's polling fallback path
// can read it. Readers will never observe a partial file: every update
// is write-to-tmp then rename, the same commit protocol the chain store
// itself uses.
type TailPublisher struct {
	path string
}

// NewTailPublisher returns a publisher for path. The parent directory
// must already exist (it is normally created by the init system when it
// provisions the daemon's runtime directory).
func NewTailPublisher(path string) *TailPublisher {
	return &TailPublisher{path: path}
}

// Publish overwrites the tail file with b (0, 96, or 400 bytes, per spec
// §4.6's error/genesis/active encoding).
func (p *TailPublisher) Publish(b []byte) error {
	dir := filepath.Dir(p.path)
	tmpName, err := randomName(dir)
	if err != nil {
		return fmt.Errorf("publish: generate temp name: %w", err)
	}
	f, err := os.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("publish: create temp file: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmpName)
		return fmt.Errorf("publish: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpName)
		return fmt.Errorf("publish: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish: commit rename: %w", err)
	}
	return nil
}

// Read loads the current tip. A zero-length read means "no tip yet"
// (the display's Error sequence).
func Read(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return b, err
}
