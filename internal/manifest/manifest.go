// Package manifest implements the "externally supplied manifest"
// concept spec §4.5 reserves the manifest store's key-derivation
// strategy for: a portable, content-addressed export of a chain
// segment, verified end-to-end on import before it touches the chain
// store (pihsmctl export/import, spec §5's recovered feature set).
//
// The teacher encodes its over-the-wire commitments with protobuf, but
// the generated bindings for that codec are not present anywhere in the
// retrieval pack (see DESIGN.md); a manifest here has no wire partner
// to renegotiate formats with, so it is encoded with encoding/gob
// instead, the teacher's own fallback codec for the same commitment
// types.
package manifest

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/system76/pihsm/internal/frame"
	"github.com/system76/pihsm/internal/store"
	"github.com/system76/pihsm/internal/verify"
)

// Envelope is the exported unit: every frame of a chain segment, tail
// first, plus the pubkey the segment is expected to verify against.
type Envelope struct {
	Version int
	Pubkey  []byte
	// Frames holds the segment ordered from tail back to (and
	// including) the oldest frame reached, which is either the Genesis
	// frame or the point where walking stopped.
	Frames [][]byte
}

// Export walks the chain backward from tail by reading each previous
// signature from cs, collects every frame it finds, and persists the
// gob-encoded Envelope into ms. It returns the SHA-384 manifest key the
// caller can hand to pihsmctl import.
func Export(ctx context.Context, cs *store.ChainStore, ms *store.ManifestStore, pubkey, tail []byte) ([48]byte, error) {
	var zero [48]byte

	env := Envelope{Version: 1, Pubkey: append([]byte(nil), pubkey...)}
	cur := tail
	for {
		env.Frames = append(env.Frames, cur)
		if len(cur) == frame.GenesisSize {
			break
		}
		prev := frame.Previous(cur)
		next, ok, err := cs.Read(prev)
		if err != nil {
			return zero, fmt.Errorf("manifest: export: read %x: %w", prev, err)
		}
		if !ok {
			break
		}
		cur = next
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return zero, fmt.Errorf("manifest: export: encode: %w", err)
	}

	return ms.Put(ctx, buf.Bytes())
}

// Import fetches the manifest keyed by hash, verifies every frame in it
// end-to-end against pubkey, and on success writes each frame into cs.
// Nothing is written if verification fails.
func Import(ctx context.Context, ms *store.ManifestStore, cs *store.ChainStore, hash [48]byte) (*Envelope, error) {
	raw, ok, err := ms.Get(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("manifest: import: fetch: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("manifest: import: no manifest for %x", hash)
	}

	var env Envelope
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, fmt.Errorf("manifest: import: decode: %w", err)
	}
	if len(env.Frames) == 0 {
		return nil, fmt.Errorf("manifest: import: empty envelope")
	}

	tail := env.Frames[0]
	byOwnSignature := make(map[string][]byte, len(env.Frames))
	for _, f := range env.Frames {
		byOwnSignature[string(frame.Signature(f))] = f
	}
	loader := func(sig []byte) ([]byte, bool, error) {
		f, ok := byOwnSignature[string(sig)]
		return f, ok, nil
	}
	if _, err := verify.VerifyChain(frame.Signature(tail), env.Pubkey, loader); err != nil {
		return nil, fmt.Errorf("manifest: import: %w", err)
	}

	for _, f := range env.Frames {
		if err := cs.Write(frame.Signature(f), f); err != nil {
			return nil, fmt.Errorf("manifest: import: persist %x: %w", frame.Signature(f), err)
		}
	}
	return &env, nil
}
