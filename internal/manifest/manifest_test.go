package manifest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/system76/pihsm/internal/chainsigner"
	"github.com/system76/pihsm/internal/frame"
	"github.com/system76/pihsm/internal/store"
)

type memFrameStore struct{ data map[string][]byte }

func newMemFrameStore() *memFrameStore { return &memFrameStore{data: make(map[string][]byte)} }

func (m *memFrameStore) Write(sig, b []byte) error {
	m.data[string(sig)] = append([]byte(nil), b...)
	return nil
}

func openTestStores(t *testing.T) (*store.ChainStore, *store.ManifestStore) {
	t.Helper()
	dir := t.TempDir()
	cs, err := store.OpenChainStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ms, err := store.OpenManifestStore("file:" + filepath.Join(dir, "manifests.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ms.Close() })
	return cs, ms
}

// buildChain signs n requests atop a fresh signer, persisting every
// emitted frame (genesis plus each response) into cs, and returns the
// signer's pubkey and final tail.
func buildChain(t *testing.T, cs *store.ChainStore, n int) ([]byte, []byte) {
	t.Helper()
	signer, err := chainsigner.New(newMemFrameStore())
	if err != nil {
		t.Fatal(err)
	}
	genesis := signer.Genesis()
	if err := cs.Write(frame.Signature(genesis), genesis); err != nil {
		t.Fatal(err)
	}

	aux, err := chainsigner.NewProxySigner(newMemFrameStore())
	if err != nil {
		t.Fatal(err)
	}

	tail := genesis
	for i := 0; i < n; i++ {
		digest := make([]byte, frame.DigestSize)
		digest[0] = byte(i + 1)
		request, err := aux.Sign(digest, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := signer.Sign(request, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := cs.Write(frame.Signature(resp), resp); err != nil {
			t.Fatal(err)
		}
		tail = resp
	}
	return signer.Pubkey(), tail
}

func TestExportImportRoundTrip(t *testing.T) {
	cs, ms := openTestStores(t)
	ctx := context.Background()

	pubkey, tail := buildChain(t, cs, 3)

	hash, err := Export(ctx, cs, ms, pubkey, tail)
	if err != nil {
		t.Fatal(err)
	}

	// A fresh chain store, as a new operator importing the manifest
	// from scratch would have.
	freshCS, err := store.OpenChainStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	env, err := Import(ctx, ms, freshCS, hash)
	if err != nil {
		t.Fatal(err)
	}
	if len(env.Frames) != 4 { // genesis + 3 responses
		t.Errorf("got %d frames, want 4", len(env.Frames))
	}

	got, found, err := freshCS.Read(frame.Signature(tail))
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected the imported tail to be written into the chain store")
	}
	if string(got) != string(tail) {
		t.Error("imported tail content differs from the exported tail")
	}
}

func TestExportStopsAtGenesis(t *testing.T) {
	cs, ms := openTestStores(t)
	ctx := context.Background()

	pubkey, tail := buildChain(t, cs, 1)

	hash, err := Export(ctx, cs, ms, pubkey, tail)
	if err != nil {
		t.Fatal(err)
	}
	raw, found, err := ms.Get(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected the manifest to be persisted")
	}
	if len(raw) == 0 {
		t.Fatal("expected a non-empty encoded manifest")
	}
}

func TestImportRejectsTamperedFrame(t *testing.T) {
	cs, ms := openTestStores(t)
	ctx := context.Background()

	pubkey, tail := buildChain(t, cs, 2)
	hash, err := Export(ctx, cs, ms, pubkey, tail)
	if err != nil {
		t.Fatal(err)
	}

	raw, _, err := ms.Get(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0x01
	tamperedHash, err := store.HashOf(tampered)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ms.Put(ctx, tampered); err != nil {
		t.Fatal(err)
	}

	freshCS, err := store.OpenChainStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Import(ctx, ms, freshCS, tamperedHash); err == nil {
		t.Error("expected a bit-flipped manifest to fail gob decode or chain verification")
	}
}

func TestImportRejectsUnknownHash(t *testing.T) {
	cs, ms := openTestStores(t)
	_, _ = buildChain(t, cs, 1)

	var bogus [48]byte
	if _, err := Import(context.Background(), ms, cs, bogus); err == nil {
		t.Error("expected an unknown manifest hash to fail")
	}
}
