package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

func openTestManifestStore(t *testing.T) *ManifestStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifests.db")
	ms, err := OpenManifestStore("file:" + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ms.Close() })
	return ms
}

func TestManifestStorePutGetRoundTrip(t *testing.T) {
	ms := openTestManifestStore(t)
	ctx := context.Background()

	value := []byte("an exported chain segment")
	hash, err := ms.Put(ctx, value)
	if err != nil {
		t.Fatal(err)
	}

	wantHash, err := HashOf(value)
	if err != nil {
		t.Fatal(err)
	}
	if hash != wantHash {
		t.Errorf("Put returned %x, want %x", hash, wantHash)
	}

	got, found, err := ms.Get(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if !bytes.Equal(got, value) {
		t.Error("round-tripped value differs")
	}
}

func TestManifestStorePutIsIdempotent(t *testing.T) {
	ms := openTestManifestStore(t)
	ctx := context.Background()
	value := []byte("same content twice")

	h1, err := ms.Put(ctx, value)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ms.Put(ctx, value)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("expected identical hash for identical content")
	}
}

func TestHashOfRejectsEmpty(t *testing.T) {
	if _, err := HashOf(nil); err != ErrEmptyManifest {
		t.Errorf("expected ErrEmptyManifest, got %v", err)
	}
}

func TestManifestStoreGetMissing(t *testing.T) {
	ms := openTestManifestStore(t)
	var hash [48]byte
	_, found, err := ms.Get(context.Background(), hash)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expected found=false for a hash never stored")
	}
}
