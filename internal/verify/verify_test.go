package verify

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/system76/pihsm/internal/frame"
)

func genesisFrame(t *testing.T, priv ed25519.PrivateKey, pub ed25519.PublicKey) []byte {
	t.Helper()
	sig := ed25519.Sign(priv, pub)
	return append(append([]byte(nil), sig...), pub...)
}

func nextFrame(t *testing.T, priv ed25519.PrivateKey, pub ed25519.PublicKey, previous []byte, counter uint64, message []byte) []byte {
	t.Helper()
	form := frame.BuildSigningForm(pub, frame.Signature(previous), counter, 1700000000, message)
	sig := ed25519.Sign(priv, form)
	return append(append([]byte(nil), sig...), form...)
}

func TestVerifySelfDetectsBitFlip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	genesis := genesisFrame(t, priv, pub)
	req := nextFrame(t, priv, pub, genesis, 1, make([]byte, frame.DigestSize))

	if err := VerifySelf(req); err != nil {
		t.Fatalf("expected valid frame, got %v", err)
	}

	tampered := append([]byte(nil), req...)
	tampered[len(tampered)-1] ^= 0x01
	if err := VerifySelf(tampered); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifyGenesisRoundTrip(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	genesis := genesisFrame(t, priv, pub)
	if err := VerifyGenesis(frame.Signature(genesis), pub); err != nil {
		t.Fatalf("expected genesis to verify, got %v", err)
	}

	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	if err := VerifyGenesis(frame.Signature(genesis), otherPub); err == nil {
		t.Fatal("expected verification against wrong pubkey to fail")
	}
}

func TestVerifyChainWalksToGenesis(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	genesis := genesisFrame(t, priv, pub)

	store := map[string][]byte{
		string(frame.Signature(genesis)): genesis,
	}
	tail := genesis
	for i := uint64(1); i <= 3; i++ {
		msg := make([]byte, frame.DigestSize)
		msg[0] = byte(i)
		next := nextFrame(t, priv, pub, tail, i, msg)
		store[string(frame.Signature(next))] = next
		tail = next
	}

	loader := func(sig []byte) ([]byte, bool, error) {
		b, ok := store[string(sig)]
		return b, ok, nil
	}

	walked, err := VerifyChain(frame.Signature(tail), pub, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if walked != 3 {
		t.Errorf("walked = %d, want 3", walked)
	}
}

func TestVerifyChainBreakFreshKey(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)

	// An empty store: walking from the pubkey's own implied Genesis
	// signature must report ErrBreakFreshKey, not ErrBreakAdversarial.
	genesisSig := ed25519.Sign(priv, pub)
	loader := func(sig []byte) ([]byte, bool, error) { return nil, false, nil }

	_, err := VerifyChain(genesisSig, pub, loader)
	if !errors.Is(err, ErrBreakFreshKey) {
		t.Fatalf("expected ErrBreakFreshKey, got %v", err)
	}
}

func TestVerifyChainBreakAdversarial(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	randomSig := make([]byte, frame.SignatureSize)
	rand.Read(randomSig)

	loader := func(sig []byte) ([]byte, bool, error) { return nil, false, nil }

	_, err := VerifyChain(randomSig, pub, loader)
	if !errors.Is(err, ErrBreakAdversarial) {
		t.Fatalf("expected ErrBreakAdversarial, got %v", err)
	}
}

func TestVerifyChainRejectsCounterLinkageBreak(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	genesis := genesisFrame(t, priv, pub)

	msg := make([]byte, frame.DigestSize)
	n1 := nextFrame(t, priv, pub, genesis, 1, msg)
	// n2 wrongly claims counter 3 instead of 2.
	n2 := nextFrame(t, priv, pub, n1, 3, msg)

	store := map[string][]byte{
		string(frame.Signature(genesis)): genesis,
		string(frame.Signature(n1)):      n1,
		string(frame.Signature(n2)):      n2,
	}
	loader := func(sig []byte) ([]byte, bool, error) {
		b, ok := store[string(sig)]
		return b, ok, nil
	}

	_, err := VerifyChain(frame.Signature(n2), pub, loader)
	if !errors.Is(err, ErrCounterLinkage) {
		t.Fatalf("expected ErrCounterLinkage, got %v", err)
	}
}
