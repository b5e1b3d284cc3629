// Package verify implements the pure verification algebra over raw signed
// frames (spec §4.2). Every function here is side-effect free; the caller
// decides what to do with a failure.
package verify

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/system76/pihsm/internal/frame"
)

// ErrBadSize is returned when a frame is not one of the three recognized
// lengths (Genesis, Request, Response).
var ErrBadSize = errors.New("verify: frame has unrecognized size")

// ErrBadSignature is returned when Ed25519 verification of the embedded
// signature fails.
var ErrBadSignature = errors.New("verify: signature invalid for embedded pubkey")

// ErrBadCounter is returned when a non-genesis frame's counter is zero,
// the reserved value that indicates overflow or corruption.
var ErrBadCounter = errors.New("verify: counter must be >= 1 for a non-genesis frame")

// ErrPubkeyMismatch is returned when the embedded pubkey does not match
// the pubkey the caller expected for this chain.
var ErrPubkeyMismatch = errors.New("verify: embedded pubkey does not match expected pubkey")

// ErrCounterLinkage is returned when a node's counter does not equal its
// parent's counter minus one.
var ErrCounterLinkage = errors.New("verify: counter does not follow parent counter")

// ErrBreakFreshKey and ErrBreakAdversarial distinguish the two
// interpretations of a chain walk hitting a signature with no stored
// frame behind it (spec §9 open question). The implied-genesis case
// (the missing link is for the genesis frame with the expected pubkey)
// is ErrBreakFreshKey; anything else is ErrBreakAdversarial. Neither is
// auto-healed; the caller (an operator, via pihsmctl) decides.
var (
	ErrBreakFreshKey    = errors.New("verify: chain break consistent with an unused fresh key")
	ErrBreakAdversarial = errors.New("verify: chain break inconsistent with a fresh key; treat as adversarial")
)

// VerifySelf checks that frame b's embedded Ed25519 signature is valid
// over its own signing form, using the pubkey embedded in b. It does not
// compare that pubkey against anything external.
func VerifySelf(b []byte) error {
	switch len(b) {
	case frame.GenesisSize, frame.RequestSize, frame.ResponseSize:
	default:
		return ErrBadSize
	}
	pub := ed25519.PublicKey(frame.Pubkey(b))
	if !ed25519.Verify(pub, frame.SigningForm(b), frame.Signature(b)) {
		return ErrBadSignature
	}
	return nil
}

// IsValid is the boolean form of VerifySelf, used on untrusted bytes
// (e.g. raw serial reads) where the caller wants to silently drop a bad
// frame rather than branch on an error value.
func IsValid(b []byte) bool {
	return VerifySelf(b) == nil
}

// Node is the decomposed view of a non-genesis signed frame.
type Node struct {
	Signature []byte
	Pubkey    []byte
	Previous  []byte
	Counter   uint64
	Timestamp uint64
	Message   []byte
}

// VerifyAndUnpack verifies frame b against its embedded pubkey and
// decomposes it into a Node. It rejects a zero counter, which is how a
// genesis frame (no counter field at all) is distinguished from a
// corrupt or overflowed non-genesis frame — callers must not call this
// on a 96-byte Genesis frame; use VerifyGenesis instead.
func VerifyAndUnpack(b []byte) (Node, error) {
	if len(b) < frame.PrefixSize {
		return Node{}, ErrBadSize
	}
	if err := VerifySelf(b); err != nil {
		return Node{}, err
	}
	n := Node{
		Signature: frame.Signature(b),
		Pubkey:    frame.Pubkey(b),
		Previous:  frame.Previous(b),
		Counter:   frame.Counter(b),
		Timestamp: frame.Timestamp(b),
		Message:   frame.Message(b),
	}
	if n.Counter < 1 {
		return Node{}, ErrBadCounter
	}
	return n, nil
}

// VerifyGenesis verifies a 96-byte Genesis frame (signature‖pubkey)
// against the caller's expected pubkey.
func VerifyGenesis(sig, pubkey []byte) error {
	if len(sig) != frame.SignatureSize || len(pubkey) != frame.PubkeySize {
		return ErrBadSize
	}
	if !ed25519.Verify(ed25519.PublicKey(pubkey), pubkey, sig) {
		return ErrBadSignature
	}
	return nil
}

// VerifyNode verifies frame b, then additionally checks that its
// embedded pubkey matches expectedPubkey (constant-time) and, if
// parentCounter is non-nil, that b's counter equals *parentCounter - 1.
func VerifyNode(b []byte, expectedPubkey []byte, parentCounter *uint64) (Node, error) {
	n, err := VerifyAndUnpack(b)
	if err != nil {
		return Node{}, err
	}
	if subtle.ConstantTimeCompare(n.Pubkey, expectedPubkey) != 1 {
		return Node{}, fmt.Errorf("%w: embedded %x != expected %x", ErrPubkeyMismatch, n.Pubkey, expectedPubkey)
	}
	if parentCounter != nil && n.Counter != *parentCounter-1 {
		return Node{}, fmt.Errorf("%w: expected %d; got %d", ErrCounterLinkage, *parentCounter-1, n.Counter)
	}
	return n, nil
}

// Loader fetches the stored frame whose signature is sig. It returns
// (nil, false, nil) when no such frame is stored — the central ambiguity
// VerifyChain must resolve.
type Loader func(sig []byte) (frameBytes []byte, found bool, err error)

// VerifyChain walks previous-signature links starting at tailSig,
// verifying parent/child counter linkage at each step, until it reaches
// a 96-byte Genesis frame whose pubkey matches expectedPubkey. It
// returns the number of non-genesis nodes walked.
//
// If load reports a missing frame, VerifyChain distinguishes two cases
// per spec §9: if the missing signature is exactly the signature the
// implied Genesis(expectedPubkey) would carry, the break is consistent
// with a key that was generated but never exercised online
// (ErrBreakFreshKey); any other missing link is ErrBreakAdversarial.
// Neither case is auto-healed.
func VerifyChain(tailSig, expectedPubkey []byte, load Loader) (walked int, err error) {
	sig := append([]byte(nil), tailSig...)
	var parentCounter *uint64

	for {
		b, found, lerr := load(sig)
		if lerr != nil {
			return walked, fmt.Errorf("verify: load frame %x: %w", sig, lerr)
		}
		if !found {
			if impliedGenesisSignature(expectedPubkey, sig) {
				return walked, ErrBreakFreshKey
			}
			return walked, ErrBreakAdversarial
		}

		if len(b) == frame.GenesisSize {
			if subtle.ConstantTimeCompare(frame.Pubkey(b), expectedPubkey) != 1 {
				return walked, fmt.Errorf("%w: genesis embeds %x, expected %x", ErrPubkeyMismatch, frame.Pubkey(b), expectedPubkey)
			}
			if err := VerifyGenesis(frame.Signature(b), expectedPubkey); err != nil {
				return walked, err
			}
			return walked, nil
		}

		n, err := VerifyNode(b, expectedPubkey, parentCounter)
		if err != nil {
			return walked, err
		}
		walked++
		sig = n.Previous
		c := n.Counter
		parentCounter = &c
	}
}

// impliedGenesisSignature reports whether sig is the signature the
// Genesis frame for pubkey would carry, without requiring that frame to
// actually be stored anywhere. The genesis signing form is the pubkey
// itself, so this needs no stored content — only the (pubkey, sig) pair,
// which VerifyGenesis already knows how to check.
func impliedGenesisSignature(pubkey, sig []byte) bool {
	return VerifyGenesis(sig, pubkey) == nil
}
