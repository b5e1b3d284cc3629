// Package chainsigner implements the chain-signer state machine (spec
// §4.1): key lifetime, monotonic counter, previous-signature linkage,
// idempotent request reuse, and durable append-only persistence. Its
// shape mirrors the teacher's Logger (key chain + tail + Store-backed
// Append), generalized from the teacher's dual HMAC chain to a single
// Ed25519 chain whose linkage is the previous *signature* rather than a
// folded MAC.
package chainsigner

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/system76/pihsm/internal/frame"
	"github.com/system76/pihsm/internal/verify"
)

// ErrCounterOverflow is fatal per spec §4.1: the signer must abort and
// wait for operator re-provisioning rather than wrap the counter.
var ErrCounterOverflow = errors.New("chainsigner: counter overflow, re-provisioning required")

// maxCounter is the largest counter value spec §3 allows (2^63).
const maxCounter = uint64(1) << 63

// FrameStore is the durability dependency: every produced frame must be
// appended before Sign returns it. It is satisfied by *store.ChainStore.
type FrameStore interface {
	Write(sig, b []byte) error
}

// Signer is the signer's runtime state (spec §3 "Signer runtime state").
// Key material never leaves the process and is never written to disk;
// only the public key and produced frames are persisted (in the caller's
// FrameStore).
type Signer struct {
	mu sync.Mutex

	key    ed25519.PrivateKey
	pubkey ed25519.PublicKey

	counter     uint64
	tail        []byte // Genesis initially, else the last signed frame
	lastMessage []byte // last signed-over message, for idempotence

	messageSize int // exact length Sign requires of its message argument
	store       FrameStore
	now         func() time.Time
}

// New creates a fresh signer for the signer role: generates an Ed25519
// key pair, signs the Genesis frame, and persists it. Key material is
// held only in memory. Sign will require messages of exactly
// frame.RequestSize bytes and produce frame.ResponseSize-byte frames.
func New(store FrameStore) (*Signer, error) {
	return NewForMessageSize(store, frame.RequestSize)
}

// NewForMessageSize creates a fresh signer whose Sign wraps messages of
// exactly messageSize bytes. The proxy's own chain (spec §2: "the proxy
// signs its own 224-byte request wrapping that digest") is the same
// state machine instantiated with messageSize = frame.DigestSize instead
// of frame.RequestSize; NewProxySigner is the named constructor for that
// case.
func NewForMessageSize(store FrameStore, messageSize int) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("chainsigner: generate key: %w", err)
	}
	return newWithKey(priv, pub, store, messageSize)
}

// NewProxySigner creates the proxy-side chain signer that wraps 48-byte
// application digests into 224-byte Request frames (spec §2, §4.4's
// Client-IPC row).
func NewProxySigner(store FrameStore) (*Signer, error) {
	return NewForMessageSize(store, frame.DigestSize)
}

func newWithKey(priv ed25519.PrivateKey, pub ed25519.PublicKey, st FrameStore, messageSize int) (*Signer, error) {
	genesis := ed25519.Sign(priv, pub)
	if len(genesis) != frame.SignatureSize {
		return nil, fmt.Errorf("chainsigner: unexpected signature size %d", len(genesis))
	}
	genesisFrame := append(append([]byte(nil), genesis...), pub...)
	if err := st.Write(genesisFrame[:frame.SignatureSize], genesisFrame); err != nil {
		return nil, fmt.Errorf("chainsigner: persist genesis: %w", err)
	}
	return &Signer{
		key:         priv,
		pubkey:      pub,
		tail:        genesisFrame,
		messageSize: messageSize,
		store:       st,
		now:         time.Now,
	}, nil
}

// Pubkey returns the signer's Ed25519 verify key.
func (s *Signer) Pubkey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(s.pubkey))
	copy(out, s.pubkey)
	return out
}

// Genesis returns the 96-byte Genesis frame produced at construction.
// Ed25519 signing is deterministic (RFC 8032), so this is recomputed
// from the held key rather than kept as a second copy of the tail.
func (s *Signer) Genesis() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig := ed25519.Sign(s.key, s.pubkey)
	return append(append([]byte(nil), sig...), s.pubkey...)
}

// Sign produces the next signed node wrapping request (spec §4.1's `sign`
// operation). request must be exactly s.messageSize bytes: a 224-byte
// Request for the signer's own chain, or a 48-byte digest for the
// proxy's chain. When wrapping a Request, it must also pass
// self-verification; the caller (the private IPC handler) is expected to
// have already done that, but Sign re-checks defensively since it is the
// last line of defense for chain integrity.
//
// If request is byte-identical to the most recently signed request, Sign
// returns the cached tail unchanged: no counter increment, no store
// write, no observable state change. This is the idempotence guarantee
// spec §4.1 requires so that a lossy serial retry can never double-spend
// the counter.
func (s *Signer) Sign(request []byte, ts *time.Time) ([]byte, error) {
	if len(request) != s.messageSize {
		return nil, fmt.Errorf("chainsigner: message must be %d bytes, got %d", s.messageSize, len(request))
	}
	// Only a Request-shaped message is itself a self-contained signed
	// frame; the proxy's chain wraps a bare digest, which has nothing to
	// self-verify yet.
	if s.messageSize == frame.RequestSize {
		if err := verify.VerifySelf(request); err != nil {
			return nil, fmt.Errorf("chainsigner: request fails self-verification: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastMessage != nil && bytes.Equal(s.lastMessage, request) {
		return append([]byte(nil), s.tail...), nil
	}

	if s.counter+1 == 0 || s.counter+1 > maxCounter {
		return nil, ErrCounterOverflow
	}
	nextCounter := s.counter + 1

	var when uint64
	if ts != nil {
		when = uint64(ts.Unix())
	} else {
		when = uint64(s.now().Unix())
	}

	signingForm := frame.BuildSigningForm(s.pubkey, previousSignature(s.tail), nextCounter, when, request)
	sig := ed25519.Sign(s.key, signingForm)

	response := make([]byte, 0, frame.SignatureSize+len(signingForm))
	response = append(response, sig...)
	response = append(response, signingForm...)

	if err := s.store.Write(sig, response); err != nil {
		return nil, fmt.Errorf("chainsigner: persist response: %w", err)
	}

	s.counter = nextCounter
	s.tail = response
	s.lastMessage = append([]byte(nil), request...)

	return append([]byte(nil), response...), nil
}

// previousSignature extracts the signature field to use as the next
// frame's "previous" link: the tail's own signature, whether the tail is
// a Genesis frame or a Response.
func previousSignature(tail []byte) []byte {
	return frame.Signature(tail)
}

// Counter returns the current chain position (0 before any Sign call).
func (s *Signer) Counter() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Tail returns the current chain tip: the Genesis frame initially, the
// last Response thereafter.
func (s *Signer) Tail() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.tail...)
}
