// Package frame defines the fixed-offset binary layouts shared by every
// signed object in the chain: the Genesis frame, the signing Request, and
// the signer's Response. Sizes and field offsets are frozen by the wire
// protocol (spec §3/§6) and never renegotiated, so this package deals in
// opaque byte slices and thin typed views rather than heap-allocating
// structures on the hot path.
package frame

import "encoding/binary"

// Fixed sizes in bytes, per spec §3.
const (
	SignatureSize = 64
	PubkeySize    = 32
	CounterSize   = 8
	TimestampSize = 8
	DigestSize    = 48

	GenesisSize = SignatureSize + PubkeySize                             // 96
	PrefixSize  = GenesisSize + SignatureSize + CounterSize + TimestampSize // 176
	RequestSize = PrefixSize + DigestSize                                  // 224
	ResponseSize = PrefixSize + RequestSize                                // 400
)

// Offsets within a Prefix-bearing frame (Request or Response).
const (
	offSignature = 0
	offPubkey    = offSignature + SignatureSize // 64
	offPrevious  = offPubkey + PubkeySize        // 96
	offCounter   = offPrevious + SignatureSize   // 160
	offTimestamp = offCounter + CounterSize      // 168
	offMessage   = offTimestamp + TimestampSize  // 176
)

// Signature returns the leading 64-byte signature of any signed frame
// (Genesis, Request, or Response). Panics if b is shorter than SignatureSize.
func Signature(b []byte) []byte { return b[offSignature:offPubkey] }

// Pubkey returns the embedded 32-byte Ed25519 verify key. Every signed
// frame carries its own verify key at this fixed offset.
func Pubkey(b []byte) []byte { return b[offPubkey:offPrevious] }

// Previous returns the 64-byte signature of the parent node. Only valid
// for a frame of at least PrefixSize; callers must not call this on a
// bare Genesis frame.
func Previous(b []byte) []byte { return b[offPrevious:offCounter] }

// Counter returns the little-endian u64 counter field.
func Counter(b []byte) uint64 { return binary.LittleEndian.Uint64(b[offCounter:offTimestamp]) }

// Timestamp returns the little-endian u64 unix-seconds timestamp field.
func Timestamp(b []byte) uint64 { return binary.LittleEndian.Uint64(b[offTimestamp:offMessage]) }

// Message returns the variable-length message tail: 48 bytes for a
// Request, 224 bytes (a full Request) for a Response.
func Message(b []byte) []byte { return b[offMessage:] }

// SigningForm returns everything the signature covers: pubkey, the
// optional linkage fields, and the message. For a Genesis frame this is
// simply the pubkey.
func SigningForm(b []byte) []byte { return b[offPubkey:] }

// PutCounter writes v into dst at the Counter offset. dst must be at
// least PrefixSize bytes.
func PutCounter(dst []byte, v uint64) { binary.LittleEndian.PutUint64(dst[offCounter:offTimestamp], v) }

// PutTimestamp writes v into dst at the Timestamp offset. dst must be at
// least PrefixSize bytes.
func PutTimestamp(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst[offTimestamp:offMessage], v)
}

// BuildSigningForm assembles pubkey‖previous‖counter‖timestamp‖message,
// the bytes a Request or Response signature is computed over. previous
// must be SignatureSize bytes and pubkey PubkeySize bytes.
func BuildSigningForm(pubkey, previous []byte, counter, timestamp uint64, message []byte) []byte {
	out := make([]byte, PubkeySize+SignatureSize+CounterSize+TimestampSize+len(message))
	n := copy(out, pubkey)
	n += copy(out[n:], previous)
	binary.LittleEndian.PutUint64(out[n:n+CounterSize], counter)
	n += CounterSize
	binary.LittleEndian.PutUint64(out[n:n+TimestampSize], timestamp)
	n += TimestampSize
	copy(out[n:], message)
	return out
}
