// Package display renders the signer's current chain tip for an
// operator (spec §4.6). A "screen" is four 20-character rows; a
// "sequence" is a finite ordered list of screens shown in a dwell cycle.
// Layout is ported from original_source/pihsm/display.py's
// _mk_status_lines/_mk_pubkey_lines/_mk_signature_lines family.
package display

import (
	"encoding/base32"
	"fmt"
	"time"

	"github.com/system76/pihsm/internal/frame"
)

// Row is one 20-character display row. Some rows are evaluated fresh
// every time a screen is shown (the clock row); most are fixed strings
// baked in when the sequence was built.
type Row func() string

// Screen is exactly four rows.
type Screen [4]Row

// rowWidth is the character width of one display row.
const rowWidth = 20

func staticRow(s string) Row {
	padded := padRight(s, rowWidth)
	return func() string { return padded }
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + spaces(width-len(s))
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return spaces(width-len(s)) + s
}

func centerPad(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	total := width - len(s)
	left := total / 2
	right := total - left
	return spaces(left) + s + spaces(right)
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

func u64Row(v uint64) Row {
	return staticRow(padLeft(fmt.Sprintf("%d", v), rowWidth))
}

// Clock supplies the current time for the live clock row; *time.Time
// isn't used directly so tests can inject a fixed clock.
type Clock func() time.Time

func clockRow(now Clock) Row {
	return func() string {
		return padLeft(fmt.Sprintf("%d", now().Unix()), rowWidth)
	}
}

// EntropySource reports the kernel's available entropy estimate for the
// Status screen (recovered from original_source/pihsm/sign.py's
// get_entropy_avail, dropped by the distillation — spec.md is silent on
// entropy display but original_source shows it belongs on this screen).
type EntropySource func() (uint64, error)

func entropyRow(src EntropySource) Row {
	return func() string {
		n, err := src()
		if err != nil {
			return padRight("unavailable", rowWidth)
		}
		return padLeft(fmt.Sprintf("%d", n), rowWidth)
	}
}

var b32 = base32.StdEncoding

// statusSequence is shown when no tip has been seen yet (spec §4.6
// "Status (no tip yet)").
func statusSequence(now Clock, entropy EntropySource) []Screen {
	return []Screen{{
		staticRow("Unix Time:"),
		clockRow(now),
		staticRow("Entropy Available:"),
		entropyRow(entropy),
	}}
}

// errorSequence is shown when the signer's tip file is absent (spec
// §4.6 "Error (signer tip file absent)").
func errorSequence(now Clock, message string) []Screen {
	return []Screen{{
		staticRow(centerPad(message, rowWidth)),
		staticRow("Unix Time:"),
		clockRow(now),
		staticRow(""),
	}}
}

func timeAndCounterScreen(now Clock, counter uint64) Screen {
	return Screen{
		staticRow("Unix Time:"),
		clockRow(now),
		staticRow("Counter:"),
		u64Row(counter),
	}
}

func pubkeyScreen(pubkey []byte) Screen {
	p := b32.EncodeToString(pubkey)
	return Screen{
		staticRow(centerPad("Public Key:", rowWidth)),
		staticRow(slice20(p, 0)),
		staticRow(slice20(p, 20)),
		staticRow(padRight(slice20(p, 40), rowWidth)),
	}
}

// signatureScreens splits a 64-byte Ed25519 signature into two halves,
// each rendered as its own 3-row-plus-header screen (spec §4.6: "split
// over 2 screens of 3 rows each").
func signatureScreens(sig []byte, label string) []Screen {
	screens := make([]Screen, 2)
	for i := 0; i < 2; i++ {
		half := sig[i*32 : i*32+32]
		s := b32.EncodeToString(half)
		screens[i] = Screen{
			staticRow(centerPad(fmt.Sprintf("%s.%d:", label, i+1), rowWidth)),
			staticRow(slice20(s, 0)),
			staticRow(slice20(s, 20)),
			staticRow(padRight(slice20(s, 40), rowWidth)),
		}
	}
	return screens
}

func slice20(s string, start int) string {
	end := start + rowWidth
	if start >= len(s) {
		return ""
	}
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}

// genesisSequence is shown for a 96-byte Genesis tip (spec §4.6).
func genesisSequence(now Clock, entropy EntropySource, tail []byte) []Screen {
	seq := []Screen{
		{staticRow("Unix Time:"), clockRow(now), staticRow("Entropy Available:"), entropyRow(entropy)},
		pubkeyScreen(frame.Pubkey(tail)),
	}
	return append(seq, signatureScreens(frame.Signature(tail), "Genesis")...)
}

// activeSequence is shown for a 400-byte Response tip (spec §4.6).
func activeSequence(now Clock, tail []byte) []Screen {
	seq := []Screen{
		timeAndCounterScreen(now, frame.Counter(tail)),
		pubkeyScreen(frame.Pubkey(tail)),
	}
	return append(seq, signatureScreens(frame.Signature(tail), "Tail")...)
}

// TailToSequence dispatches on tip length (spec §4.6's update protocol:
// "length 0 → error, 96 → genesis, 400 → active"), mirroring
// tail_to_screens in original_source/pihsm/display.py.
func TailToSequence(now Clock, entropy EntropySource, tail []byte) ([]Screen, error) {
	switch len(tail) {
	case 0:
		return errorSequence(now, "signer unavailable"), nil
	case frame.GenesisSize:
		return genesisSequence(now, entropy, tail), nil
	case frame.ResponseSize:
		return activeSequence(now, tail), nil
	default:
		return nil, fmt.Errorf("display: bad tail length %d", len(tail))
	}
}
