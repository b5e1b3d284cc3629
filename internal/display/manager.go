package display

import (
	"bytes"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/system76/pihsm/internal/store"
)

// DwellTime is how long each screen is shown before cycling (spec §4.6:
// "reference: 3-5 s"); it is the midpoint of that range.
const DwellTime = 4 * time.Second

// PollInterval is how often Manager re-reads the tip file when running
// in poll mode (spec §4.6 option (b)).
const PollInterval = 1 * time.Second

// state is the atomically-swapped "current sequence" cell (spec §5:
// "the two share only the current sequence cell, updated atomically").
type state struct {
	tail     []byte // raw tip bytes last rendered, for dedup; nil before any tip
	sequence []Screen
}

// Manager owns the LCD and the "current sequence" cell, and runs the
// dwell-cycling loop. It is the Go counterpart of
// original_source/pihsm/display.py's Manager class, generalized to
// converge the push (Display-IPC) and poll (tail file) update paths
// spec §4.6 describes onto the same cell.
type Manager struct {
	lcd     *LCD
	now     Clock
	entropy EntropySource
	log     *slog.Logger

	cell atomic.Pointer[state]
}

// NewManager returns a Manager showing the Status sequence until the
// first tip arrives.
func NewManager(lcd *LCD, now Clock, entropy EntropySource, log *slog.Logger) *Manager {
	if now == nil {
		now = time.Now
	}
	if entropy == nil {
		entropy = KernelEntropySource
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{lcd: lcd, now: now, entropy: entropy, log: log}
	m.cell.Store(&state{sequence: statusSequence(now, entropy)})
	return m
}

// UpdateTip implements the Display-IPC push path (spec §4.4's
// `manager.update_tip(frame)`): it replaces the current sequence if tip
// differs from the last one rendered, and is a no-op otherwise (spec
// §5: "display updates are best-effort and may coalesce").
func (m *Manager) UpdateTip(tip []byte) error {
	cur := m.cell.Load()
	if cur != nil && cur.tail != nil && bytes.Equal(cur.tail, tip) {
		return nil
	}
	seq, err := TailToSequence(m.now, m.entropy, tip)
	if err != nil {
		return err
	}
	// A rendered tip is stored non-nil (even when empty) so that it is
	// distinguishable from the initial "no tip yet" state.
	m.cell.Store(&state{tail: append([]byte{}, tip...), sequence: seq})
	return nil
}

// PollFile implements the tail-file poll path (spec §4.6 option (b)):
// it reads path once and calls UpdateTip, treating a missing file as the
// empty tail (the Error sequence).
func (m *Manager) PollFile(path string) error {
	b, err := store.Read(path)
	if err != nil {
		return err
	}
	return m.UpdateTip(b)
}

// RunPoller polls path every PollInterval until stop is closed. Errors
// are logged, not fatal — a transient read failure shouldn't stop the
// display from trying again next tick.
func (m *Manager) RunPoller(path string, stop <-chan struct{}) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.PollFile(path); err != nil {
				m.log.Error("poll tip file failed", "path", path, "err", err)
			}
		}
	}
}

// Run drives the LCD dwell-cycling loop until stop is closed (spec §5:
// "an implementation may use an internal worker thread for the
// display's cycling loop"). Each call to Screen rows is re-evaluated on
// every display, so the clock row stays live even when the sequence
// itself hasn't changed.
func (m *Manager) Run(stop <-chan struct{}) error {
	if err := m.lcd.Init(); err != nil {
		return err
	}
	for {
		seq := m.cell.Load().sequence
		for _, screen := range seq {
			select {
			case <-stop:
				return nil
			default:
			}
			if err := m.lcd.ShowScreen(screen); err != nil {
				m.log.Error("lcd write failed", "err", err)
			}
			select {
			case <-stop:
				return nil
			case <-time.After(DwellTime):
			}
		}
	}
}
