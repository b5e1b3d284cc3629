// Package serialline implements the half-duplex, length-framed,
// retry-driven serial transport (spec §4.3). There is no framing byte:
// length is implied by role, exactly as in the original UART protocol —
// the signer always reads a Request and writes a Response; the proxy
// always writes a Request and reads a Response.
package serialline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/system76/pihsm/internal/frame"
	"github.com/system76/pihsm/internal/verify"
)

// ErrTransportFailure is raised to the IPC caller once the client's
// retry budget is exhausted (spec §7, kind 4: Transport).
var ErrTransportFailure = errors.New("serialline: retries exhausted")

// Port is the opaque duplex byte channel a UART (or, in tests, a pipe)
// provides. Read should return up to len(p) bytes, blocking until the
// configured deadline; a timeout with no bytes read returns (0, nil) —
// mirroring the original pyserial `.read(n)` semantics where a timeout
// yields a short (possibly empty) read rather than an error.
type Port interface {
	io.Reader
	io.Writer
	Flush() error
}

// Config holds the tunables from spec §6/§8.3.
type Config struct {
	Retries int           // reference: 3
	Timeout time.Duration // per-read timeout, reference: 2s
}

// DefaultConfig matches spec §6's reference values.
var DefaultConfig = Config{Retries: 3, Timeout: 2 * time.Second}

// readExact reads exactly n bytes or returns a short/empty read on
// timeout, matching the "no framing bytes, length implied by role"
// model: a true timeout (zero bytes available) is reported as (nil,
// nil), a malformed partial read otherwise is also downgraded to (nil,
// nil) since half-duplex lines cannot meaningfully resynchronize
// mid-frame.
func readExact(p Port, n int) ([]byte, error) {
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := p.Read(buf[read:])
		read += m
		if err != nil {
			if read == 0 {
				return nil, nil
			}
			return nil, err
		}
		if m == 0 {
			break
		}
	}
	if read == 0 {
		return nil, nil
	}
	if read != n {
		return nil, nil
	}
	return buf, nil
}

// Client is the proxy-side client: write Request, read Response, retry
// on loss (spec §4.3's proxy-side client protocol).
type Client struct {
	port Port
	cfg  Config
	log  *slog.Logger
}

// NewClient returns a Client driving port with cfg (DefaultConfig if
// cfg is the zero value).
func NewClient(port Port, cfg Config, log *slog.Logger) *Client {
	if cfg.Retries == 0 && cfg.Timeout == 0 {
		cfg = DefaultConfig
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{port: port, cfg: cfg, log: log}
}

// MakeRequest writes request (exactly frame.RequestSize bytes) and
// returns the anchored Response, retrying up to cfg.Retries times. A
// response is accepted only if it is the right size, self-verifies, and
// its embedded message equals request verbatim — the anchor that binds
// this specific response to this specific request.
func (c *Client) MakeRequest(request []byte) ([]byte, error) {
	if len(request) != frame.RequestSize {
		return nil, fmt.Errorf("serialline: request must be %d bytes, got %d", frame.RequestSize, len(request))
	}

	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		if _, err := c.port.Write(request); err != nil {
			return nil, fmt.Errorf("serialline: write request: %w", err)
		}
		if err := c.port.Flush(); err != nil {
			return nil, fmt.Errorf("serialline: flush: %w", err)
		}

		resp, err := readExact(c.port, frame.ResponseSize)
		if err != nil {
			return nil, fmt.Errorf("serialline: read response: %w", err)
		}
		if resp != nil && verify.IsValid(resp) && messageMatches(resp, request) {
			return resp, nil
		}

		drain, _ := readExact(c.port, frame.ResponseSize*2)
		if len(drain) > 0 {
			c.log.Warn("drained late serial bytes", "len", len(drain), "attempt", attempt)
		}
	}
	return nil, ErrTransportFailure
}

func messageMatches(resp, request []byte) bool {
	msg := frame.Message(resp)
	if len(msg) != len(request) {
		return false
	}
	for i := range msg {
		if msg[i] != request[i] {
			return false
		}
	}
	return true
}

// Signer is the dependency the signer-side server loop uses to turn a
// verified request into a response; satisfied by *chainsigner.Signer.
type Signer interface {
	Sign(request []byte, ts *time.Time) ([]byte, error)
}

// Server is the signer-side loop (spec §4.3's signer-side server loop):
// read a Request, verify it, sign it, write the Response, and push the
// same response to a display sink. No state is held across iterations
// beyond what Signer itself carries.
type Server struct {
	port   Port
	signer Signer
	onTip  func(response []byte) // best-effort display push, may be nil
	log    *slog.Logger

	// DebugAbortProbability, when non-zero, randomly aborts the loop
	// with probability 1/N per accepted request — the "tempt fate" fault
	// injection mode from spec §9, wired only here (the serial server),
	// and only ever enabled by an explicit debug config flag.
	DebugAbortProbability int
	randN                 func(n int) int
}

// NewServer returns a signer-side loop. onTip, if non-nil, is called
// with every response the loop produces (best-effort; errors are
// logged, never fatal, per spec §4.4's Display-IPC being a best-effort
// push).
func NewServer(port Port, signer Signer, onTip func([]byte), log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{port: port, signer: signer, onTip: onTip, log: log}
}

// ServeForever runs the read/verify/sign/write loop until stop is
// closed or a read error occurs. A malformed or unreadable request never
// advances signer state; the loop simply resumes.
func (s *Server) ServeForever(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		req, err := readExact(s.port, frame.RequestSize)
		if err != nil {
			return fmt.Errorf("serialline: read request: %w", err)
		}
		if req == nil {
			continue // timeout tick, nothing to do
		}
		if !verify.IsValid(req) {
			s.log.Warn("dropping invalid serial request")
			continue
		}

		resp, err := s.signer.Sign(req, nil)
		if err != nil {
			return fmt.Errorf("serialline: sign: %w", err)
		}

		if _, err := s.port.Write(resp); err != nil {
			return fmt.Errorf("serialline: write response: %w", err)
		}
		if err := s.port.Flush(); err != nil {
			return fmt.Errorf("serialline: flush: %w", err)
		}

		if s.onTip != nil {
			s.onTip(resp)
		}

		if s.DebugAbortProbability > 0 && s.tempted() {
			return fmt.Errorf("serialline: tempted fate (debug_abort_probability=1/%d)", s.DebugAbortProbability)
		}
	}
}

func (s *Server) tempted() bool {
	roll := s.randN
	if roll == nil {
		roll = defaultRandN
	}
	return roll(s.DebugAbortProbability) == 0
}
