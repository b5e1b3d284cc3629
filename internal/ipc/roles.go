package ipc

import (
	"crypto/sha512"
	"fmt"
	"log/slog"
	"time"

	"github.com/system76/pihsm/internal/frame"
	"github.com/system76/pihsm/internal/verify"
)

// ChainSigner is the dependency the Private-IPC server signs through;
// satisfied by *chainsigner.Signer.
type ChainSigner interface {
	Sign(request []byte, ts *time.Time) ([]byte, error)
}

// TipUpdater is the dependency the Display-IPC server forwards pushed
// tips to; satisfied by *display.Manager.
type TipUpdater interface {
	UpdateTip(frame []byte) error
}

// ResponseStore is the dependency the Client-IPC server persists
// responses to on the proxy side; satisfied by *store.ChainStore.
type ResponseStore interface {
	Write(sig, b []byte) error
}

// ProxySigner wraps a digest into the proxy's own 224-byte signed
// Request (spec §2: "the proxy signs its own 224-byte request wrapping
// that digest"); satisfied by a *chainsigner.Signer constructed with
// chainsigner.NewProxySigner.
type ProxySigner interface {
	Sign(message []byte, ts *time.Time) ([]byte, error)
}

// SerialCaller sends a Request over the serial line and returns the
// Response; satisfied by *serialline.Client.
type SerialCaller interface {
	MakeRequest(request []byte) ([]byte, error)
}

// NewPrivateServer builds the Private-IPC server (spec §4.4 table):
// accepts a 224-byte Request, verifies it, signs it, and best-effort
// pushes the resulting Response to the Display-IPC client. Per spec §4.4
// and §7, this server is non-fatal: a bad peer must not take the signer
// down.
func NewPrivateServer(signer ChainSigner, displayPush func([]byte), log *slog.Logger) *Server {
	handler := func(request []byte) ([]byte, error) {
		if err := verify.VerifySelf(request); err != nil {
			return nil, fmt.Errorf("private-ipc: %w", err)
		}
		resp, err := signer.Sign(request, nil)
		if err != nil {
			return nil, fmt.Errorf("private-ipc: sign: %w", err)
		}
		if displayPush != nil {
			displayPush(resp)
		}
		return resp, nil
	}
	s := New("private", []int{frame.RequestSize}, 0, handler, log)
	s.Fatal = false
	return s
}

// NewDisplayServer builds the Display-IPC server (spec §4.4 table):
// accepts a 96- or 400-byte frame, verifies it, updates the display
// manager's current tip, and echoes the SHA-384 digest of the input as
// an inexpensive integrity check for the caller.
func NewDisplayServer(updater TipUpdater, log *slog.Logger) *Server {
	handler := func(request []byte) ([]byte, error) {
		if err := verify.VerifySelf(request); err != nil {
			return nil, fmt.Errorf("display-ipc: %w", err)
		}
		if err := updater.UpdateTip(request); err != nil {
			return nil, fmt.Errorf("display-ipc: update tip: %w", err)
		}
		digest := sha512.Sum384(request)
		return digest[:], nil
	}
	s := New("display", []int{frame.GenesisSize, frame.ResponseSize}, 0, handler, log)
	s.Fatal = false
	return s
}

// NewClientServer builds the Client-IPC server (spec §4.4 table and
// §2's "control flow of one signing event"): accepts a 48-byte digest,
// wraps it as the proxy's own Request, relays it over serial, verifies
// the anchored Response, persists it, and returns it to the caller.
func NewClientServer(proxySigner ProxySigner, serial SerialCaller, responses ResponseStore, log *slog.Logger) *Server {
	handler := func(digest []byte) ([]byte, error) {
		request, err := proxySigner.Sign(digest, nil)
		if err != nil {
			return nil, fmt.Errorf("client-ipc: sign request: %w", err)
		}
		resp, err := serial.MakeRequest(request)
		if err != nil {
			return nil, fmt.Errorf("client-ipc: serial: %w", err)
		}
		if err := verify.VerifySelf(resp); err != nil {
			return nil, fmt.Errorf("client-ipc: response failed verification: %w", err)
		}
		if !messageIsRequest(resp, request) {
			return nil, fmt.Errorf("client-ipc: response does not anchor to request")
		}
		if err := responses.Write(frame.Signature(resp), resp); err != nil {
			return nil, fmt.Errorf("client-ipc: persist response: %w", err)
		}
		return resp, nil
	}
	s := New("client", []int{frame.DigestSize}, 0, handler, log)
	s.Fatal = false
	return s
}

func messageIsRequest(response, request []byte) bool {
	msg := frame.Message(response)
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
