//go:build linux

package serialline

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// baudConstants maps the reference baud rate (spec §6: 57600) and the
// other rates an operator might configure to the termios Bxxx constant.
// No serial-port library appears anywhere in the retrieval pack, so the
// UART is programmed directly via termios ioctls, the way the rest of
// the pack handles raw POSIX fds (see DESIGN.md).
var baudConstants = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// TTYPort is a Port backed by a real UART device node.
type TTYPort struct {
	f *os.File
}

// OpenTTY opens path (e.g. /dev/ttyAMA0) and configures it for raw 8N1
// operation at baud, with a read timeout derived from readTimeout.
func OpenTTY(path string, baud int, readTimeout time.Duration) (*TTYPort, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serialline: open %s: %w", path, err)
	}

	rate, ok := baudConstants[baud]
	if !ok {
		f.Close()
		return nil, fmt.Errorf("serialline: unsupported baud rate %d", baud)
	}

	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("serialline: get termios: %w", err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Ispeed = rate
	t.Ospeed = rate

	// VMIN=0, VTIME in deciseconds: a read blocks until readTimeout
	// elapses or at least one byte arrives, then returns whatever it
	// has — the short-read-on-timeout semantics serialline.readExact
	// expects.
	t.Cc[unix.VMIN] = 0
	deciseconds := readTimeout / (100 * time.Millisecond)
	if deciseconds > 255 {
		deciseconds = 255
	}
	t.Cc[unix.VTIME] = uint8(deciseconds)

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		f.Close()
		return nil, fmt.Errorf("serialline: set termios: %w", err)
	}

	return &TTYPort{f: f}, nil
}

// Read implements Port.
func (p *TTYPort) Read(b []byte) (int, error) { return p.f.Read(b) }

// Write implements Port.
func (p *TTYPort) Write(b []byte) (int, error) { return p.f.Write(b) }

// Flush implements Port by waiting until all written output has been
// transmitted to the line (tcdrain), the termios equivalent of
// pyserial's flush().
func (p *TTYPort) Flush() error {
	return unix.IoctlSetInt(int(p.f.Fd()), unix.TCSBRK, 1)
}

// Close releases the underlying file descriptor.
func (p *TTYPort) Close() error { return p.f.Close() }
