//go:build linux

package display

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// i2cSlave is Linux's I2C_SLAVE ioctl request number (linux/i2c-dev.h),
// used the same way port_linux.go uses termios ioctls for the serial
// line: a thin syscall wrapper with no third-party driver in the
// retrieval pack to build on (see DESIGN.md).
const i2cSlave = 0x0703

// LinuxI2CBus is an I2CBus backed by a /dev/i2c-N character device.
type LinuxI2CBus struct {
	f        *os.File
	lastAddr byte
	addrSet  bool
}

// OpenLinuxI2CBus opens the given bus number (e.g. 1 for /dev/i2c-1).
func OpenLinuxI2CBus(bus int) (*LinuxI2CBus, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/i2c-%d", bus), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("display: open i2c bus %d: %w", bus, err)
	}
	return &LinuxI2CBus{f: f}, nil
}

// WriteByte implements I2CBus.
func (b *LinuxI2CBus) WriteByte(addr byte, data byte) error {
	if !b.addrSet || b.lastAddr != addr {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), i2cSlave, uintptr(addr)); errno != 0 {
			return fmt.Errorf("display: set i2c slave address: %w", errno)
		}
		b.lastAddr = addr
		b.addrSet = true
	}
	if _, err := b.f.Write([]byte{data}); err != nil {
		return fmt.Errorf("display: i2c write: %w", err)
	}
	return nil
}

// Close releases the underlying device file.
func (b *LinuxI2CBus) Close() error { return b.f.Close() }
