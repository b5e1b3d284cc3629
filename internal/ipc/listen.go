package ipc

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Listen returns a listener bound to address. If the init system has
// pre-bound a listening socket and passed its descriptor through
// (spec §1: "the OS init system supplies pre-bound listening sockets via
// file-descriptor inheritance"), name identifies which inherited
// descriptor to use and Listen wraps it instead of calling net.Listen
// itself. Inherited descriptors are named via the PIHSM_LISTEN_FDS
// environment variable: a comma-separated "name=fd" list set up by the
// process that exec'd this daemon.
func Listen(name, address string) (net.Listener, error) {
	if fd, ok := inheritedFD(name); ok {
		return listenFromFD(fd)
	}
	if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ipc: remove stale socket %s: %w", address, err)
	}
	ln, err := net.Listen("unix", address)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen on %s: %w", address, err)
	}
	return ln, nil
}

// inheritedFD looks up name in PIHSM_LISTEN_FDS ("client=3,private=4,display=5").
func inheritedFD(name string) (int, bool) {
	raw := os.Getenv("PIHSM_LISTEN_FDS")
	if raw == "" {
		return 0, false
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] != name {
			continue
		}
		fd, err := strconv.Atoi(kv[1])
		if err != nil {
			return 0, false
		}
		return fd, true
	}
	return 0, false
}

// listenFromFD wraps an inherited, already-listening descriptor in a
// net.Listener. The descriptor is dup'd first so the returned Listener
// owns an independent fd and closing it doesn't disturb the original.
func listenFromFD(fd int) (net.Listener, error) {
	dup, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("ipc: dup inherited fd %d: %w", fd, err)
	}
	unix.CloseOnExec(dup)
	f := os.NewFile(uintptr(dup), "inherited-socket")
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		syscall.Close(dup)
		return nil, fmt.Errorf("ipc: wrap inherited fd %d: %w", fd, err)
	}
	return ln, nil
}
