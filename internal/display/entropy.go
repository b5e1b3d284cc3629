package display

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// KernelEntropySource reads the kernel's available-entropy estimate,
// the Go equivalent of original_source/pihsm/sign.py's get_entropy_avail
// (which reads the same file through the nacl/libsodium binding).
func KernelEntropySource() (uint64, error) {
	b, err := os.ReadFile("/proc/sys/kernel/random/entropy_avail")
	if err != nil {
		return 0, fmt.Errorf("display: read entropy_avail: %w", err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("display: parse entropy_avail: %w", err)
	}
	return n, nil
}
