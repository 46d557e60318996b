package device

import (
	"fmt"
	"strings"
)

// Query renders a human-readable report for ordinal.
func (r *Registry) Query(ordinal int) (string, error) {
	info, err := r.Device(ordinal)
	if err != nil {
		return "", err
	}
	avail, err := r.Available(ordinal)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "device %d: %s\n", info.Ordinal, info.Name)
	fmt.Fprintf(&b, "  compute capability: %d\n", info.Capability)
	fmt.Fprintf(&b, "  total memory:       %s\n", MemFmt(info.TotalMemory))
	fmt.Fprintf(&b, "  free memory:        %s\n", MemFmt(avail))
	return b.String(), nil
}

// MemFmt humanizes a byte count for device reports.
func MemFmt(bytes uint64) string {
	v := float64(bytes)
	switch {
	case v >= 1<<30:
		return fmt.Sprintf("%.2fG", v/(1<<30))
	case v >= 1<<20:
		return fmt.Sprintf("%.2fM", v/(1<<20))
	case v >= 1<<10:
		return fmt.Sprintf("%.2fK", v/(1<<10))
	default:
		return fmt.Sprintf("%d", bytes)
	}
}
