package envcfg

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses a human-readable byte size such as "25M" or "10MB"
// into raw bytes. Multipliers are binary (1K = 1024). Supported
// suffixes, case-insensitive: none/B, K/KB/KiB, M/MB/MiB, G/GB/GiB.
// Anything else is an error.
func ParseSize(input string) (uint64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, fmt.Errorf("envcfg: size value is empty")
	}
	split := len(trimmed)
	for i, r := range trimmed {
		if r < '0' || r > '9' {
			split = i
			break
		}
	}
	numberPart, suffixPart := trimmed[:split], trimmed[split:]
	if numberPart == "" {
		return 0, fmt.Errorf("envcfg: size value %q is missing digits", input)
	}
	value, err := strconv.ParseUint(numberPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("envcfg: invalid size value: %q", trimmed)
	}

	var multiplier uint64
	switch strings.ToLower(strings.TrimSpace(suffixPart)) {
	case "", "b":
		multiplier = 1
	case "k", "kb", "kib":
		multiplier = 1 << 10
	case "m", "mb", "mib":
		multiplier = 1 << 20
	case "g", "gb", "gib":
		multiplier = 1 << 30
	default:
		return 0, fmt.Errorf("envcfg: unsupported size suffix: %q", suffixPart)
	}
	if value != 0 && value > ^uint64(0)/multiplier {
		return 0, fmt.Errorf("envcfg: size value overflow: %q", trimmed)
	}
	return value * multiplier, nil
}
