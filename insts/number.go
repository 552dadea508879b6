package insts

import (
	"strconv"
	"strings"
)

// ParseNumber parses an integer literal as written in assembly source:
// decimal, 0x hex, 0b binary or leading-zero octal, optionally negative.
// Values above the signed 64-bit range are accepted as unsigned bit patterns.
func ParseNumber(text string) (uint64, error) {
	v, err := strconv.ParseInt(text, 0, 64)
	if err == nil {
		return uint64(v), nil
	}
	if strings.HasPrefix(text, "-") {
		return 0, err
	}
	u, uerr := strconv.ParseUint(text, 0, 64)
	if uerr != nil {
		return 0, err
	}
	return u, nil
}
