package common

import (
	"errors"
	"fmt"
	"math/bits"
	"regexp"
	"strconv"
	"strings"
)

var byteCountExpr = regexp.MustCompile(`^\s*(\d+)\s*(\w*)\s*$`)

// ParseByteCountWithUnit supports the following unit suffixes:
// 10^3 based: kb, mb, gb, tb, pb .
// 2^10 based: kib, mib, gib, tib, pib .
// the unit suffix is case-insensitive.
// no unit suffix will result in normal integer parsing.
func ParseByteCountWithUnit(s string) (uint64, error) {
	match := byteCountExpr.FindStringSubmatch(s)
	if len(match) != 3 {
		return 0, errors.New("failed to parse")
	}
	number, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return 0, err
	}
	suffix := strings.TrimSpace(strings.ToLower(match[2]))
	factor, ok := byteCountUnits[suffix]
	if !ok {
		return 0, fmt.Errorf("invalid suffix %q", suffix)
	}
	hi, n := bits.Mul64(number, factor)
	if hi != 0 {
		return 0, fmt.Errorf("byte count %q overflows", s)
	}
	return n, nil
}

var byteCountUnits = map[string]uint64{
	"":    1,
	"b":   1,
	"kb":  1e3,
	"mb":  1e6,
	"gb":  1e9,
	"tb":  1e12,
	"pb":  1e15,
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
	"pib": 1 << 50,
}
