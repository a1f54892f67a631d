package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteCountWithUnit(t *testing.T) {
	for input, expected := range map[string]uint64{
		"1000":      1000,
		"12B":       12,
		"5 kb":      5_000,
		"3750000":   3_750_000,
		"512KiB":    512 * 1024,
		"6MiB":      6 * 1024 * 1024,
		"10mib":     10 * 1024 * 1024,
		" 2 GB ":    2_000_000_000,
		"1TiB":      1 << 40,
	} {
		actual, err := ParseByteCountWithUnit(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, actual, input)
	}
}

func TestParseByteCountWithUnitRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "abc", "1.5MiB", "10 parsecs", "-1", "100000PiB", "18446744073709551616"} {
		_, err := ParseByteCountWithUnit(input)
		assert.Error(t, err, input)
	}
}
