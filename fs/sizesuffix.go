package fs

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SizeSuffix is a byte count parsed and printed with binary K/M/G
// suffixes, e.g. "4M" for --buffer-size.
type SizeSuffix int64

// Common multipliers for SizeSuffix
const (
	SizeSuffixBase SizeSuffix = 1 << (iota * 10)
	Kibi
	Mebi
	Gibi
	Tebi
	Pebi
	Exbi
)

// sizeSymbols are the suffix letters in multiplier order from Kibi
const sizeSymbols = "KMGTPE"

// string splits x into a scaled number and its binary suffix
func (x SizeSuffix) string() (string, string) {
	switch {
	case x < 0:
		return "off", ""
	case x == 0:
		return "0", ""
	}
	scaled, suffix := float64(x), ""
	for i := 0; i < len(sizeSymbols) && scaled >= float64(Kibi); i++ {
		scaled /= float64(Kibi)
		suffix = sizeSymbols[i:i+1] + "i"
	}
	if math.Floor(scaled) == scaled {
		return fmt.Sprintf("%.0f", scaled), suffix
	}
	return fmt.Sprintf("%.3f", scaled), suffix
}

// String turns SizeSuffix into a string
func (x SizeSuffix) String() string {
	val, suffix := x.string()
	return val + suffix
}

// ByteShortUnit turns SizeSuffix into a string like "4 MiB"
func (x SizeSuffix) ByteShortUnit() string {
	val, suffix := x.string()
	if val == "off" {
		return val
	}
	return val + " " + suffix + "B"
}

// Set parses a size such as "4M", "64KiB", "512b" or "off".  A bare
// number is in KiB.
func (x *SizeSuffix) Set(s string) error {
	if s == "" {
		return errors.New("empty string")
	}
	num := strings.ToLower(s)
	if num == "off" {
		*x = -1
		return nil
	}
	bytes := strings.HasSuffix(num, "b")
	num = strings.TrimSuffix(num, "b")
	binary := strings.HasSuffix(num, "i")
	num = strings.TrimSuffix(num, "i")
	multiplier := Kibi
	if bytes && !binary {
		multiplier = SizeSuffixBase
	}
	if num == "" {
		return errors.Errorf("no number in %q", s)
	}
	if i := strings.IndexByte(strings.ToLower(sizeSymbols), num[len(num)-1]); i >= 0 {
		multiplier = Kibi << (10 * i)
		num = num[:len(num)-1]
	} else if binary {
		return errors.Errorf("bad suffix %q", s)
	}
	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return err
	}
	if value < 0 {
		return errors.Errorf("size can't be negative %q", s)
	}
	*x = SizeSuffix(value * float64(multiplier))
	return nil
}

// Type of the value
func (x *SizeSuffix) Type() string {
	return "SizeSuffix"
}
