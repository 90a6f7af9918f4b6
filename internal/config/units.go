package config

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "30s" in YAML and JSON.
// Plain integers are read as nanoseconds.
type Duration time.Duration

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, d.String()), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	return d.set(string(data), true)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar value for duration, got %v", node.Kind)
	}

	return d.set(node.Value, false)
}

func (d *Duration) set(raw string, quoted bool) error {
	s, isString, err := scalar(raw, quoted)
	if err != nil {
		return fmt.Errorf("invalid duration %s: %w", raw, err)
	}

	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	} else if isString {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(n)

	return nil
}

// ByteSize is a byte count written as "10MiB" or "2.5MB" in YAML and JSON.
// Plain integers are read as bytes.
type ByteSize int64

// Int64 returns the number of bytes.
func (b ByteSize) Int64() int64 {
	return int64(b)
}

var byteUnits = []struct {
	name string
	size int64
}{
	{"EiB", 1 << 60},
	{"PiB", 1 << 50},
	{"TiB", 1 << 40},
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
}

// String formats b with the largest IEC unit that fits, e.g. "1.50 MiB".
func (b ByteSize) String() string {
	n := int64(b)
	for _, u := range byteUnits {
		if n >= u.size {
			return fmt.Sprintf("%.2f %s", float64(n)/float64(u.size), u.name)
		}
	}

	return fmt.Sprintf("%d B", n)
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, b.String()), nil
}

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	s, _, err := scalar(string(data), true)
	if err != nil {
		return fmt.Errorf("invalid byte size %s: %w", data, err)
	}

	return b.set(s)
}

func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar value for byte size, got %v", node.Kind)
	}

	return b.set(node.Value)
}

func (b *ByteSize) set(s string) error {
	n, err := parseByteSize(s)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	*b = ByteSize(n)

	return nil
}

// byteMultipliers holds lowercase IEC and SI suffixes.
var byteMultipliers = map[string]int64{
	"b":   1,
	"kib": 1 << 10, "mib": 1 << 20, "gib": 1 << 30, "tib": 1 << 40, "pib": 1 << 50, "eib": 1 << 60,
	"kb": 1e3, "mb": 1e6, "gb": 1e9, "tb": 1e12, "pb": 1e15, "eb": 1e18,
}

// parseByteSize accepts "1024", "1KiB", "2.5MB" and the like. Fractional
// byte counts and values beyond int64 are rejected.
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	i := len(s)
	for i > 0 && (s[i-1] < '0' || s[i-1] > '9') && s[i-1] != '.' {
		i--
	}
	if i == 0 || i == len(s) {
		return 0, fmt.Errorf("malformed size %q", s)
	}

	mult, ok := byteMultipliers[strings.ToLower(s[i:])]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", s[i:])
	}

	val, _, err := big.ParseFloat(s[:i], 10, 256, big.ToNearestEven)
	if err != nil {
		return 0, err
	}
	val.Mul(val, new(big.Float).SetInt64(mult))

	n, acc := val.Int(nil)
	if acc != big.Exact {
		return 0, errors.New("fractional bytes")
	}
	if !n.IsInt64() {
		return 0, errors.New("size overflows int64")
	}

	return n.Int64(), nil
}

// scalar unquotes a JSON string and reports whether raw was one.
func scalar(raw string, quoted bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if quoted && strings.HasPrefix(raw, `"`) {
		s, err := strconv.Unquote(raw)
		return s, true, err
	}

	return raw, false, nil
}
