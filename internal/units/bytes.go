// Package units handles human-readable byte sizes in configuration files.
package units

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidByteFormat = errors.New(
	"not a valid byte size. Expected an integer with an optional B, KB/KiB, MB/MiB, GB/GiB or TB/TiB suffix",
)

var suffixes = []struct {
	name       string
	multiplier int64
}{
	{"TiB", 1 << 40},
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"TB", 1e12},
	{"GB", 1e9},
	{"MB", 1e6},
	{"KB", 1e3},
	{"B", 1},
}

type Bytes struct {
	Bytes int64
}

func (b *Bytes) UnmarshalYAML(value *yaml.Node) error {
	val, err := DecodeBytes(value.Value)
	if err != nil {
		return err
	}

	*b = val
	return nil
}

func (b Bytes) MarshalYAML() (any, error) {
	return b.String(), nil
}

func DecodeBytes(value string) (Bytes, error) {
	value = strings.TrimSpace(value)

	multiplier := int64(1)
	for _, suffix := range suffixes {
		if strings.HasSuffix(value, suffix.name) {
			multiplier = suffix.multiplier
			value = strings.TrimSpace(strings.TrimSuffix(value, suffix.name))
			break
		}
	}

	if val, err := strconv.ParseInt(value, 10, 64); err == nil && val >= 0 {
		return Bytes{val * multiplier}, nil
	}
	if val, err := strconv.ParseFloat(value, 64); err == nil && val >= 0 {
		return Bytes{int64(val * float64(multiplier))}, nil
	}

	return Bytes{}, fmt.Errorf("%w: got %q", ErrInvalidByteFormat, value)
}

func (b Bytes) String() string {
	base := int64(1024)
	names := []string{"KiB", "MiB", "GiB", "TiB"}

	if b.Bytes < base {
		return fmt.Sprintf("%dB", b.Bytes)
	}

	value, name := float64(b.Bytes), ""
	for _, name = range names {
		value /= float64(base)
		if value < float64(base) {
			break
		}
	}
	return fmt.Sprintf("%.2f%s", value, name)
}
