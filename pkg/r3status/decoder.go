// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r3status

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed reports a register value that cannot be normalized to 16 bits.
var ErrMalformed = errors.New("malformed register value")

// Decode returns the conditions of class c whose mask bits are set in value,
// in table order. SentinelValue decodes to SentinelCondition alone. Zero-mask
// entries never match.
func Decode(value uint16, c DeviceClass) []Condition {
	if value == SentinelValue {
		return []Condition{SentinelCondition}
	}

	var active []Condition
	for _, cond := range tableFor(c) {
		if cond.Mask == 0 {
			continue
		}
		if value&cond.Mask != 0 {
			active = append(active, cond)
		}
	}
	return active
}

// DecodeRaw normalizes raw and decodes it. A value that cannot be normalized
// decodes to an empty set.
func DecodeRaw(raw interface{}, c DeviceClass) []Condition {
	value, err := Normalize(raw)
	if err != nil {
		return nil
	}
	return Decode(value, c)
}

// Normalize converts a register value given as an integer or a string into a
// uint16. Strings with a 0x prefix are parsed as hex, other strings as decimal.
func Normalize(raw interface{}) (uint16, error) {
	switch v := raw.(type) {
	case uint16:
		return v, nil
	case uint8:
		return uint16(v), nil
	case int:
		return fromInt64(int64(v))
	case int32:
		return fromInt64(int64(v))
	case int64:
		return fromInt64(v)
	case uint:
		return fromUint64(uint64(v))
	case uint32:
		return fromUint64(uint64(v))
	case uint64:
		return fromUint64(v)
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("%w: non-integer %v", ErrMalformed, v)
		}
		return fromInt64(int64(v))
	case string:
		return ParseValue(v)
	case []byte:
		if len(v) != 2 {
			return 0, fmt.Errorf("%w: %d bytes", ErrMalformed, len(v))
		}
		return uint16(v[0])<<8 | uint16(v[1]), nil
	case nil:
		return 0, fmt.Errorf("%w: no value", ErrMalformed)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrMalformed, raw)
	}
}

// ParseValue parses "0x05", "0X5" or "5" into a register value.
func ParseValue(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	if digits == "" {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	n, err := strconv.ParseUint(digits, base, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return uint16(n), nil
}

func fromInt64(v int64) (uint16, error) {
	if v < 0 || v > 0xFFFF {
		return 0, fmt.Errorf("%w: %d out of range", ErrMalformed, v)
	}
	return uint16(v), nil
}

func fromUint64(v uint64) (uint16, error) {
	if v > 0xFFFF {
		return 0, fmt.Errorf("%w: %d out of range", ErrMalformed, v)
	}
	return uint16(v), nil
}

// Descriptions returns the descriptions of conds in order.
func Descriptions(conds []Condition) []string {
	out := make([]string, 0, len(conds))
	for _, c := range conds {
		out = append(out, c.Description)
	}
	return out
}
