// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r3status

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatCode renders a mask or register value as lowercase hex with a 0x
// prefix and no padding ("0x0", "0x200", "0xffff").
func FormatCode(v uint16) string {
	return "0x" + strconv.FormatUint(uint64(v), 16)
}

// FormatConditions renders decoded conditions as a bracketed list of
// descriptions.
func FormatConditions(conds []Condition) string {
	return "[" + strings.Join(Descriptions(conds), ", ") + "]"
}

// FormatReading renders one reading the way the console output shows it:
//
//	Прибор (device_1 - 100): [Неисправность, Тревога]
func FormatReading(r Reading) string {
	prefix := fmt.Sprintf("%s (%s - %s)", r.Class.ShortLabel(), r.Key, r.Address)
	switch r.Outcome {
	case OutcomeOK, OutcomeSentinel:
		return fmt.Sprintf("%s: %s", prefix, FormatConditions(r.Conditions))
	case OutcomeMalformed:
		return fmt.Sprintf("%s: malformed value: %s", prefix, r.Err)
	default:
		return fmt.Sprintf("%s: read failed: %s", prefix, r.Err)
	}
}

// FormatSummary renders a cycle summary on one line.
func FormatSummary(s Summary) string {
	updated := "never"
	if !s.UpdatedAt.IsZero() {
		updated = s.UpdatedAt.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("Updated: %s | Total: %d | Observed: %d | Not observed: %d",
		updated, s.Total, s.Observed, s.NotObserved)
}
