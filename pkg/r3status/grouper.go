// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r3status

import (
	"fmt"
	"strconv"
	"strings"
)

// AddressEntry is one configured register: a free-form key whose name encodes
// the device class, and the register address as written in the config.
type AddressEntry struct {
	Key     string `json:"key" yaml:"key"`
	Address string `json:"address" yaml:"address"`
}

// Blank reports whether the address is empty or whitespace only.
func (e AddressEntry) Blank() bool {
	return strings.TrimSpace(e.Address) == ""
}

// Register parses the trimmed decimal address.
func (e AddressEntry) Register() (uint16, error) {
	addr := strings.TrimSpace(e.Address)
	n, err := strconv.ParseUint(addr, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("key %q: invalid register address %q", e.Key, e.Address)
	}
	return uint16(n), nil
}

// Matches reports whether key belongs to class c.
func Matches(key string, c DeviceClass) bool {
	p := c.Pattern()
	return p != "" && strings.Contains(key, p)
}

// Classify returns every class whose pattern occurs in key, in class order.
// A key with no match returns nil.
func Classify(key string) []DeviceClass {
	var out []DeviceClass
	for _, c := range Classes {
		if Matches(key, c) {
			out = append(out, c)
		}
	}
	return out
}

// ClassOf returns the first class matching key, or Unclassified.
func ClassOf(key string) DeviceClass {
	if classes := Classify(key); len(classes) > 0 {
		return classes[0]
	}
	return Unclassified
}

// Groups maps each class to its configured entries in input order.
type Groups map[DeviceClass][]AddressEntry

// Group partitions entries by class. Entries with a blank address are
// skipped, repeated keys within one class are kept once, and a key matching
// several classes lands in each of them.
func Group(entries []AddressEntry) Groups {
	groups := make(Groups)
	seen := make(map[DeviceClass]map[string]bool)

	for _, e := range entries {
		if e.Blank() {
			continue
		}
		for _, c := range Classify(e.Key) {
			if seen[c] == nil {
				seen[c] = make(map[string]bool)
			}
			if seen[c][e.Key] {
				continue
			}
			seen[c][e.Key] = true
			groups[c] = append(groups[c], e)
		}
	}
	return groups
}

// Keys returns the keys grouped under class c.
func (g Groups) Keys(c DeviceClass) []string {
	keys := make([]string, 0, len(g[c]))
	for _, e := range g[c] {
		keys = append(keys, e.Key)
	}
	return keys
}

// Len returns the number of (class, key) pairs.
func (g Groups) Len() int {
	n := 0
	for _, entries := range g {
		n += len(entries)
	}
	return n
}
