// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r3status

import "fmt"

// Row is one checklist line: a (class, key, condition) triple and whether the
// condition was seen in the latest poll cycle.
type Row struct {
	Section     string      `json:"section" yaml:"section"`
	Class       DeviceClass `json:"class" yaml:"class"`
	Key         string      `json:"key" yaml:"key"`
	Mask        uint16      `json:"mask" yaml:"mask"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"state" yaml:"state"`
	Expected    string      `json:"expected" yaml:"expected"`
	Actual      string      `json:"actual" yaml:"actual"`
	Observed    bool        `json:"observed" yaml:"observed"`
}

// RowKey identifies a row.
type RowKey struct {
	Class DeviceClass
	Key   string
	Mask  uint16
}

// ID returns the identity of the row.
func (r Row) ID() RowKey {
	return RowKey{Class: r.Class, Key: r.Key, Mask: r.Mask}
}

// Section returns the section label of a (class, key) pair.
func Section(c DeviceClass, key string) string {
	return fmt.Sprintf("%s %q", c.Label(), key)
}

// BuildChecklist emits one row per mask table entry for every grouped key,
// classes in checklist order. Zero-mask rows are included.
func BuildChecklist(groups Groups) []Row {
	var rows []Row
	for _, c := range Classes {
		table := tableFor(c)
		for _, e := range groups[c] {
			section := Section(c, e.Key)
			for _, cond := range table {
				rows = append(rows, Row{
					Section:     section,
					Class:       c,
					Key:         e.Key,
					Mask:        cond.Mask,
					Name:        cond.Name,
					Description: cond.Description,
					Expected:    FormatCode(cond.Mask),
				})
			}
		}
	}
	return rows
}

// SectionRows is a contiguous block of rows sharing a section label.
type SectionRows struct {
	Name string `json:"name" yaml:"name"`
	Rows []Row  `json:"rows" yaml:"rows"`
}

// GroupSections groups rows by section in order of first appearance.
func GroupSections(rows []Row) []SectionRows {
	var sections []SectionRows
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.Section]
		if !ok {
			i = len(sections)
			index[r.Section] = i
			sections = append(sections, SectionRows{Name: r.Section})
		}
		sections[i].Rows = append(sections[i].Rows, r)
	}
	return sections
}
