// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r3status

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// MatchMode selects how decoded conditions are joined to checklist rows.
type MatchMode uint8

const (
	// MatchByIdentity observes a row only from conditions decoded for the
	// same class and key with the same mask.
	MatchByIdentity MatchMode = iota
	// MatchByDescription observes a row when its description was decoded for
	// any key this cycle. The observed code is looked up by description.
	MatchByDescription
)

func (m MatchMode) String() string {
	if m == MatchByDescription {
		return "description"
	}
	return "identity"
}

// ParseMatchMode parses "identity" or "description". Empty means identity.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "identity":
		return MatchByIdentity, nil
	case "description":
		return MatchByDescription, nil
	default:
		return MatchByIdentity, fmt.Errorf("unknown match mode %q (want identity or description)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m MatchMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MatchMode) UnmarshalText(text []byte) error {
	parsed, err := ParseMatchMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Outcome tags the result of reading one register.
type Outcome uint8

const (
	OutcomeOK Outcome = iota
	OutcomeSentinel
	OutcomeReadFailure
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSentinel:
		return "sentinel"
	case OutcomeReadFailure:
		return "read_failure"
	case OutcomeMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, c := range []Outcome{OutcomeOK, OutcomeSentinel, OutcomeReadFailure, OutcomeMalformed} {
		if c.String() == string(text) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Observed reports whether the outcome contributes conditions to a cycle.
func (o Outcome) Observed() bool {
	return o == OutcomeOK || o == OutcomeSentinel
}

// Reading is the latest result for one (class, key) pair.
type Reading struct {
	Class      DeviceClass `json:"class" yaml:"class"`
	Key        string      `json:"key" yaml:"key"`
	Address    string      `json:"address" yaml:"address"`
	Outcome    Outcome     `json:"outcome" yaml:"outcome"`
	Value      uint16      `json:"value" yaml:"value"`
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Err        string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Aggregate collects one poll cycle's decoded conditions by class and key.
// It is built fresh every cycle and never carries state between cycles.
type Aggregate struct {
	conditions map[DeviceClass]map[string][]Condition
	readings   []Reading
}

// NewAggregate returns an empty aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{conditions: make(map[DeviceClass]map[string][]Condition)}
}

// Record adds a reading. Only OK and sentinel readings contribute conditions;
// every reading is kept for display.
func (a *Aggregate) Record(r Reading) {
	a.readings = append(a.readings, r)
	if !r.Outcome.Observed() {
		return
	}
	byKey := a.conditions[r.Class]
	if byKey == nil {
		byKey = make(map[string][]Condition)
		a.conditions[r.Class] = byKey
	}
	byKey[r.Key] = append(byKey[r.Key], r.Conditions...)
}

// Conditions returns the conditions recorded for a class and key.
func (a *Aggregate) Conditions(c DeviceClass, key string) []Condition {
	if a == nil {
		return nil
	}
	return a.conditions[c][key]
}

// Readings returns the readings in recording order.
func (a *Aggregate) Readings() []Reading {
	if a == nil {
		return nil
	}
	return a.readings
}

// Descriptions returns the flattened set of descriptions seen this cycle.
func (a *Aggregate) Descriptions() map[string]bool {
	set := make(map[string]bool)
	if a == nil {
		return set
	}
	for _, byKey := range a.conditions {
		for _, conds := range byKey {
			for _, cond := range conds {
				set[cond.Description] = true
			}
		}
	}
	return set
}

// Summary describes the checklist as of one reconciliation.
type Summary struct {
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
	Cycle       uint64    `json:"cycle" yaml:"cycle"`
	Total       int       `json:"total" yaml:"total"`
	Observed    int       `json:"observed" yaml:"observed"`
	NotObserved int       `json:"not_observed" yaml:"not_observed"`
}

// Snapshot is an immutable copy of the board.
type Snapshot struct {
	Summary  Summary   `json:"summary" yaml:"summary"`
	Mode     MatchMode `json:"match_mode" yaml:"match_mode"`
	Rows     []Row     `json:"rows" yaml:"rows"`
	Readings []Reading `json:"readings" yaml:"readings"`
}

// Sections groups the snapshot rows by section label.
func (s Snapshot) Sections() []SectionRows {
	return GroupSections(s.Rows)
}

// Board owns the reconciled checklist shared between the poll loop and the
// views. All methods are safe for concurrent use.
type Board struct {
	mu       sync.RWMutex
	mode     MatchMode
	rows     []Row
	codes    map[string]string
	summary  Summary
	readings []Reading
	subs     map[int]chan Snapshot
	nextSub  int
}

// NewBoard creates a board over rows built by BuildChecklist. The rows are
// copied.
func NewBoard(rows []Row, mode MatchMode) *Board {
	b := &Board{
		mode:  mode,
		rows:  make([]Row, len(rows)),
		codes: descriptionCodes(),
		subs:  make(map[int]chan Snapshot),
	}
	copy(b.rows, rows)
	for i := range b.rows {
		b.rows[i].Observed = false
		b.rows[i].Actual = ""
	}
	b.summary = Summary{Total: len(b.rows), NotObserved: len(b.rows)}
	return b
}

// Mode returns the match mode of the board.
func (b *Board) Mode() MatchMode {
	return b.mode
}

// Reconcile marks every row observed or not observed from agg and returns the
// new summary. A nil or empty aggregate leaves every row not observed.
// Reconciling the same aggregate twice yields the same rows.
func (b *Board) Reconcile(agg *Aggregate, at time.Time) Summary {
	var seen map[string]bool
	if b.mode == MatchByDescription {
		seen = agg.Descriptions()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	observed := 0
	for i := range b.rows {
		row := &b.rows[i]
		var hit bool
		var code string
		switch b.mode {
		case MatchByDescription:
			hit = seen[row.Description]
			code = b.codes[row.Description]
		default:
			hit = containsMask(agg.Conditions(row.Class, row.Key), row.Mask)
			code = FormatCode(row.Mask)
		}
		row.Observed = hit
		row.Actual = ""
		if hit {
			row.Actual = code
			observed++
		}
	}

	b.readings = append(b.readings[:0:0], agg.Readings()...)
	b.summary = Summary{
		UpdatedAt:   at,
		Cycle:       b.summary.Cycle + 1,
		Total:       len(b.rows),
		Observed:    observed,
		NotObserved: len(b.rows) - observed,
	}

	b.publishLocked()
	return b.summary
}

func containsMask(conds []Condition, mask uint16) bool {
	if mask == 0 {
		return false
	}
	for _, c := range conds {
		if c.Mask == mask {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy of the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// Summary returns the current summary.
func (b *Board) Summary() Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.summary
}

func (b *Board) snapshotLocked() Snapshot {
	snap := Snapshot{
		Summary:  b.summary,
		Mode:     b.mode,
		Rows:     make([]Row, len(b.rows)),
		Readings: make([]Reading, len(b.readings)),
	}
	copy(snap.Rows, b.rows)
	for i, r := range b.readings {
		r.Conditions = append([]Condition(nil), r.Conditions...)
		snap.Readings[i] = r
	}
	return snap
}

// Subscribe returns a channel receiving a snapshot after every Reconcile,
// starting with the current state. Only the latest snapshot is buffered. The
// returned function unsubscribes and closes the channel.
func (b *Board) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	ch <- b.snapshotLocked()
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

func (b *Board) publishLocked() {
	if len(b.subs) == 0 {
		return
	}
	snap := b.snapshotLocked()
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
