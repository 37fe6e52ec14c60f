package sequencer

import (
	"encoding/json"
)

// RowState is the saved form of one row. Rows are matched by position when a
// pattern is loaded; Name is kept for display.
type RowState struct {
	Name   string  `json:"name"`
	Volume float64 `json:"vol"`
	Mute   bool    `json:"mute"`
	Solo   bool    `json:"solo"`
	Steps  []bool  `json:"steps"`
}

// Pattern is an ordered list of row states.
type Pattern []RowState

// Triggered returns the indexes of rows that play on step, applying the same
// mute/solo gate as the live sequencer.
func (p Pattern) Triggered(step int) []int {
	anySolo := false
	for _, r := range p {
		anySolo = anySolo || r.Solo
	}
	var out []int
	for i, r := range p {
		on := step >= 0 && step < len(r.Steps) && r.Steps[step]
		if fires(on, r.Mute, r.Solo, anySolo) {
			out = append(out, i)
		}
	}
	return out
}

func (p Pattern) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func UnmarshalPattern(data []byte) (Pattern, error) {
	var p Pattern
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Snapshot captures volume, mute, solo and steps of every row in order.
func (q *Sequencer) Snapshot() Pattern {
	q.mu.Lock()
	defer q.mu.Unlock()
	p := make(Pattern, len(q.rows))
	for i, r := range q.rows {
		steps := make([]bool, NumSteps)
		copy(steps, r.steps[:])
		p[i] = RowState{
			Name:   r.name,
			Volume: r.gain.Value(),
			Mute:   r.muted,
			Solo:   r.soloed,
			Steps:  steps,
		}
	}
	return p
}

// Load applies p row by row. Rows beyond the shorter of the two lengths are
// ignored. A row state without steps keeps the current steps; a shorter step
// list clears the remaining steps.
func (q *Sequencer) Load(p Pattern) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := min(len(p), len(q.rows))
	for i := 0; i < n; i++ {
		d, r := p[i], q.rows[i]
		r.gain.Set(d.Volume)
		r.muted = d.Mute
		r.soloed = d.Solo
		if len(d.Steps) > 0 {
			var steps [NumSteps]bool
			copy(steps[:], d.Steps)
			r.steps = steps
		}
	}
}
