package policies

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/zeu5/studybreak-rl/types"
	"github.com/zeu5/studybreak-rl/util"
)

// QTable holds a value for every (state, action) pair, initialised to zero
type QTable struct {
	values [types.Buckets][types.Buckets][types.Buckets][types.Buckets][types.NumActions]float64
}

func NewQTable() *QTable {
	return &QTable{}
}

func (q *QTable) entry(state types.State) *[types.NumActions]float64 {
	return &q.values[state.TimeBucket][state.FatigueBucket][state.FatiguePref][state.BreakBias]
}

func (q *QTable) Get(state types.State, action types.Action) float64 {
	return q.entry(state)[action]
}

func (q *QTable) Set(state types.State, action types.Action, val float64) {
	q.entry(state)[action] = val
}

// Values of all the actions for the state
func (q *QTable) Values(state types.State) [types.NumActions]float64 {
	return *q.entry(state)
}

// Max returns the first action with the highest value
func (q *QTable) Max(state types.State) (types.Action, float64) {
	values := q.entry(state)
	maxAction := types.Continue
	maxVal := values[0]
	for i := 1; i < types.NumActions; i++ {
		if values[i] > maxVal {
			maxAction = types.Action(i)
			maxVal = values[i]
		}
	}
	return maxAction, maxVal
}

// GetAll returns the values of a state by its hash, keyed by action hash
func (q *QTable) GetAll(stateHash string) (map[string]float64, bool) {
	state, err := types.ParseStateHash(stateHash)
	if err != nil {
		return nil, false
	}
	out := make(map[string]float64)
	for _, a := range types.AllActions {
		out[a.Hash()] = q.Get(state, a)
	}
	return out, true
}

func (q *QTable) Clone() *QTable {
	cp := *q
	return &cp
}

// Mean sets every entry to the mean of the corresponding entries of the tables
func (q *QTable) Mean(tables []*QTable) error {
	if len(tables) == 0 {
		return errors.New("no tables to merge")
	}
	n := float64(len(tables))
	for _, s := range types.AllStates() {
		for _, a := range types.AllActions {
			sum := 0.0
			for _, t := range tables {
				sum += t.Get(s, a)
			}
			q.Set(s, a, sum/n)
		}
	}
	return nil
}

// MarshalJSON encodes the table as state hash -> action hash -> value
func (q *QTable) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]float64)
	for _, s := range types.AllStates() {
		values := make(map[string]float64)
		for _, a := range types.AllActions {
			values[a.Hash()] = q.Get(s, a)
		}
		out[s.Hash()] = values
	}
	return json.Marshal(out)
}

func (q *QTable) UnmarshalJSON(data []byte) error {
	in := make(map[string]map[string]float64)
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	next := NewQTable()
	for sHash, values := range in {
		state, err := types.ParseStateHash(sHash)
		if err != nil {
			return err
		}
		for aHash, val := range values {
			i, err := strconv.Atoi(aHash)
			if err != nil {
				return fmt.Errorf("invalid action key %q: %w", aHash, err)
			}
			action, ok := types.ParseAction(i)
			if !ok {
				return fmt.Errorf("invalid action key %q", aHash)
			}
			next.Set(state, action, val)
		}
	}
	*q = *next
	return nil
}

// Record the table as json to the file
func (q *QTable) Record(path string) error {
	return util.WriteJSON(path, q)
}

// Read a table recorded with Record
func (q *QTable) Read(path string) error {
	bs, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}
	if err := json.Unmarshal(bs, q); err != nil {
		return fmt.Errorf("error parsing file: %w", err)
	}
	return nil
}

// Printable renders the greedy action of every state accepted by the filter.
// A nil filter accepts all the states
func (q *QTable) Printable(filter func(types.State) bool) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	header := table.Row{"State"}
	for _, a := range types.AllActions {
		header = append(header, a.Info().Name)
	}
	header = append(header, "Best")
	w.AppendHeader(header)

	for _, s := range types.AllStates() {
		if filter != nil && !filter(s) {
			continue
		}
		row := table.Row{s.Hash()}
		for _, v := range q.Values(s) {
			row = append(row, fmt.Sprintf("%.3f", v))
		}
		best, _ := q.Max(s)
		row = append(row, best.Info().Name)
		w.AppendRow(row)
	}
	return w.Render()
}
