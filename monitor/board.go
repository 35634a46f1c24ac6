package monitor

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
)

// SignalStatus is the latest known outcome for one signal.
type SignalStatus struct {
	Aggregate *iface.SignalAggregate `json:"aggregate,omitempty"`
	GreenTime time.Duration          `json:"-"`
	Error     string                 `json:"error,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// MarshalJSON reports the green time in seconds, like the timing controller does.
func (s SignalStatus) MarshalJSON() ([]byte, error) {
	type status SignalStatus
	return json.Marshal(struct {
		status
		GreenTimeSeconds float64 `json:"green_time_seconds,omitempty"`
	}{status(s), s.GreenTime.Seconds()})
}

// Board keeps the most recent aggregate (or failure) per signal.
type Board struct {
	mu      sync.RWMutex
	signals map[iface.SignalID]SignalStatus
}

func NewBoard() *Board {
	return &Board{signals: make(map[iface.SignalID]SignalStatus)}
}

func (b *Board) Record(agg iface.SignalAggregate, green time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signals[agg.SignalID] = SignalStatus{Aggregate: &agg, GreenTime: green, UpdatedAt: agg.FinalizedAt}
}

// Fail marks a signal's last run as failed. An earlier aggregate is kept.
func (b *Board) Fail(id iface.SignalID, err error, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.signals[id]
	st.Error = err.Error()
	st.UpdatedAt = at
	b.signals[id] = st
}

func (b *Board) Get(id iface.SignalID) (SignalStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.signals[id]
	return st, ok
}

// Snapshot returns the statuses keyed by signal id.
func (b *Board) Snapshot() map[iface.SignalID]SignalStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[iface.SignalID]SignalStatus, len(b.signals))
	for k, v := range b.signals {
		out[k] = v
	}
	return out
}

// Latest returns the recorded aggregates ordered by signal id.
func (b *Board) Latest() []iface.SignalAggregate {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]iface.SignalAggregate, 0, len(b.signals))
	for _, st := range b.signals {
		if st.Aggregate != nil {
			out = append(out, *st.Aggregate)
		}
	}
	slices.SortFunc(out, func(a, b iface.SignalAggregate) int {
		return a.SignalID.Number() - b.SignalID.Number()
	})
	return out
}
