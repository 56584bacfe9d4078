// Package quota tracks per-provider API call budgets per billing period.
package quota

import (
	"sort"
	"time"
)

// Usage is one provider's counter for the current billing period.
type Usage struct {
	Provider    string
	Used        int
	Limit       int
	PeriodStart time.Time
}

// Tracker counts calls per provider and refuses reservations once the
// monthly budget is exhausted. A limit of zero or less means unlimited.
type Tracker struct {
	states map[string]*Usage
}

// NewTracker builds a tracker from configured per-provider limits.
func NewTracker(limits map[string]int) *Tracker {
	t := &Tracker{states: make(map[string]*Usage)}
	for provider, limit := range limits {
		t.states[provider] = &Usage{Provider: provider, Limit: limit}
	}
	return t
}

// Restore overlays persisted counters onto the configured limits. Counters
// for providers without a configured limit are kept as unlimited.
func (t *Tracker) Restore(usages []Usage) {
	for _, u := range usages {
		state := t.ensure(u.Provider)
		state.Used = u.Used
		state.PeriodStart = u.PeriodStart
	}
}

// Reserve reports whether the provider has budget left for one more call.
// Crossing into a new calendar month resets the counter first.
func (t *Tracker) Reserve(provider string, now time.Time) bool {
	state := t.ensure(provider)
	t.rollover(state, now)
	if state.Limit <= 0 {
		return true
	}
	return state.Used < state.Limit
}

// Commit records one call that reached the network. Provider-side quota is
// consumed regardless of local success, so there is no rollback.
func (t *Tracker) Commit(provider string, now time.Time) {
	state := t.ensure(provider)
	t.rollover(state, now)
	state.Used++
}

// Snapshot returns the current counters ordered by provider name.
func (t *Tracker) Snapshot() []Usage {
	out := make([]Usage, 0, len(t.states))
	for _, state := range t.states {
		out = append(out, *state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func (t *Tracker) ensure(provider string) *Usage {
	state, ok := t.states[provider]
	if !ok {
		state = &Usage{Provider: provider}
		t.states[provider] = state
	}
	return state
}

func (t *Tracker) rollover(state *Usage, now time.Time) {
	period := monthStart(now)
	if !state.PeriodStart.Equal(period) {
		state.PeriodStart = period
		state.Used = 0
	}
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
