package crdtstore

import "sort"

// StateVector maps client -> next-clock: a compact summary of "what I
// have" that a peer can send to request a diff.
type StateVector struct {
	m map[ClientID]Clock
}

// NewStateVector returns an empty state vector.
func NewStateVector() *StateVector {
	return &StateVector{m: make(map[ClientID]Clock)}
}

// Get returns the next-clock recorded for client, or 0 if the client is
// unknown to this state vector.
func (sv *StateVector) Get(client ClientID) Clock {
	if sv == nil {
		return 0
	}
	return sv.m[client]
}

// Set records the next-clock for client.
func (sv *StateVector) Set(client ClientID, clock Clock) {
	if sv.m == nil {
		sv.m = make(map[ClientID]Clock)
	}
	sv.m[client] = clock
}

// Clients returns the set of clients this state vector knows about,
// ascending by ID.
func (sv *StateVector) Clients() []ClientID {
	out := make([]ClientID, 0, len(sv.m))
	for c := range sv.m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (sv *StateVector) Clone() *StateVector {
	out := NewStateVector()
	for c, clk := range sv.m {
		out.m[c] = clk
	}
	return out
}

// GreaterOrEqual reports whether sv dominates other componentwise: for
// every client known to other, sv's clock is at least as large. Clients
// absent from sv are treated as clock 0 and therefore fail domination
// unless other's clock for them is also 0.
func (sv *StateVector) GreaterOrEqual(other *StateVector) bool {
	for c, clk := range other.m {
		if sv.Get(c) < clk {
			return false
		}
	}
	return true
}

// Equal reports whether sv and other carry the same non-zero entries.
func (sv *StateVector) Equal(other *StateVector) bool {
	a, b := sv.nonZero(), other.nonZero()
	if len(a) != len(b) {
		return false
	}
	for c, clk := range a {
		if b[c] != clk {
			return false
		}
	}
	return true
}

func (sv *StateVector) nonZero() map[ClientID]Clock {
	out := make(map[ClientID]Clock, len(sv.m))
	for c, clk := range sv.m {
		if clk != 0 {
			out[c] = clk
		}
	}
	return out
}
