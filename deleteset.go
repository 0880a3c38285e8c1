package crdtstore

import "sort"

// idRange identifies a tombstoned run of clocks [start, start+len) for a
// single client.
type idRange struct {
	start Clock
	len   uint32
}

func (r idRange) end() Clock { return r.start + Clock(r.len) }

// overlapsOrAdjoins reports whether two ranges on the same client should
// be coalesced into one.
func (r idRange) overlapsOrAdjoins(o idRange) bool {
	return r.start <= o.end() && o.start <= r.end()
}

// DeleteSet is a per-client set of ordered, merged, non-overlapping
// tombstone ranges. It is monotonically grow-only within a session.
type DeleteSet struct {
	ranges map[ClientID][]idRange
}

// NewDeleteSet returns an empty delete set.
func NewDeleteSet() *DeleteSet {
	return &DeleteSet{ranges: make(map[ClientID][]idRange)}
}

// Add records [id.Clock, id.Clock+length) as deleted for id.Client,
// keeping the per-client range list sorted and coalesced.
func (ds *DeleteSet) Add(id ID, length uint32) {
	if length == 0 {
		return
	}
	ds.add(id.Client, idRange{start: id.Clock, len: length})
}

func (ds *DeleteSet) add(client ClientID, r idRange) {
	if ds.ranges == nil {
		ds.ranges = make(map[ClientID][]idRange)
	}
	list := ds.ranges[client]
	list = append(list, r)
	ds.ranges[client] = mergeRanges(list)
}

func mergeRanges(list []idRange) []idRange {
	sort.Slice(list, func(i, j int) bool { return list[i].start < list[j].start })
	out := list[:0:0]
	for _, r := range list {
		if n := len(out); n > 0 && out[n-1].overlapsOrAdjoins(r) {
			last := out[n-1]
			newEnd := last.end()
			if r.end() > newEnd {
				newEnd = r.end()
			}
			out[n-1].len = uint32(newEnd - last.start)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Contains reports whether id falls within any recorded tombstone range
// for its client.
func (ds *DeleteSet) Contains(id ID) bool {
	for _, r := range ds.ranges[id.Client] {
		if r.start <= id.Clock && id.Clock < r.end() {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the delete set carries no ranges at all.
func (ds *DeleteSet) IsEmpty() bool {
	for _, list := range ds.ranges {
		if len(list) > 0 {
			return false
		}
	}
	return true
}

// Merge folds other's ranges into ds.
func (ds *DeleteSet) Merge(other *DeleteSet) {
	if other == nil {
		return
	}
	for client, list := range other.ranges {
		for _, r := range list {
			ds.add(client, r)
		}
	}
}

// Clients returns the clients with at least one range, ascending by ID.
func (ds *DeleteSet) Clients() []ClientID {
	out := make([]ClientID, 0, len(ds.ranges))
	for c, list := range ds.ranges {
		if len(list) > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Ranges returns the sorted, merged ranges recorded for client.
func (ds *DeleteSet) Ranges(client ClientID) []idRange {
	return ds.ranges[client]
}
