package presence

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Registry is the set of peers that the relay reports as online. It is not safe for
// concurrent use: it's owned by the session controller loop.
type Registry[ID constraints.Ordered] struct {
	peers map[ID]struct{}
}

func NewRegistry[ID constraints.Ordered]() *Registry[ID] {
	return &Registry[ID]{peers: make(map[ID]struct{})}
}

// Replaces the whole set with the given list (duplicates are ignored). Returns the peers
// that were not known before and the peers that are gone, both sorted.
func (r *Registry[ID]) Replace(ids []ID) (added []ID, removed []ID) {
	next := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}

	for id := range next {
		if _, found := r.peers[id]; !found {
			added = append(added, id)
		}
	}

	for id := range r.peers {
		if _, found := next[id]; !found {
			removed = append(removed, id)
		}
	}

	r.peers = next

	slices.Sort(added)
	slices.Sort(removed)

	return added, removed
}

// Adds a peer. Returns `false` if the peer was already there.
func (r *Registry[ID]) Add(id ID) bool {
	if _, found := r.peers[id]; found {
		return false
	}

	r.peers[id] = struct{}{}
	return true
}

// Removes a peer. Returns `false` if the peer was not there.
func (r *Registry[ID]) Remove(id ID) bool {
	if _, found := r.peers[id]; !found {
		return false
	}

	delete(r.peers, id)
	return true
}

func (r *Registry[ID]) Contains(id ID) bool {
	_, found := r.peers[id]
	return found
}

func (r *Registry[ID]) Len() int {
	return len(r.peers)
}

// Returns a sorted copy of the set.
func (r *Registry[ID]) Peers() []ID {
	peers := maps.Keys(r.peers)
	slices.Sort(peers)
	return peers
}
