package domain

// WatchSet is the desired subscription set: the channel ids the operator
// wants tracked. It exists so the reconciler's diff is a pure function of
// two sets instead of inline list arithmetic.
type WatchSet map[string]struct{}

// NewWatchSet builds a WatchSet from channel ids.
func NewWatchSet(ids ...string) WatchSet {
	s := make(WatchSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s WatchSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s WatchSet) Add(id string)    { s[id] = struct{}{} }
func (s WatchSet) Remove(id string) { delete(s, id) }

// Diff returns the ids present in s but absent from other.
func (s WatchSet) Diff(other WatchSet) []string {
	var out []string
	for id := range s {
		if !other.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
