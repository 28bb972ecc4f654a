package types

// JobDataMap is the map of data carried by a job or trigger. It tracks two
// pieces of state the façade is responsible for maintaining and the store is
// responsible for honouring: a dirty flag, gating whether the on-disk blob is
// rewritten on update (spec §4.2), and a set of transient keys, stripped
// before serialisation in either codec mode.
//
// Supported value types are string, int64, float64, bool, and []byte in
// binary codec mode, and string only in properties mode. Any other concrete
// type is rejected by the codec at encode time.
type JobDataMap struct {
	values    map[string]any
	dirty     bool
	transient map[string]bool
}

// NewJobDataMap returns an empty, clean JobDataMap.
func NewJobDataMap() *JobDataMap {
	return &JobDataMap{values: make(map[string]any)}
}

// FromMap builds a JobDataMap from a plain map, marked clean.
func FromMap(m map[string]any) *JobDataMap {
	jdm := NewJobDataMap()
	for k, v := range m {
		jdm.values[k] = v
	}
	return jdm
}

// Put sets key to value and marks the map dirty.
func (m *JobDataMap) Put(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	m.values[key] = value
	m.dirty = true
}

// Get returns the value for key and whether it was present.
func (m *JobDataMap) Get(key string) (any, bool) {
	if m.values == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Remove deletes key from the map and marks the map dirty if it was present.
func (m *JobDataMap) Remove(key string) {
	if m.values == nil {
		return
	}
	if _, ok := m.values[key]; ok {
		delete(m.values, key)
		m.dirty = true
	}
}

// MarkTransient flags key as transient: present in the in-memory map for the
// duration of one job execution but never persisted.
func (m *JobDataMap) MarkTransient(key string) {
	if m.transient == nil {
		m.transient = make(map[string]bool)
	}
	m.transient[key] = true
}

// IsTransient reports whether key was marked transient.
func (m *JobDataMap) IsTransient(key string) bool {
	return m.transient != nil && m.transient[key]
}

// Keys returns the map's keys in no particular order.
func (m *JobDataMap) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of entries, including transient ones.
func (m *JobDataMap) Len() int {
	return len(m.values)
}

// Dirty reports whether the map has been mutated since it was loaded or last
// marked clean.
func (m *JobDataMap) Dirty() bool {
	return m.dirty
}

// MarkClean clears the dirty flag; used by the façade after a successful
// persist, and by the store immediately after loading a map from disk.
func (m *JobDataMap) MarkClean() {
	m.dirty = false
}

// WithoutTransient returns a copy of the map's entries with transient keys
// removed, as required before serialisation in either codec mode (spec §4.2).
func (m *JobDataMap) WithoutTransient() map[string]any {
	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		if m.IsTransient(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Equal reports whether two maps hold the same persisted (non-transient)
// entries. Used by round-trip tests (spec §8 invariant 7/8).
func (m *JobDataMap) Equal(other *JobDataMap) bool {
	if m == nil || other == nil {
		return m == other
	}
	a, b := m.WithoutTransient(), other.WithoutTransient()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok {
			return false
		}
		if !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
