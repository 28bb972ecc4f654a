package types

// Calendar holds an opaque, previously serialised calendar payload under a
// unique name. The store never interprets calendar contents; "exclude these
// instants" arithmetic is the façade's concern (spec §1 Out of scope).
type Calendar struct {
	Name string
	Data []byte
}
