package field

// List is the ordered field sequence of one record.
// Enrichers mutate it in place; the relative order of existing fields is kept.
type List []DataField

// Index returns the position of the first field named name, or -1.
func (l List) Index(name string) int {
	for i := range l {
		if l[i].Name == name {
			return i
		}
	}
	return -1
}

// Get returns the first field named name.
func (l List) Get(name string) (DataField, bool) {
	if i := l.Index(name); i >= 0 {
		return l[i], true
	}
	return DataField{}, false
}

// Append adds f at the end of the list.
func (l *List) Append(f DataField) {
	*l = append(*l, f)
}

// Upsert overwrites the first field with the same name in place, or appends f
// when no such field exists. It reports whether an existing field was replaced.
func (l *List) Upsert(f DataField) bool {
	if i := l.Index(f.Name); i >= 0 {
		(*l)[i] = f
		return true
	}
	l.Append(f)
	return false
}

// Names returns field names in order.
func (l List) Names() []string {
	names := make([]string, len(l))
	for i := range l {
		names[i] = l[i].Name
	}
	return names
}

// Clone returns a shallow copy that can be mutated independently.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	copy(out, l)
	return out
}
