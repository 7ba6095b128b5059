package record

// SelectionKind distinguishes the two forms an OffsetSelection can take.
type SelectionKind int

const (
	// Exact requests exactly one record at a specific offset.
	Exact SelectionKind = iota
	// From requests a stream of records starting at (and including) an
	// offset.
	From
)

// OffsetSelection is the cursor a fetch request carries for one partition:
// either Exact(k) for a single record or From(k) for a stream starting at k.
type OffsetSelection struct {
	Kind   SelectionKind
	Offset uint64
}

// NewExact builds an OffsetSelection that matches exactly one offset.
func NewExact(offset uint64) OffsetSelection {
	return OffsetSelection{Kind: Exact, Offset: offset}
}

// NewFrom builds an OffsetSelection that matches any offset >= offset.
func NewFrom(offset uint64) OffsetSelection {
	return OffsetSelection{Kind: From, Offset: offset}
}

// Matches reports whether offset satisfies the selection.
func (s OffsetSelection) Matches(offset uint64) bool {
	switch s.Kind {
	case Exact:
		return offset == s.Offset
	default:
		return offset >= s.Offset
	}
}

// Narrow advances a From selection past offset, returning the narrowed
// selection and true. Exact selections cannot be narrowed (they name a
// single point already consumed by a match) and return ok=false, matching
// the Rust OffsetSelection::narrow's None case for Exact.
func (s OffsetSelection) Narrow(offset uint64) (OffsetSelection, bool) {
	if s.Kind == Exact {
		return OffsetSelection{}, false
	}
	next := offset + 1
	if s.Offset > next {
		next = s.Offset
	}
	return OffsetSelection{Kind: From, Offset: next}, true
}
