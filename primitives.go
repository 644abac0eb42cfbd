package banana

// Tuple is a fixed-arity ordered sequence, distinguished on the wire
// from a plain list only by its open-type tag ("tuple" vs "list"), the
// same way banana.py keeps separate Slicer classes for list and tuple
// even though both walk an ordered Python sequence.
type Tuple []any

// listSlicer walks a Go slice as an ordered "list" compound.
type listSlicer struct {
	items []any
	idx   int
}

func newListSlicer(items []any) *listSlicer { return &listSlicer{items: items} }

func (s *listSlicer) Init() error { return nil }

func (s *listSlicer) Next() (Step, error) {
	if s.idx >= len(s.items) {
		return doneStep()
	}
	v := s.items[s.idx]
	s.idx++
	return itemStep(v)
}

func (s *listSlicer) SendOpen() bool                       { return true }
func (s *listSlicer) TrackReferences() bool                { return true }
func (s *listSlicer) Streamable() bool                     { return true }
func (s *listSlicer) RegisterReference(uint64, any)        {}
func (s *listSlicer) ChildAborted(v *Violation) *Violation  { return v }
func (s *listSlicer) Describe() string                     { return "<list>" }
func (s *listSlicer) OpenType() []any                       { return []any{"list"} }

// tupleSlicer is listSlicer's twin for the "tuple" open-type.
type tupleSlicer struct {
	items Tuple
	idx   int
}

func newTupleSlicer(items Tuple) *tupleSlicer { return &tupleSlicer{items: items} }

func (s *tupleSlicer) Init() error { return nil }

func (s *tupleSlicer) Next() (Step, error) {
	if s.idx >= len(s.items) {
		return doneStep()
	}
	v := s.items[s.idx]
	s.idx++
	return itemStep(v)
}

func (s *tupleSlicer) SendOpen() bool                      { return true }
func (s *tupleSlicer) TrackReferences() bool               { return true }
func (s *tupleSlicer) Streamable() bool                    { return true }
func (s *tupleSlicer) RegisterReference(uint64, any)       {}
func (s *tupleSlicer) ChildAborted(v *Violation) *Violation { return v }
func (s *tupleSlicer) Describe() string                    { return "<tuple>" }
func (s *tupleSlicer) OpenType() []any                      { return []any{"tuple"} }

// listUnslicer reassembles a "list" compound back into a []any.
type listUnslicer struct {
	baseUnslicer
	items []any
}

func newListUnslicer(reg *Registry) *listUnslicer {
	return &listUnslicer{baseUnslicer: baseUnslicer{reg: reg}}
}

func (u *listUnslicer) ReceiveChild(obj any) error {
	u.items = append(u.items, obj)
	return nil
}

func (u *listUnslicer) ReceiveClose() (any, error) {
	if u.items == nil {
		return []any{}, nil
	}
	return u.items, nil
}

func (u *listUnslicer) Describe() string { return "<list>" }

// tupleUnslicer reassembles a "tuple" compound back into a Tuple.
type tupleUnslicer struct {
	baseUnslicer
	items Tuple
}

func newTupleUnslicer(reg *Registry) *tupleUnslicer {
	return &tupleUnslicer{baseUnslicer: baseUnslicer{reg: reg}}
}

func (u *tupleUnslicer) ReceiveChild(obj any) error {
	u.items = append(u.items, obj)
	return nil
}

func (u *tupleUnslicer) ReceiveClose() (any, error) {
	if u.items == nil {
		return Tuple{}, nil
	}
	return u.items, nil
}

func (u *tupleUnslicer) Describe() string { return "<tuple>" }
