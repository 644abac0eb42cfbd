package banana

// slicerEntry is one user-extensible send-side dispatch rule.
type slicerEntry struct {
	match func(obj any) bool
	build func(obj any) Slicer
}

// Registry is the type-tag <-> factory dispatch table design note §9
// asks for in place of banana.py's growing if/elif chain of
// slicer_for_object. One Registry belongs to exactly one Connection,
// since the vocabulary control slicers/unslicers it builds close over
// that connection's vocabulary tables.
type Registry struct {
	slicers   []slicerEntry
	unslicers map[string]func(reg *Registry) Unslicer

	outVocab *outboundVocab
	inVocab  *inboundVocab
}

// NewRegistry builds a Registry with the built-in list/tuple/dict/
// vocabulary-control types registered, wired to the given connection's
// vocabulary tables.
func NewRegistry(out *outboundVocab, in *inboundVocab) *Registry {
	r := &Registry{
		unslicers: make(map[string]func(reg *Registry) Unslicer),
		outVocab:  out,
		inVocab:   in,
	}
	r.registerBuiltins()
	return r
}

// RegisterSlicer adds a send-side dispatch rule, consulted after the
// built-in types when SlicerForObject doesn't recognize obj directly.
// Rules are tried in registration order; the first match wins.
func (r *Registry) RegisterSlicer(match func(obj any) bool, build func(obj any) Slicer) {
	r.slicers = append(r.slicers, slicerEntry{match: match, build: build})
}

// RegisterUnslicer adds (or replaces) the factory used when an OPEN
// sequence's open-type tag equals tag.
func (r *Registry) RegisterUnslicer(tag string, build func(reg *Registry) Unslicer) {
	r.unslicers[tag] = build
}

// SlicerForObject returns the Slicer responsible for obj, or a
// Violation (not a fatal error — spec.md §4.4, "unrecognized object
// types are a Violation, not a fatal error") if nothing claims it.
func (r *Registry) SlicerForObject(obj any) (Slicer, error) {
	switch v := obj.(type) {
	case []any:
		return newListSlicer(v), nil
	case Tuple:
		return newTupleSlicer(v), nil
	case *Dict:
		return newDictSlicer(v), nil
	case *replaceVocabRequest:
		return newReplaceVocabSlicer(v.strings, r.outVocab), nil
	case *addVocabRequest:
		return newAddVocabSlicer(v.value, r.outVocab), nil
	}
	for _, e := range r.slicers {
		if e.match(obj) {
			return e.build(obj), nil
		}
	}
	return nil, NewViolation("no slicer registered for type %T", obj)
}

// NewUnslicer instantiates the Unslicer registered for tag, if any.
func (r *Registry) NewUnslicer(tag string) (Unslicer, bool) {
	build, ok := r.unslicers[tag]
	if !ok {
		return nil, false
	}
	return build(r), true
}

func (r *Registry) registerBuiltins() {
	r.RegisterUnslicer("list", func(reg *Registry) Unslicer { return newListUnslicer(reg) })
	r.RegisterUnslicer("tuple", func(reg *Registry) Unslicer { return newTupleUnslicer(reg) })
	r.RegisterUnslicer("dict", func(reg *Registry) Unslicer { return newDictUnslicer(reg) })
	r.RegisterUnslicer("vocab-replace", func(reg *Registry) Unslicer { return newVocabReplaceUnslicer(reg) })
	r.RegisterUnslicer("vocab-add", func(reg *Registry) Unslicer { return newVocabAddUnslicer(reg) })
}
