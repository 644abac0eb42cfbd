package banana

import "testing"

func TestRegistryBuiltinSlicers(t *testing.T) {
	reg := NewRegistry(newOutboundVocab(), newInboundVocab())

	tests := []struct {
		name string
		obj  any
		tag  string
	}{
		{"list", []any{1}, "list"},
		{"tuple", Tuple{1}, "tuple"},
		{"dict", NewDict(), "dict"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := reg.SlicerForObject(tc.obj)
			if err != nil {
				t.Fatalf("SlicerForObject(%#v): %v", tc.obj, err)
			}
			ot := s.OpenType()
			if len(ot) != 1 || ot[0] != tc.tag {
				t.Fatalf("OpenType() = %#v, want [%q]", ot, tc.tag)
			}
		})
	}
}

func TestRegistryUnrecognizedTypeIsViolation(t *testing.T) {
	reg := NewRegistry(newOutboundVocab(), newInboundVocab())
	_, err := reg.SlicerForObject(struct{ X int }{1})
	if _, ok := err.(*Violation); !ok {
		t.Fatalf("expected a *Violation for an unregistered type, got %T (%v)", err, err)
	}
}

func TestRegistryUserExtension(t *testing.T) {
	reg := NewRegistry(newOutboundVocab(), newInboundVocab())
	type point struct{ x, y int64 }

	reg.RegisterSlicer(
		func(obj any) bool { _, ok := obj.(point); return ok },
		func(obj any) Slicer { p := obj.(point); return newTupleSlicer(Tuple{p.x, p.y}) },
	)

	s, err := reg.SlicerForObject(point{1, 2})
	if err != nil {
		t.Fatalf("SlicerForObject(point): %v", err)
	}
	if s.Describe() != "<tuple>" {
		t.Fatalf("expected the point to dispatch through tupleSlicer, got %s", s.Describe())
	}
}

func TestRegistryUnknownOpenTypeTag(t *testing.T) {
	reg := NewRegistry(newOutboundVocab(), newInboundVocab())
	if _, ok := reg.NewUnslicer("no-such-tag"); ok {
		t.Fatalf("NewUnslicer should report false for an unregistered tag")
	}
}
