package banana

import (
	"math"
	"math/big"
	"testing"
)

// pipeThroughConnection feeds encoded via transport writes from sender
// into receiver, one byte at a time, exercising chunk-boundary
// independence (spec.md §8 scenario 6).
func pipeThroughConnection(t *testing.T, obj any) []any {
	t.Helper()
	senderTransport := &fakeTransport{}
	var received []any
	sender := NewConnection(senderTransport, Config{OnObject: func(any) {}})
	receiver := NewConnection(&fakeTransport{}, Config{OnObject: func(o any) { received = append(received, o) }})
	sender.Start()
	receiver.Start()

	sender.Send(obj)
	for _, chunk := range senderTransport.written {
		for _, b := range chunk {
			receiver.DataReceived([]byte{b})
		}
	}
	return received
}

func TestScenarioIntegerRoundTrip(t *testing.T) {
	got := pipeThroughConnection(t, int64(5))
	if len(got) != 1 || got[0] != int64(5) {
		t.Fatalf("got %#v, want [5]", got)
	}
}

func TestScenarioNegativeIntegerRoundTrip(t *testing.T) {
	got := pipeThroughConnection(t, int64(-5))
	if len(got) != 1 || got[0] != int64(-5) {
		t.Fatalf("got %#v, want [-5]", got)
	}
}

func TestScenarioStringRoundTrip(t *testing.T) {
	got := pipeThroughConnection(t, "hi")
	if len(got) != 1 || got[0] != "hi" {
		t.Fatalf("got %#v, want [hi]", got)
	}
}

func TestScenarioTupleRoundTripByteAtATime(t *testing.T) {
	got := pipeThroughConnection(t, Tuple{int64(1), int64(2)})
	if len(got) != 1 {
		t.Fatalf("got %d objects, want exactly 1", len(got))
	}
	tup, ok := got[0].(Tuple)
	if !ok || len(tup) != 2 || tup[0] != int64(1) || tup[1] != int64(2) {
		t.Fatalf("got %#v, want Tuple{1, 2}", got[0])
	}
}

func TestScenarioAbortMidCompoundThenNextObjectUnaffected(t *testing.T) {
	senderTransport := &fakeTransport{}
	var received []any
	sender := NewConnection(senderTransport, Config{OnObject: func(any) {}})
	receiver := NewConnection(&fakeTransport{}, Config{OnObject: func(o any) { received = append(received, o) }})
	sender.Start()
	receiver.Start()

	// Manually drive the wire: OPEN, one child, ABORT, no CLOSE — then a
	// perfectly ordinary next top-level object.
	var buf []byte
	buf = encodeToken(buf, tOpen, 0, nil)
	buf = encodeToken(buf, tString, 4, []byte("list"))
	buf = encodeToken(buf, tInt, 1, nil)
	buf = encodeToken(buf, tAbort, 0, nil)
	buf = encodeToken(buf, tInt, 77, nil)
	receiver.DataReceived(buf)

	if len(received) != 1 || received[0] != int64(77) {
		t.Fatalf("got %#v, want only int64(77) delivered after the aborted compound", received)
	}
}

func TestScenarioIntegerLongUnification(t *testing.T) {
	// A number large enough to require LONGINT on the wire must still
	// compare equal, as a Dict key, to the same value handed in as an
	// int64 — the round-trip invariant's explicit "modulo integer/long
	// unification" carve-out.
	const n = int64(1) << 40 // exceeds INT/NEG's 31-bit range, forced onto the wire as LONGINT

	got := pipeThroughConnection(t, n)
	if len(got) != 1 {
		t.Fatalf("got %d objects, want 1", len(got))
	}
	big1, ok := got[0].(*big.Int)
	if !ok {
		t.Fatalf("got %#v, want *big.Int (decoded from a LONGINT token)", got[0])
	}
	if !dictEqual(big1, n) {
		t.Fatalf("dictEqual(%v, %v) = false, want true (integer/long unification)", big1, n)
	}
}

func TestScenarioFloatSpecialValuesRoundTrip(t *testing.T) {
	tests := []float64{0, math.Copysign(0, -1), math.Inf(1), math.Inf(-1), math.NaN()}
	for _, f := range tests {
		got := pipeThroughConnection(t, f)
		if len(got) != 1 {
			t.Fatalf("got %d objects for %v, want 1", len(got), f)
		}
		gf := got[0].(float64)
		if math.IsNaN(f) {
			if !math.IsNaN(gf) {
				t.Fatalf("NaN was not preserved: got %v", gf)
			}
			continue
		}
		if math.Float64bits(gf) != math.Float64bits(f) {
			t.Fatalf("got %v (bits %x), want %v (bits %x)", gf, math.Float64bits(gf), f, math.Float64bits(f))
		}
	}
}

func TestScenarioEmptyAndNestedCompounds(t *testing.T) {
	got := pipeThroughConnection(t, []any{[]any{}, Tuple{[]any{int64(1)}}})
	if len(got) != 1 {
		t.Fatalf("got %d objects, want 1", len(got))
	}
	outer, ok := got[0].([]any)
	if !ok || len(outer) != 2 {
		t.Fatalf("got %#v", got[0])
	}
	if inner, ok := outer[0].([]any); !ok || len(inner) != 0 {
		t.Fatalf("outer[0] = %#v, want an empty list", outer[0])
	}
	tup, ok := outer[1].(Tuple)
	if !ok || len(tup) != 1 {
		t.Fatalf("outer[1] = %#v, want a one-element Tuple", outer[1])
	}
}

func TestScenarioSequenceOrderedAcrossViolation(t *testing.T) {
	senderTransport := &fakeTransport{}
	var received []any
	sender := NewConnection(senderTransport, Config{OnObject: func(any) {}})
	receiver := NewConnection(&fakeTransport{}, Config{OnObject: func(o any) { received = append(received, o) }})
	sender.Start()
	receiver.Start()

	sender.Send(int64(1))
	// object 2 is rejected on the receive side: unknown open-type
	var buf []byte
	buf = encodeToken(buf, tOpen, 0, nil)
	buf = encodeToken(buf, tString, 7, []byte("unknown"))
	buf = encodeToken(buf, tClose, 0, nil)
	senderTransport.written = append(senderTransport.written, buf)
	sender.Send(int64(3))

	for _, chunk := range senderTransport.written {
		receiver.DataReceived(chunk)
	}

	if len(received) != 2 || received[0] != int64(1) || received[1] != int64(3) {
		t.Fatalf("got %#v, want [1, 3] (object 2 dropped, order preserved)", received)
	}
}

func TestVocabularyAddIdempotentBeforeFlush(t *testing.T) {
	transport := &fakeTransport{}
	c := NewConnection(transport, Config{OnObject: func(any) {}})
	c.Start()

	c.pipeline.Pause() // hold the first add in the queue so neither call flushes
	c.AddToOutgoingVocabulary("x")
	c.AddToOutgoingVocabulary("x") // duplicate before the first flushes: must coalesce
	if err := c.pipeline.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	opens := 0
	for _, w := range transport.written {
		_, typ, _, ok, _ := decodeHeader(w)
		if ok && typ == tOpen {
			opens++
		}
	}
	if opens != 1 {
		t.Fatalf("got %d OPEN sequences, want exactly 1 (duplicate add should coalesce)", opens)
	}
}
