package banana

import (
	"testing"
	"time"
)

type fakeTransport struct {
	written [][]byte
	lost    bool
	lostErr error
}

func (f *fakeTransport) Write(p []byte) error {
	f.written = append(f.written, append([]byte(nil), p...))
	return nil
}

func (f *fakeTransport) LoseConnection(reason error) error {
	f.lost = true
	f.lostErr = reason
	return nil
}

func TestConnectionSendReceiveRoundTrip(t *testing.T) {
	aTransport := &fakeTransport{}
	bTransport := &fakeTransport{}

	var received []any
	a := NewConnection(aTransport, Config{OnObject: func(obj any) {}})
	b := NewConnection(bTransport, Config{OnObject: func(obj any) { received = append(received, obj) }})
	a.Start()
	b.Start()

	a.Send([]any{int64(1), "two", Tuple{int64(3)}})
	for _, chunk := range aTransport.written {
		b.DataReceived(chunk)
	}

	if len(received) != 1 {
		t.Fatalf("got %d objects, want 1", len(received))
	}
	list, ok := received[0].([]any)
	if !ok || len(list) != 3 {
		t.Fatalf("got %#v, want a 3-element list", received[0])
	}
	if list[0] != int64(1) || list[1] != "two" {
		t.Fatalf("got %#v", list)
	}
	tup, ok := list[2].(Tuple)
	if !ok || len(tup) != 1 || tup[0] != int64(3) {
		t.Fatalf("got %#v, want Tuple{3}", list[2])
	}
}

func TestConnectionPingAnsweredWithPong(t *testing.T) {
	transport := &fakeTransport{}
	c := NewConnection(transport, Config{OnObject: func(any) {}})
	c.Start()

	ping := encodeToken(nil, tPing, 5, nil)
	c.DataReceived(ping)

	if len(transport.written) != 1 {
		t.Fatalf("got %d writes, want a single PONG", len(transport.written))
	}
	tok, typ, _, ok, err := decodeHeader(transport.written[0])
	if err != nil || !ok || typ != tPong || tok != 5 {
		t.Fatalf("got header=%d typ=0x%02x ok=%v err=%v, want header=5 typ=PONG", tok, typ, ok, err)
	}
}

func TestConnectionPopulateVocabularyCompresses(t *testing.T) {
	transport := &fakeTransport{}
	c := NewConnection(transport, Config{OnObject: func(any) {}})
	c.PopulateVocabulary([]string{"hello"})
	c.Start()

	c.Send("hello")
	if len(transport.written) != 1 {
		t.Fatalf("got %d writes, want 1", len(transport.written))
	}
	_, typ, _, _, _ := decodeHeader(transport.written[0])
	if typ != tVocab {
		t.Fatalf("expected a VOCAB token once the string is seeded, got type 0x%02x", typ)
	}
}

func TestConnectionDisconnectTimeout(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	transport := &fakeTransport{}
	lostCalled := false
	c := NewConnection(transport, Config{
		OnObject:          func(any) {},
		DisconnectTimeout: 10 * time.Second,
		Scheduler:         clock,
		OnConnectionLost:  func(error) { lostCalled = true },
	})
	c.Start()

	clock.Advance(5 * time.Second)
	if lostCalled {
		t.Fatalf("disconnect fired too early")
	}

	clock.Advance(6 * time.Second)
	if !lostCalled {
		t.Fatalf("expected the disconnect timeout to fire after %s with no data", 11*time.Second)
	}
}

func TestConnectionKeepaliveSendsPing(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	transport := &fakeTransport{}
	c := NewConnection(transport, Config{
		OnObject:         func(any) {},
		KeepaliveTimeout: 10 * time.Second,
		Scheduler:        clock,
	})
	c.Start()

	clock.Advance(11 * time.Second)
	if len(transport.written) == 0 {
		t.Fatalf("expected a keepalive PING to have been sent")
	}
	_, typ, _, _, _ := decodeHeader(transport.written[0])
	if typ != tPing {
		t.Fatalf("expected a PING, got type 0x%02x", typ)
	}
}

func TestConnectionPeerErrorDoesNotEchoError(t *testing.T) {
	transport := &fakeTransport{}
	lost := false
	c := NewConnection(transport, Config{
		OnObject:         func(any) {},
		OnConnectionLost: func(error) { lost = true },
	})
	c.Start()

	errTok := encodeToken(nil, tError, uint64(len("boom")), []byte("boom"))
	c.DataReceived(errTok)

	if !lost {
		t.Fatalf("expected ConnectionLost to have been called")
	}
	if len(transport.written) != 0 {
		t.Fatalf("must not echo an ERROR back for the peer's own ERROR, wrote %d tokens", len(transport.written))
	}
	if !transport.lost {
		t.Fatalf("expected the transport to have been dropped")
	}
}

func TestConnectionLocalDecodeErrorEchoesError(t *testing.T) {
	transport := &fakeTransport{}
	c := NewConnection(transport, Config{OnObject: func(any) {}})
	c.Start()

	// an unrecognized type byte is a fatal local decode error
	c.DataReceived([]byte{0x00, 0xfe})

	found := false
	for _, w := range transport.written {
		_, typ, _, ok, _ := decodeHeader(w)
		if ok && typ == tError {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an ERROR token to have been written back, wrote %#v", transport.written)
	}
}
