package banana

import (
	"fmt"
	"strings"
	"time"
)

// epsilon is added to both timeout windows before arming the next
// check, the same slack banana.py's EPSILON gives the keepalive and
// disconnect timers so a timer firing exactly on the deadline doesn't
// spuriously trip before data that arrived in the same tick is
// accounted for.
const epsilon = 100 * time.Millisecond

// Config carries everything a Connection needs beyond the Transport
// it drives.
type Config struct {
	// OnObject is called once per fully-received top-level object. It
	// must be set; a Connection with no OnObject cannot do anything
	// useful with what it receives.
	OnObject func(obj any)
	// OnConnectionLost is called, if set, whenever the connection ends
	// (peer error, protocol error, local transport failure, or
	// disconnect timeout).
	OnConnectionLost func(reason error)
	// OnConnectionTimedOut is called when DisconnectTimeout elapses with
	// no data received; it is expected to drop the transport. If nil,
	// the Connection drops it directly.
	OnConnectionTimedOut func()
	// Logf receives a line for every send or receive failure the
	// Connection handles; each such failure ends the connection. Nil
	// disables logging.
	Logf func(format string, args ...any)
	// KeepaliveTimeout, if positive, arms a timer that sends a PING
	// whenever this long passes without receiving any data.
	KeepaliveTimeout time.Duration
	// DisconnectTimeout, if positive, arms a timer that calls
	// OnConnectionTimedOut (or drops the transport) whenever this long
	// passes without receiving any data.
	DisconnectTimeout time.Duration
	// Scheduler drives the timers above. Defaults to RealScheduler().
	Scheduler Scheduler
	// AutoVocabize is stored with the rest of the Config but the send
	// path does not consult it: an outbound string that misses the
	// vocabulary table is always sent as a STRING token, and strings
	// enter the table only through PopulateVocabulary,
	// SetOutgoingVocabulary or AddToOutgoingVocabulary.
	AutoVocabize func(s string) bool
	// Registry supplies the send/receive type dispatch table. If nil, a
	// fresh one wired to this Connection's own vocabulary tables is
	// built via NewRegistry.
	Registry *Registry
}

// Connection is the top-level Banana protocol driver tying the send
// pipeline, receive stack, vocabulary tables, and timers to one
// Transport (spec.md §4.6). Grounded on banana.py's Banana class
// (connectionMade/dataReceived/connectionLost/send/
// populateVocabTable).
type Connection struct {
	transport Transport
	cfg       Config
	scheduler Scheduler

	outVocab *outboundVocab
	inVocab  *inboundVocab
	reg      *Registry

	root     *RootSlicer
	pipeline *Pipeline
	recv     *recvBuffer
	stack    *UnslicerStack

	mode       recvMode
	curType    byte
	curHeader  uint64
	wantLen    int

	lastData time.Time
	keepCancel CancelFunc
	discCancel CancelFunc

	lost bool
}

type recvMode int

const (
	wantHeader recvMode = iota
	wantBody
)

// NewConnection builds a Connection that writes to t and reports
// received objects and lifecycle events via cfg.
func NewConnection(t Transport, cfg Config) *Connection {
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler()
	}

	outVocab := newOutboundVocab()
	inVocab := newInboundVocab()
	reg := cfg.Registry
	if reg == nil {
		reg = NewRegistry(outVocab, inVocab)
	}

	c := &Connection{
		transport: t,
		cfg:       cfg,
		scheduler: cfg.Scheduler,
		outVocab:  outVocab,
		inVocab:   inVocab,
		reg:       reg,
		root:      NewRootSlicer(),
		recv:      &recvBuffer{},
	}
	c.pipeline = NewPipeline(c.root, reg, outVocab, c.writeToken)
	c.pipeline.onSuspendErr = c.failSend
	rootU := NewRootUnslicer(reg, cfg.OnObject)
	c.stack = NewUnslicerStack(rootU, inVocab)
	return c
}

// Start arms the timers and primes the send pipeline. It is the
// analog of banana.py's connectionMade.
func (c *Connection) Start() {
	c.lastData = c.scheduler.Now()
	c.armKeepalive()
	c.armDisconnect()
	if err := c.pipeline.Drive(); err != nil {
		c.failSend(err)
	}
}

// Send enqueues obj as the next top-level object to serialize and
// drives the pipeline.
func (c *Connection) Send(obj any) {
	if c.lost {
		return
	}
	c.root.Enqueue(obj)
	if err := c.pipeline.Drive(); err != nil {
		c.failSend(err)
	}
}

// SetOutgoingVocabulary schedules a whole-table vocabulary replacement
// (spec.md §4.3). It is sent as an ordinary queued object, so it
// serializes after anything already pending.
func (c *Connection) SetOutgoingVocabulary(strings []string) {
	c.Send(&replaceVocabRequest{strings: strings})
}

// AddToOutgoingVocabulary schedules a single incremental vocabulary
// addition, deduplicated against any not-yet-flushed request for the
// same string.
func (c *Connection) AddToOutgoingVocabulary(s string) {
	if !c.outVocab.ScheduleAdd(s) {
		return
	}
	c.Send(&addVocabRequest{value: s})
}

// PopulateVocabulary seeds both the outbound and inbound tables with
// the same fixed index assignment, for a vocabulary both ends agree on
// out of band (spec.md §4.3). It must be called before anything is
// sent or received.
func (c *Connection) PopulateVocabulary(strings []string) {
	table := make(map[string]uint64, len(strings))
	inv := make(map[uint64]string, len(strings))
	for i, s := range strings {
		table[s] = uint64(i)
		inv[uint64(i)] = s
	}
	c.outVocab.CommitReplace(table)
	c.inVocab.ApplyReplace(inv)
}

// SendPing writes a PING token carrying number, for liveness probes a
// caller issues directly (as opposed to the automatic keepalive ping).
func (c *Connection) SendPing(number uint64) error {
	return c.writeToken(tPing, number, nil)
}

// DataReceived feeds newly arrived bytes through the receive state
// machine. It is the analog of banana.py's dataReceived.
func (c *Connection) DataReceived(chunk []byte) {
	if c.lost {
		return
	}
	c.lastData = c.scheduler.Now()
	c.recv.Append(chunk)
	if err := c.runReceiveLoop(); err != nil {
		c.handleReceiveError(err)
	}
}

// ConnectionLost tears down timers and fails the root slicer's wait for
// the next top-level object (RootSlicer.ConnectionLost). A slicer
// suspended on its own Future is neither failed nor resumed. Safe to
// call more than once.
func (c *Connection) ConnectionLost(reason error) {
	if c.lost {
		return
	}
	c.lost = true
	if c.keepCancel != nil {
		c.keepCancel()
		c.keepCancel = nil
	}
	if c.discCancel != nil {
		c.discCancel()
		c.discCancel = nil
	}
	c.root.ConnectionLost(reason)
	if c.cfg.OnConnectionLost != nil {
		c.cfg.OnConnectionLost(reason)
	}
}

func (c *Connection) armKeepalive() {
	if c.cfg.KeepaliveTimeout <= 0 {
		return
	}
	c.keepCancel = c.scheduler.Schedule(c.cfg.KeepaliveTimeout+epsilon, c.keepaliveFired)
}

func (c *Connection) keepaliveFired() {
	if c.lost {
		return
	}
	if c.scheduler.Now().Sub(c.lastData) >= c.cfg.KeepaliveTimeout {
		_ = c.SendPing(0)
	}
	c.armKeepalive()
}

func (c *Connection) armDisconnect() {
	if c.cfg.DisconnectTimeout <= 0 {
		return
	}
	c.discCancel = c.scheduler.Schedule(c.cfg.DisconnectTimeout+epsilon, c.disconnectFired)
}

func (c *Connection) disconnectFired() {
	if c.lost {
		return
	}
	if c.scheduler.Now().Sub(c.lastData) >= c.cfg.DisconnectTimeout {
		if c.cfg.OnConnectionTimedOut != nil {
			c.cfg.OnConnectionTimedOut()
		} else {
			c.ConnectionLost(newBananaError("no data received for %s, disconnecting", c.cfg.DisconnectTimeout))
		}
		return // assume the callback above actually drops the connection
	}
	c.armDisconnect()
}

// writeToken is the single choke point every wire write goes through:
// Pipeline.emitValue/pushChild/popSlicer/handleSendViolation and
// SendPing/sendError all call it.
func (c *Connection) writeToken(typ byte, header uint64, body []byte) error {
	buf := encodeToken(make([]byte, 0, 10+len(body)), typ, header, body)
	return c.transport.Write(buf)
}

func (c *Connection) failSend(err error) {
	if c.cfg.Logf != nil {
		c.cfg.Logf("banana: send failed: %v", err)
	}
	_ = c.transport.LoseConnection(err)
	c.ConnectionLost(err)
}

// runReceiveLoop pulls as many complete tokens out of the receive
// buffer as are currently available, dispatching each through the
// unslicer stack (or handling PING/PONG/ERROR directly — spec.md §4.1:
// "PING/PONG are not subject to check_token and may be interleaved
// anywhere, even mid-compound"). It returns nil as soon as the buffer
// runs dry ("NeedMore"), or the first fatal error encountered.
func (c *Connection) runReceiveLoop() error {
	for {
		if c.mode == wantHeader {
			header, typ, ok, err := c.recv.PeekHeader()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			bodyLen, err := wantBodyLen(typ, header)
			if err != nil {
				if oe, ok := err.(*OpcodeError); ok {
					oe.Pos = c.recv.Consumed()
				}
				return err
			}
			c.curType = typ
			c.curHeader = header
			c.wantLen = bodyLen
			c.mode = wantBody
		}

		if c.recv.Size() < c.wantLen {
			return nil
		}
		body := c.recv.Consume(c.wantLen)
		c.mode = wantHeader

		tok, err := decodeBody(c.curType, c.curHeader, body)
		if err != nil {
			if oe, ok := err.(*OpcodeError); ok {
				oe.Pos = c.recv.Consumed()
			}
			return err
		}
		if err := c.dispatchToken(tok); err != nil {
			return err
		}
	}
}

func (c *Connection) dispatchToken(tok decodedToken) error {
	switch tok.kind {
	case kindPing:
		return c.writeToken(tPong, tok.header, nil)
	case kindPong:
		return nil
	case kindError:
		msg, _ := tok.value.(string)
		return &BananaError{Msg: fmt.Sprintf("remote error: %s", msg)}
	default:
		return c.stack.HandleToken(tok)
	}
}

// handleReceiveError classifies a receive-loop failure and reports it
// the way spec.md §7.3 requires: fatal BananaErrors (and Violations
// that escaped all the way out, which runReceiveLoop never actually
// produces — every Violation is absorbed by handleViolation) get an
// ERROR token written back, unless the failure already *is* the peer's
// own ERROR token, in which case nothing is echoed back to them.
func (c *Connection) handleReceiveError(err error) {
	if c.cfg.Logf != nil {
		c.cfg.Logf("banana: receive error: %v", err)
	}

	msg := "exception while processing data, more information in the logfiles"
	peerAlreadyToldUs := false
	if berr, ok := err.(*BananaError); ok {
		msg = berr.Msg
		peerAlreadyToldUs = strings.HasPrefix(berr.Msg, "remote error:")
	}

	if !peerAlreadyToldUs {
		c.sendError(msg)
	} else {
		_ = c.transport.LoseConnection(err)
	}
	c.ConnectionLost(err)
}

func (c *Connection) sendError(msg string) {
	if len(msg) > SizeLimit {
		msg = msg[:SizeLimit-3] + "..."
	}
	_ = c.writeToken(tError, uint64(len(msg)), []byte(msg))
	_ = c.transport.LoseConnection(nil)
}
