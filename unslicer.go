package banana

// Unslicer is a receive-side state machine reconstructing one object
// from the token stream (spec.md §4.5). Grounded on banana.py's
// Unslicer contract (checkToken/openerCheckToken/doOpen/start/
// receiveChild/receiveClose/finish/reportViolation), with the
// "ready?" deferred-child flag dropped: it only mattered for the
// object-schema/constraint system spec.md's Non-goals exclude.
type Unslicer interface {
	// CheckToken validates a plain value token (not part of an OPEN's
	// index phase) before it is materialized and delivered.
	CheckToken(typ byte, header uint64) error
	// OpenerCheckToken validates one of the index tokens that name a
	// child's open-type, before DoOpen is consulted.
	OpenerCheckToken(typ byte, header uint64, openTypeSoFar []any) error
	// DoOpen is given the accumulated open-type index tokens after each
	// new one arrives. needMore true means "not enough tokens yet,
	// collect another"; needMore false with a non-nil Unslicer commits
	// to that child (spec.md §4.5, "index phase").
	DoOpen(openType []any) (child Unslicer, needMore bool, err error)
	// Start runs once the child has been pushed, receiving the
	// receive-local object count as of the OPEN that created it.
	Start(objectCount uint64) error
	// ReceiveChild delivers one fully-materialized value: either a
	// plain token's value, or another Unslicer's ReceiveClose result.
	ReceiveChild(obj any) error
	// ReceiveClose is called once this Unslicer's matching CLOSE
	// arrives; it returns the finished object.
	ReceiveClose() (any, error)
	// Finish runs immediately after ReceiveClose (success) or after a
	// Violation during ReceiveClose/Finish itself (failure); any error
	// it returns during the failure case is swallowed.
	Finish() error
	// ReportViolation is given a descendant's Violation. Returning nil
	// absorbs it and stops propagation; returning a Violation (the same
	// one or a new one) re-raises to this Unslicer's own parent.
	ReportViolation(v *Violation) *Violation
	// Describe names this unslicer for dotted-path violation locations.
	Describe() string
}

// baseUnslicer supplies the shared defaults spec.md's lack of an
// object-schema system makes uniform across every built-in Unslicer:
// no token-shape constraints beyond the protocol-level SizeLimit, and
// open-type dispatch via the shared Registry. Grounded on banana.py's
// base Unslicer class.
type baseUnslicer struct {
	reg *Registry
}

func (b *baseUnslicer) CheckToken(typ byte, header uint64) error {
	if typ == tString || typ == tLongint || typ == tLongneg {
		if header > SizeLimit {
			return NewViolation("body length %d exceeds size limit %d", header, SizeLimit)
		}
	}
	return nil
}

func (b *baseUnslicer) OpenerCheckToken(typ byte, header uint64, soFar []any) error {
	return b.CheckToken(typ, header)
}

func (b *baseUnslicer) DoOpen(openType []any) (Unslicer, bool, error) {
	if len(openType) == 0 {
		return nil, true, nil
	}
	if len(openType) > 1 {
		return nil, false, NewViolation("open-type accepts exactly one index token, got %d", len(openType))
	}
	tag, ok := openType[0].(string)
	if !ok {
		return nil, false, NewViolation("open-type index token must be a string, got %T", openType[0])
	}
	child, ok := b.reg.NewUnslicer(tag)
	if !ok {
		return nil, false, NewViolation("unknown open-type %q", tag)
	}
	return child, false, nil
}

func (b *baseUnslicer) Start(objectCount uint64) error { return nil }
func (b *baseUnslicer) Finish() error                  { return nil }

func (b *baseUnslicer) ReportViolation(v *Violation) *Violation { return v }

func (b *baseUnslicer) ReceiveChild(obj any) error {
	return NewViolation("unexpected child value %#v", obj)
}

func (b *baseUnslicer) ReceiveClose() (any, error) {
	return nil, NewViolation("unexpected CLOSE")
}

func (b *baseUnslicer) Describe() string { return "<?>" }

// stackFrame is one entry of the receive-side stack.
type stackFrame struct {
	u         Unslicer
	hasOpenID bool
	openID    uint64
}

// UnslicerStack is the receive-side state machine (spec.md §4.5),
// grounded on banana.py's Banana.handleOpen/handleClose/handleAbort/
// handleViolation/reportViolation.
type UnslicerStack struct {
	frames       []stackFrame
	inOpen       bool
	inClose      bool
	openType     []any
	discardCount int
	objectCount  uint64
	pendingCount uint64 // object count captured when the current OPEN's index phase began
	pendingOpen  uint64 // open-id of the OPEN currently in its index phase

	inbound *inboundVocab
}

// NewUnslicerStack builds a stack rooted at root.
func NewUnslicerStack(root *RootUnslicer, inbound *inboundVocab) *UnslicerStack {
	return &UnslicerStack{
		frames:  []stackFrame{{u: root}},
		inbound: inbound,
	}
}

func (s *UnslicerStack) top() Unslicer { return s.frames[len(s.frames)-1].u }

// locate renders the current stack as a dotted path, for annotating
// fatal errors raised while it is still available.
func (s *UnslicerStack) locate() string {
	pieces := make([]string, len(s.frames))
	for i, fr := range s.frames {
		pieces[i] = safeDescribe(fr.u)
	}
	return describePath(pieces)
}

func (s *UnslicerStack) annotate(err error) error {
	if berr, ok := err.(*BananaError); ok && berr.Where == "" {
		berr.Where = s.locate()
	}
	return err
}

// HandleToken dispatches one decoded token through the receive state
// machine. OPEN/CLOSE/ABORT get their own handlers; everything else
// (plain values and, during the index phase, open-type index tokens)
// goes through handleValue.
func (s *UnslicerStack) HandleToken(tok decodedToken) error {
	switch tok.kind {
	case kindOpen:
		return s.handleOpen(tok.header)
	case kindClose:
		return s.handleClose(tok.header)
	case kindAbort:
		return s.handleAbort()
	default:
		return s.handleValue(tok)
	}
}

func (s *UnslicerStack) handleOpen(header uint64) error {
	// objectCount advances for every OPEN received, discarding or not
	// (spec.md §3: "the receiver maintains an independent object-count
	// advanced per received OPEN"); only discardCount's bookkeeping is
	// conditional on the discard state.
	s.objectCount++
	if s.discardCount > 0 {
		s.discardCount++
		return nil
	}
	if s.inOpen {
		return s.annotate(newBananaError("OPEN token received while still in another OPEN's index phase"))
	}
	s.inOpen = true
	top := s.top()
	if err := top.CheckToken(tOpen, header); err != nil {
		return s.handleViolation(err.(*Violation))
	}
	s.pendingOpen = header
	s.pendingCount = s.objectCount - 1
	s.openType = s.openType[:0]
	return nil
}

func (s *UnslicerStack) handleClose(header uint64) error {
	if s.discardCount > 0 {
		s.discardCount--
		return nil
	}
	fr := s.frames[len(s.frames)-1]
	if !fr.hasOpenID || fr.openID != header {
		return s.annotate(newBananaError("lost sync: CLOSE(%d) does not match open frame", header))
	}
	if s.inOpen {
		s.inOpen = false
		return s.handleViolation(NewViolation("CLOSE received during open sequence's index phase"))
	}

	obj, err := fr.u.ReceiveClose()
	if err == nil {
		err = fr.u.Finish()
	}
	if err != nil {
		v, ok := err.(*Violation)
		if !ok {
			return err
		}
		s.inClose = true
		return s.handleViolation(v)
	}

	s.frames = s.frames[:len(s.frames)-1]
	parent := s.top()
	if cerr := parent.ReceiveChild(obj); cerr != nil {
		if v, ok := cerr.(*Violation); ok {
			return s.handleViolation(v)
		}
		return cerr
	}
	return nil
}

func (s *UnslicerStack) handleAbort() error {
	// ABORT ends its compound in place of a CLOSE: while discarding it
	// closes one discarded level, otherwise the aborted frame is popped
	// without counting a discard for a CLOSE that will never arrive.
	if s.discardCount > 0 {
		s.discardCount--
		return nil
	}
	s.inClose = true
	return s.handleViolation(NewViolation("ABORT received"))
}

func (s *UnslicerStack) handleValue(tok decodedToken) error {
	if s.discardCount > 0 {
		return nil
	}
	if s.inOpen {
		return s.handleIndexToken(tok)
	}
	top := s.top()
	if err := top.CheckToken(tok.typ, tok.header); err != nil {
		return s.handleViolation(err.(*Violation))
	}
	val, err := s.materialize(tok)
	if err != nil {
		return s.handleViolation(err.(*Violation))
	}
	if err := top.ReceiveChild(val); err != nil {
		if v, ok := err.(*Violation); ok {
			return s.handleViolation(v)
		}
		return err
	}
	return nil
}

func (s *UnslicerStack) handleIndexToken(tok decodedToken) error {
	top := s.top()
	if err := top.OpenerCheckToken(tok.typ, tok.header, s.openType); err != nil {
		return s.handleViolation(err.(*Violation))
	}
	val, err := s.materialize(tok)
	if err != nil {
		return s.handleViolation(err.(*Violation))
	}
	s.openType = append(s.openType, val)

	child, needMore, derr := top.DoOpen(s.openType)
	if derr != nil {
		return s.handleViolation(derr.(*Violation))
	}
	if needMore {
		return nil
	}

	if len(s.frames) >= maxSlicerDepth {
		return s.annotate(newBananaError("unslicer stack depth exceeds failsafe limit %d", maxSlicerDepth))
	}
	s.frames = append(s.frames, stackFrame{u: child, hasOpenID: true, openID: s.pendingOpen})
	s.inOpen = false

	if err := child.Start(s.pendingCount); err != nil {
		if v, ok := err.(*Violation); ok {
			return s.handleViolation(v)
		}
		return err
	}
	return nil
}

func (s *UnslicerStack) materialize(tok decodedToken) (any, error) {
	if tok.typ == tVocab {
		str, ok := s.inbound.Lookup(tok.header)
		if !ok {
			return nil, NewViolation("unknown vocabulary index %d", tok.header)
		}
		return str, nil
	}
	return tok.value, nil
}

// handleViolation is the unified receive-side violation handler
// (spec.md §4.5, "Violation propagation"), covering index-phase,
// value-phase, and close-phase violations with the same loop. Grounded
// on banana.py's handleViolation.
func (s *UnslicerStack) handleViolation(v *Violation) error {
	if s.inOpen {
		s.inOpen = false
		s.discardCount++
	}
	skipFirstIncrement := s.inClose
	s.inClose = false

	for {
		top := s.frames[len(s.frames)-1].u
		nv := top.ReportViolation(v)
		if nv == nil {
			return nil
		}
		v = nv

		if !skipFirstIncrement {
			s.discardCount++
		}
		skipFirstIncrement = false

		popped := s.frames[len(s.frames)-1]
		s.frames = s.frames[:len(s.frames)-1]
		func() {
			defer func() { recover() }()
			_ = popped.u.Finish()
		}()

		if len(s.frames) == 0 {
			return s.annotate(newBananaError("root unslicer popped during violation handling"))
		}
	}
}
