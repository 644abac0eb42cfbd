package banana

import "math/big"

// StepKind classifies what a Slicer's Next call produced.
type StepKind int

const (
	// StepDone reports the slicer has no more items; the pipeline will
	// pop it and (if it sent an OPEN) emit the matching CLOSE.
	StepDone StepKind = iota
	// StepItem carries the next item. The pipeline classifies it itself:
	// int64/*big.Int/float64/string are emitted directly as value
	// tokens, anything else is dispatched to a child Slicer. This
	// mirrors the single `type(obj) in (int, long, float, str)` check
	// in banana.py's produce(), rather than asking every Slicer
	// implementation to repeat it.
	StepItem
	// StepPending suspends the pipeline until Pending resolves, the
	// coroutine-shaped pipeline's one true suspension point (spec.md
	// §5, "(i) the send loop suspends when a slicer yields an async
	// handle").
	StepPending
)

// Step is what Slicer.Next returns on each call.
type Step struct {
	Kind    StepKind
	Item    any
	Pending *Future
}

func doneStep() (Step, error)           { return Step{Kind: StepDone}, nil }
func itemStep(v any) (Step, error)      { return Step{Kind: StepItem, Item: v}, nil }
func pendingStep(f *Future) (Step, error) { return Step{Kind: StepPending, Pending: f}, nil }

// Future is the explicit-iterator analog of the Deferred a slicer's
// next() could yield in banana.py. A Slicer hands one back via
// StepPending and some other part of the program resolves it later;
// the pipeline installs a continuation via OnDone rather than blocking
// a goroutine, keeping the whole send path single-threaded cooperative
// (spec.md §5).
type Future struct {
	done bool
	err  error
	cbs  []func(error)
}

// NewFuture returns an unresolved Future.
func NewFuture() *Future { return &Future{} }

// Resolve completes the future, error nil for success. Only the first
// call has any effect.
func (f *Future) Resolve(err error) {
	if f.done {
		return
	}
	f.done = true
	f.err = err
	cbs := f.cbs
	f.cbs = nil
	for _, cb := range cbs {
		cb(err)
	}
}

// OnDone registers cb to run once the future resolves, immediately if
// it already has.
func (f *Future) OnDone(cb func(error)) {
	if f.done {
		cb(f.err)
		return
	}
	f.cbs = append(f.cbs, cb)
}

// Slicer is a send-side state machine producing the tokens for one
// object. Grounded on the capability set spec.md §4.4 requires
// (slice/send_open/track_references/streamable/register_reference/
// child_aborted/describe), re-architected per design note §9 as an
// explicit iterator instead of a generator coroutine.
type Slicer interface {
	// Init runs once, before the OPEN token (if any) is sent and before
	// the slicer is pushed onto the stack. It is the only place a
	// Violation here is "free" — atomically cheap to reject, since
	// neither OPEN nor the frame push have happened yet (spec.md §4.4,
	// "push-and-open is atomic").
	Init() error
	// Next returns the slicer's next item, or StepDone/StepPending.
	Next() (Step, error)
	// SendOpen reports whether this slicer represents a compound that
	// needs an OPEN/CLOSE bracket. Among the built-in slicers, only the
	// root answers false.
	SendOpen() bool
	// TrackReferences reports whether the parent should register this
	// object's open-id for later back-reference (spec.md §3, "object
	// identity").
	TrackReferences() bool
	// Streamable reports whether this slicer tolerates a StepPending
	// suspending mid-sequence. Every ancestor on the stack must answer
	// true for a suspension to be allowed (spec.md §4.4).
	Streamable() bool
	// RegisterReference is called on the parent slicer, if
	// TrackReferences is true, with the open-id just allocated for obj.
	RegisterReference(openID uint64, obj any)
	// ChildAborted is called when a child (or a deeper descendant) has
	// been abandoned due to a Violation. Returning nil absorbs the
	// failure and lets the pipeline carry on; returning a Violation
	// (the same one, or a new one) re-raises it to this slicer's own
	// parent.
	ChildAborted(v *Violation) *Violation
	// Describe names this slicer for dotted-path violation locations.
	Describe() string
	// OpenType returns the index tokens sent immediately after OPEN,
	// identifying which Unslicer the far end should instantiate. Only
	// consulted when SendOpen is true.
	OpenType() []any
}

// sendFrame is one entry of the send-side stack (spec.md §3, "Slicer
// frame").
type sendFrame struct {
	slicer    Slicer
	hasOpenID bool
	openID    uint64
}

// Pipeline is the send-side drive loop (spec.md §4.4), rooted at a
// RootSlicer. Grounded on banana.py's produce/pushSlicer/popSlicer/
// handleSendViolation.
type Pipeline struct {
	stack   []sendFrame
	paused  bool
	openCnt uint64
	reg     *Registry
	vocab   *outboundVocab

	writeToken func(typ byte, header uint64, body []byte) error
	onSuspendErr func(error) // analog of banana.py's _slice_error -> sendFailed
}

// NewPipeline builds a Pipeline rooted at root, writing wire bytes via
// write and dispatching object-to-slicer lookups via reg.
func NewPipeline(root *RootSlicer, reg *Registry, vocab *outboundVocab, write func(typ byte, header uint64, body []byte) error) *Pipeline {
	return &Pipeline{
		stack:      []sendFrame{{slicer: root}},
		reg:        reg,
		vocab:      vocab,
		writeToken: write,
	}
}

// Pause/Resume gate the drive loop (spec.md §4.6, "paused state gates
// the send loop"). Connection has no method that calls them.
func (p *Pipeline) Pause()  { p.paused = true }
func (p *Pipeline) Resume() error {
	p.paused = false
	return p.Drive()
}

// Drive runs the send loop until the stack empties (never happens; the
// root never finishes), the pipeline suspends on a StepPending, or a
// fatal (non-Violation) error occurs.
func (p *Pipeline) Drive() error {
drive:
	for len(p.stack) > 0 && !p.paused {
		top := p.stack[len(p.stack)-1].slicer
		step, err := top.Next()
		if err != nil {
			if v, ok := err.(*Violation); ok {
				if herr := p.handleSendViolation(v, true, true); herr != nil {
					return herr
				}
				continue drive
			}
			return err
		}

		switch step.Kind {
		case StepDone:
			if err := p.popSlicer(); err != nil {
				return err
			}

		case StepItem:
			switch v := step.Item.(type) {
			case int64, *big.Int, float64, string:
				if err := p.emitValue(v); err != nil {
					return err
				}
			default:
				if verr := p.pushChild(v); verr != nil {
					if vv, ok := verr.(*Violation); ok {
						if herr := p.handleSendViolation(vv, false, false); herr != nil {
							return herr
						}
						continue drive
					}
					return verr
				}
			}

		case StepPending:
			blocked := false
			for _, fr := range p.stack {
				if !fr.slicer.Streamable() {
					v := NewViolation("parent not streamable")
					if herr := p.handleSendViolation(v, true, true); herr != nil {
						return herr
					}
					blocked = true
					break
				}
			}
			if blocked {
				continue drive
			}
			step.Pending.OnDone(func(err error) {
				if err != nil {
					if p.onSuspendErr != nil {
						p.onSuspendErr(err)
					}
					return
				}
				if derr := p.Drive(); derr != nil && p.onSuspendErr != nil {
					p.onSuspendErr(derr)
				}
			})
			return nil // primary suspension exit point
		}
	}
	return nil
}

// pushChild obtains a Slicer for obj, initializes it (the only point a
// Violation is free of ABORT/pop bookkeeping), and — having committed —
// emits OPEN plus the child's open-type index tokens before pushing the
// frame. Grounded on banana.py's pushSlicer.
func (p *Pipeline) pushChild(obj any) error {
	if len(p.stack) >= maxSlicerDepth {
		return p.annotate(newBananaError("slicer stack depth exceeds failsafe limit %d", maxSlicerDepth))
	}

	parent := p.stack[len(p.stack)-1].slicer

	child, err := p.reg.SlicerForObject(obj)
	if err != nil {
		return err // *Violation: no OPEN sent, nothing pushed
	}
	if err := child.Init(); err != nil {
		return err // *Violation: Init ran before commit, same as above
	}

	frame := sendFrame{slicer: child}
	if child.SendOpen() {
		id := p.openCnt
		p.openCnt++
		if child.TrackReferences() {
			parent.RegisterReference(id, obj)
		}
		if err := p.writeToken(tOpen, id, nil); err != nil {
			return err
		}
		for _, idx := range child.OpenType() {
			if err := p.emitValue(idx); err != nil {
				return err
			}
		}
		frame.hasOpenID = true
		frame.openID = id
	}
	p.stack = append(p.stack, frame)
	return nil
}

// locate renders the current stack as a dotted path, for annotating
// fatal errors raised while it is still available.
func (p *Pipeline) locate() string {
	pieces := make([]string, len(p.stack))
	for i, fr := range p.stack {
		pieces[i] = safeDescribe(fr.slicer)
	}
	return describePath(pieces)
}

// annotate fills in a freshly raised BananaError's location, if not
// already set.
func (p *Pipeline) annotate(err error) error {
	if berr, ok := err.(*BananaError); ok && berr.Where == "" {
		berr.Where = p.locate()
	}
	return err
}

func (p *Pipeline) popSlicer() error {
	fr := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	if fr.hasOpenID {
		return p.writeToken(tClose, fr.openID, nil)
	}
	return nil
}

// handleSendViolation is the send-side violation handler (spec.md
// §4.4's "Violation handling"), grounded on banana.py's
// handleSendViolation. It returns a fatal error if the root slicer
// itself would be popped, or the error of a failed ABORT write.
func (p *Pipeline) handleSendViolation(v *Violation, doPop, sendAbort bool) error {
	for {
		if len(p.stack) == 0 {
			return p.annotate(newBananaError("send stack empty during violation handling"))
		}
		top := p.stack[len(p.stack)-1]

		if sendAbort && top.hasOpenID {
			if err := p.writeToken(tAbort, top.openID, nil); err != nil {
				return err
			}
		}

		if doPop {
			p.stack = p.stack[:len(p.stack)-1]
			if len(p.stack) == 0 {
				return p.annotate(newBananaError("root slicer popped during violation handling"))
			}
			top = p.stack[len(p.stack)-1]
		}

		nextV := top.slicer.ChildAborted(v)
		if nextV == nil {
			return nil
		}
		v = nextV
		doPop = true
		sendAbort = true
	}
}

// emitValue writes a primitive value as its wire token, doing the
// string<->vocabulary lookup in the process. Grounded on banana.py's
// sendToken.
func (p *Pipeline) emitValue(val any) error {
	switch v := val.(type) {
	case int64:
		return p.emitInt(v)
	case *big.Int:
		return p.emitBigInt(v)
	case float64:
		return p.writeToken(tFloat, 0, float64ToBytes(v))
	case string:
		return p.emitString(v)
	default:
		return newBananaError("could not send object of type %T", val)
	}
}

func (p *Pipeline) emitInt(v int64) error {
	const int31Max = int64(1)<<31 - 1
	const neg31Max = int64(1) << 31
	switch {
	case v >= 0 && v <= int31Max:
		return p.writeToken(tInt, uint64(v), nil)
	case v < 0 && -v <= neg31Max:
		return p.writeToken(tNeg, uint64(-v), nil)
	default:
		return p.emitBigInt(big.NewInt(v))
	}
}

func (p *Pipeline) emitBigInt(b *big.Int) error {
	switch {
	case fitsInt31NonNeg(b):
		return p.writeToken(tInt, b.Uint64(), nil)
	case fitsInt31Neg(b):
		mag := new(big.Int).Neg(b)
		return p.writeToken(tNeg, mag.Uint64(), nil)
	case b.Sign() >= 0:
		body := bigIntToBytes(b)
		return p.writeToken(tLongint, uint64(len(body)), body)
	default:
		body := bigIntToBytes(b)
		return p.writeToken(tLongneg, uint64(len(body)), body)
	}
}

func (p *Pipeline) emitString(s string) error {
	if idx, ok := p.vocab.Lookup(s); ok {
		return p.writeToken(tVocab, idx, nil)
	}
	return p.writeToken(tString, uint64(len(s)), []byte(s))
}
