package banana

// RootSlicer sits at the bottom of the send-side stack. It has no
// OPEN/CLOSE of its own; its job is to hold the queue of top-level
// objects waiting to be sent (ordinary Send() calls plus vocabulary
// control messages) and to suspend the drive loop when that queue runs
// dry, exactly as banana.py's RootSlicer.send/slice do.
type RootSlicer struct {
	queue   []any
	pending *Future
	lost    error
}

// NewRootSlicer returns an empty RootSlicer.
func NewRootSlicer() *RootSlicer { return &RootSlicer{} }

// Enqueue appends obj as the next top-level object to send and wakes
// the drive loop if it was suspended waiting for one.
func (r *RootSlicer) Enqueue(obj any) {
	r.queue = append(r.queue, obj)
	if r.pending != nil {
		p := r.pending
		r.pending = nil
		p.Resolve(nil)
	}
}

// ConnectionLost fails any suspended Next call; once called, Next
// reports err as soon as the queue is empty.
func (r *RootSlicer) ConnectionLost(err error) {
	if r.lost != nil {
		return
	}
	r.lost = err
	if r.pending != nil {
		p := r.pending
		r.pending = nil
		p.Resolve(err)
	}
}

func (r *RootSlicer) Init() error { return nil }

func (r *RootSlicer) Next() (Step, error) {
	if len(r.queue) > 0 {
		obj := r.queue[0]
		r.queue = r.queue[1:]
		return itemStep(obj)
	}
	if r.lost != nil {
		return Step{}, r.lost
	}
	r.pending = NewFuture()
	return pendingStep(r.pending)
}

func (r *RootSlicer) SendOpen() bool          { return false }
func (r *RootSlicer) TrackReferences() bool   { return false }
func (r *RootSlicer) Streamable() bool        { return true }
func (r *RootSlicer) RegisterReference(uint64, any) {}

// ChildAborted absorbs every failure: the root must never re-raise, or
// the pipeline's "popping the root is fatal" rule would tear down the
// connection over what is supposed to be a single rejected top-level
// object (spec.md §8 scenario 5).
func (r *RootSlicer) ChildAborted(v *Violation) *Violation { return nil }

func (r *RootSlicer) Describe() string { return "<root>" }
func (r *RootSlicer) OpenType() []any  { return nil }

// vocabApplied is the sentinel RootUnslicer.ReceiveChild recognizes as
// "already handled as a side effect, don't surface it as a received
// object" (returned by the vocabulary control unslicers).
type vocabApplied struct{}

// RootUnslicer sits at the bottom of the receive-side stack. Every
// fully-decoded top-level object, ordinary or vocabulary control,
// arrives here via ReceiveChild.
type RootUnslicer struct {
	baseUnslicer
	onObject func(obj any)
}

// NewRootUnslicer builds a RootUnslicer that reports received
// top-level objects to onObject.
func NewRootUnslicer(reg *Registry, onObject func(obj any)) *RootUnslicer {
	return &RootUnslicer{baseUnslicer: baseUnslicer{reg: reg}, onObject: onObject}
}

func (r *RootUnslicer) ReceiveChild(obj any) error {
	if _, ok := obj.(vocabApplied); ok {
		return nil
	}
	if r.onObject != nil {
		r.onObject(obj)
	}
	return nil
}

func (r *RootUnslicer) ReceiveClose() (any, error) {
	return nil, newBananaError("unexpected CLOSE at the top level")
}

// ReportViolation absorbs every descendant failure reaching the root,
// the receive-side mirror of RootSlicer.ChildAborted: popping the root
// unslicer is fatal, so the root must stop propagation here.
func (r *RootUnslicer) ReportViolation(v *Violation) *Violation { return nil }

func (r *RootUnslicer) Describe() string { return "<root>" }
