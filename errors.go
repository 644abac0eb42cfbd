package banana

import "fmt"

// BananaError is a fatal protocol error: lost sync, an oversized token
// header, a malformed OPEN sequence, or an ERROR received from the peer.
// Encountering one means the connection must be dropped; there is no
// per-object recovery the way there is for Violation.
type BananaError struct {
	Msg   string
	Where string // dotted describe() path, filled in by the send pipeline or the unslicer stack
}

func (e *BananaError) Error() string {
	if e.Where == "" {
		return "banana: " + e.Msg
	}
	return fmt.Sprintf("banana: %s (at %s)", e.Msg, e.Where)
}

func newBananaError(format string, args ...any) *BananaError {
	return &BananaError{Msg: fmt.Sprintf(format, args...)}
}

// Violation is a per-object, recoverable protocol error: a constraint
// reject, a streamable rule violated mid-stream, or an ABORT received
// from the peer. The sender emits ABORT (if OPEN was already sent) in
// place of the CLOSE and abandons the frame; the receiver drops the
// partial object, and when the receiver itself rejects a compound it
// discards that compound's remaining tokens up to its CLOSE or ABORT.
// Neither side's surrounding stream is affected.
type Violation struct {
	Msg string
	// Location holds a dotted describe() path when a caller sets it. The
	// send pipeline and the unslicer stack do not set it, so violations
	// they raise carry only Msg.
	Location string
}

func (v *Violation) Error() string {
	if v.Location == "" {
		return "banana violation: " + v.Msg
	}
	return fmt.Sprintf("banana violation: %s (at %s)", v.Msg, v.Location)
}

// NewViolation builds a Violation carrying msg. Slicer and Unslicer
// implementations use this to reject a value without fatally ending the
// connection.
func NewViolation(format string, args ...any) *Violation {
	return &Violation{Msg: fmt.Sprintf(format, args...)}
}

// OpcodeError is returned when the token codec sees a type byte it does
// not recognize.
type OpcodeError struct {
	Type byte
	Pos  int64
}

func (e *OpcodeError) Error() string {
	return fmt.Sprintf("banana: unknown token type 0x%02x at byte offset %d", e.Type, e.Pos)
}

// describePath joins per-frame Describe() strings the way banana.py's
// describeSend/describeReceive do, tolerating a frame whose Describe
// panics or misbehaves.
func describePath(pieces []string) string {
	out := ""
	for i, p := range pieces {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

func safeDescribe(d interface{ Describe() string }) (s string) {
	defer func() {
		if recover() != nil {
			s = "???"
		}
	}()
	return d.Describe()
}
