package banana

// replaceVocabRequest and addVocabRequest are the payloads
// Connection.SetOutgoingVocabulary/AddToOutgoingVocabulary enqueue
// through the ordinary Send path; the Registry recognizes them and
// builds the matching marker Slicer. Keeping them as distinct Go types
// (rather than exposing *replaceVocabSlicer directly) lets Send's
// queue hold a plain request even before the outbound vocab table
// mutation it triggers has happened.
type replaceVocabRequest struct{ strings []string }
type addVocabRequest struct{ value string }

// replaceVocabSlicer serializes a whole-table vocabulary replacement
// as an ordinary compound object (spec.md §4.3: "both are serialized
// in-band as ordinary OPEN-sequence compound objects"). Grounded on
// banana.py's setOutgoingVocabulary / ReplaceVocabularySlicer.
type replaceVocabSlicer struct {
	strings  []string
	idx      int
	vocab    *outboundVocab
	newTable map[string]uint64
}

func newReplaceVocabSlicer(strings []string, vocab *outboundVocab) *replaceVocabSlicer {
	return &replaceVocabSlicer{strings: strings, vocab: vocab}
}

// Init clears the outbound table immediately, before this slicer's own
// body is serialized, so its payload strings cannot VOCAB-compress
// against the table they are about to replace (spec.md §4.3).
func (s *replaceVocabSlicer) Init() error {
	s.vocab.BeginReplace()
	s.newTable = make(map[string]uint64, len(s.strings))
	for i, str := range s.strings {
		s.newTable[str] = uint64(i)
	}
	return nil
}

func (s *replaceVocabSlicer) Next() (Step, error) {
	if s.idx >= len(s.strings) {
		s.vocab.CommitReplace(s.newTable)
		return doneStep()
	}
	v := s.strings[s.idx]
	s.idx++
	return itemStep(v)
}

func (s *replaceVocabSlicer) SendOpen() bool                       { return true }
func (s *replaceVocabSlicer) TrackReferences() bool                { return false }
func (s *replaceVocabSlicer) Streamable() bool                     { return false }
func (s *replaceVocabSlicer) RegisterReference(uint64, any)        {}
func (s *replaceVocabSlicer) ChildAborted(v *Violation) *Violation { return v }
func (s *replaceVocabSlicer) Describe() string                     { return "<vocab-replace>" }
func (s *replaceVocabSlicer) OpenType() []any                      { return []any{"vocab-replace"} }

// addVocabSlicer serializes a single incremental vocabulary entry as
// an (index, string) compound. Grounded on banana.py's
// addToOutgoingVocabulary / AddVocabularySlicer, with its two pending-set
// bugs fixed (the original recorded the str type instead of the value,
// and removed via an attribute that does not exist; see SPEC_FULL.md
// §12.4): the pending set here is keyed by the string value itself.
type addVocabSlicer struct {
	value   string
	vocab   *outboundVocab
	index   uint64
	sent    int
}

func newAddVocabSlicer(value string, vocab *outboundVocab) *addVocabSlicer {
	return &addVocabSlicer{value: value, vocab: vocab}
}

// Init reserves the index now, so a second add scheduled for a
// different string while this one is still serializing gets the next
// index, not the same one.
func (s *addVocabSlicer) Init() error {
	s.index = s.vocab.AllocateEntry(s.value)
	return nil
}

func (s *addVocabSlicer) Next() (Step, error) {
	switch s.sent {
	case 0:
		s.sent++
		return itemStep(int64(s.index))
	case 1:
		s.sent++
		return itemStep(s.value)
	default:
		s.vocab.CommitAdd(s.index, s.value)
		return doneStep()
	}
}

func (s *addVocabSlicer) SendOpen() bool                       { return true }
func (s *addVocabSlicer) TrackReferences() bool                { return false }
func (s *addVocabSlicer) Streamable() bool                     { return false }
func (s *addVocabSlicer) RegisterReference(uint64, any)        {}
func (s *addVocabSlicer) ChildAborted(v *Violation) *Violation { return v }
func (s *addVocabSlicer) Describe() string                     { return "<vocab-add>" }
func (s *addVocabSlicer) OpenType() []any                      { return []any{"vocab-add"} }

// vocabReplaceUnslicer is the receive-side counterpart of
// replaceVocabSlicer: it collects a flat list of strings, positionally
// indexed, and installs them as a new table generation on CLOSE.
type vocabReplaceUnslicer struct {
	baseUnslicer
	strings []string
}

func newVocabReplaceUnslicer(reg *Registry) *vocabReplaceUnslicer {
	return &vocabReplaceUnslicer{baseUnslicer: baseUnslicer{reg: reg}}
}

func (u *vocabReplaceUnslicer) ReceiveChild(obj any) error {
	s, ok := obj.(string)
	if !ok {
		return NewViolation("vocabulary replace entries must be strings, got %T", obj)
	}
	u.strings = append(u.strings, s)
	return nil
}

func (u *vocabReplaceUnslicer) ReceiveClose() (any, error) {
	table := make(map[uint64]string, len(u.strings))
	for i, s := range u.strings {
		table[uint64(i)] = s
	}
	u.reg.inVocab.ApplyReplace(table)
	return vocabApplied{}, nil
}

func (u *vocabReplaceUnslicer) Describe() string { return "<vocab-replace>" }

// vocabAddUnslicer is the receive-side counterpart of addVocabSlicer:
// an (index, string) pair, applied on CLOSE.
type vocabAddUnslicer struct {
	baseUnslicer
	have  int
	index uint64
	value string
}

func newVocabAddUnslicer(reg *Registry) *vocabAddUnslicer {
	return &vocabAddUnslicer{baseUnslicer: baseUnslicer{reg: reg}}
}

func (u *vocabAddUnslicer) ReceiveChild(obj any) error {
	switch u.have {
	case 0:
		idx, ok := obj.(int64)
		if !ok || idx < 0 {
			return NewViolation("vocabulary add index must be a non-negative integer, got %#v", obj)
		}
		u.index = uint64(idx)
		u.have++
		return nil
	case 1:
		s, ok := obj.(string)
		if !ok {
			return NewViolation("vocabulary add value must be a string, got %T", obj)
		}
		u.value = s
		u.have++
		return nil
	default:
		return NewViolation("vocabulary add message carries more than two entries")
	}
}

func (u *vocabAddUnslicer) ReceiveClose() (any, error) {
	if u.have != 2 {
		return nil, NewViolation("vocabulary add message incomplete")
	}
	u.reg.inVocab.ApplyAdd(u.index, u.value)
	return vocabApplied{}, nil
}

func (u *vocabAddUnslicer) Describe() string { return "<vocab-add>" }
