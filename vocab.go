package banana

// vocabTable holds one direction's half of the shared string-compression
// dictionary (spec.md §3/§4.3). Connection owns one outboundVocab (read
// and mutated only by the send path) and one inboundVocab (read and
// mutated only by the receive path) — see spec.md §5's shared-resource
// policy.
//
// Grounded on banana.py's outgoingVocabTableWasReplaced /
// allocateEntryInOutgoingVocabTable / outgoingVocabTableWasAmended and
// replaceIncomingVocabulary / addIncomingVocabulary.
type outboundVocab struct {
	table             map[string]uint64
	nextIndex         uint64
	pendingAdditions  map[string]bool // dedups add() calls scheduled before they flush
}

func newOutboundVocab() *outboundVocab {
	return &outboundVocab{
		table:            make(map[string]uint64),
		pendingAdditions: make(map[string]bool),
	}
}

// Lookup reports the VOCAB index for s, if the outbound table currently
// has one. Called by the string-encoding path on every string token.
func (v *outboundVocab) Lookup(s string) (uint64, bool) {
	idx, ok := v.table[s]
	return idx, ok
}

// ScheduleAdd records that s should eventually be added to the outbound
// table, deduplicating repeated requests for the same string before the
// add has actually flushed (spec.md §4.3, "coalesces duplicate
// add_to_outgoing calls"; fixes the two bugs banana.py's
// addToOutgoingVocabulary/allocateEntryInOutgoingVocabTable have — see
// SPEC_FULL.md §12.4). It reports false (no-op) if s is already in the
// table or already pending.
func (v *outboundVocab) ScheduleAdd(s string) bool {
	if _, have := v.table[s]; have {
		return false
	}
	if v.pendingAdditions[s] {
		return false
	}
	v.pendingAdditions[s] = true
	return true
}

// AllocateEntry is called by the AddVocabSlicer (vocabmsg.go) as it
// begins to run: it reserves the next outbound index for s and clears
// the pending marker. The index is not installed into the lookup table
// until CommitAdd runs, after the add message itself has been fully
// serialized — otherwise the add message could try to VOCAB-compress
// its own payload string.
func (v *outboundVocab) AllocateEntry(s string) uint64 {
	delete(v.pendingAdditions, s)
	idx := v.nextIndex
	v.nextIndex++
	return idx
}

// CommitAdd installs s -> index into the outbound lookup table, the
// side effect banana.py calls outgoingVocabTableWasAmended.
func (v *outboundVocab) CommitAdd(index uint64, s string) {
	v.table[s] = index
}

// BeginReplace clears the outbound table immediately, before the
// replace marker's own body is serialized, so the marker cannot
// self-reference stale entries (spec.md §4.3).
func (v *outboundVocab) BeginReplace() {
	v.table = make(map[string]uint64)
	v.nextIndex = 0
}

// CommitReplace installs newTable after the replace marker has finished
// serializing its body.
func (v *outboundVocab) CommitReplace(newTable map[string]uint64) {
	v.table = newTable
	var max uint64
	for _, idx := range newTable {
		if idx+1 > max {
			max = idx + 1
		}
	}
	v.nextIndex = max
}

// inboundVocab is the receive-side half: index -> string.
type inboundVocab struct {
	table map[uint64]string
}

func newInboundVocab() *inboundVocab {
	return &inboundVocab{table: make(map[uint64]string)}
}

func (v *inboundVocab) Lookup(index uint64) (string, bool) {
	s, ok := v.table[index]
	return s, ok
}

// ApplyReplace installs newTable as a new generation, wholesale
// (spec.md invariant 4: "a replace begins a new generation").
func (v *inboundVocab) ApplyReplace(newTable map[uint64]string) {
	v.table = newTable
}

// ApplyAdd inserts one new entry, called once an (index, string) add
// sequence has been fully received.
func (v *inboundVocab) ApplyAdd(index uint64, s string) {
	v.table[index] = s
}
