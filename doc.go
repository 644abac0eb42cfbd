// Package banana implements Banana, a bidirectional, streaming,
// self-describing binary wire protocol for exchanging ordinary
// structured values (integers, floats, strings, lists, tuples, dicts)
// over a byte stream of unknown framing, with in-band compression via a
// shared string vocabulary.
//
// A Connection drives one Transport (a byte-stream plus the ability to
// drop it):
//
//	conn := banana.NewConnection(transport, banana.Config{
//		OnObject: func(obj any) {
//			// obj is one fully-decoded top-level value: int64, *big.Int,
//			// float64, string, []any, banana.Tuple, or *banana.Dict.
//		},
//	})
//	conn.Start()
//	conn.Send([]any{"hello", int64(42)})
//
// The caller is responsible for feeding bytes as they arrive:
//
//	conn.DataReceived(chunk)
//
// Type mapping:
//
//	Wire                Go
//	----                --
//	INT/NEG             int64
//	LONGINT/LONGNEG     *big.Int (for magnitudes that overflow int64's 31/32-bit INT/NEG range)
//	FLOAT               float64
//	STRING / VOCAB      string
//	"list" compound     []any
//	"tuple" compound    banana.Tuple
//	"dict" compound     *banana.Dict
//
// Every send of an int64/float64 picks the most compact token that
// fits; *big.Int values that happen to fit INT/NEG's 31-bit range are
// compacted the same way.
//
// Violations and errors
//
// A malformed or rejected individual object (wrong type for a
// position, an application hook that refuses a value) raises a
// Violation: the compound containing it is abandoned, but the
// connection continues. A fatal failure — an overlong token header, an
// oversized ERROR token, lost sync, a peer's own reported failure — is
// a *BananaError, and an unknown token type byte is an *OpcodeError;
// either ends the connection. See Violation, BananaError and
// OpcodeError.
//
// Vocabulary
//
// Strings repeated often across a connection's lifetime can be
// compressed to a small integer once both ends agree what it stands
// for, either seeded up front with PopulateVocabulary or negotiated
// in-band with SetOutgoingVocabulary/AddToOutgoingVocabulary. Strings
// are never added automatically; Config.AutoVocabize is not consulted.
package banana
