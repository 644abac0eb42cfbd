package banana

import (
	"fmt"
	"hash/maphash"
	"math"
	"math/big"
	"sort"

	"github.com/aristanetworks/gomap"
)

// Dict is an ordered-on-the-wire, Python-equality-on-access mapping:
// int64(1), float64(1.0) and big.NewInt(1) all name the same entry,
// matching the numeric tower spec.md's data model borrows from Python
// (the protocol's own primitives are already Python's int/long/float).
// Trimmed from og-rek's Dict down to the key kinds Banana actually
// carries (no bool, complex, uint, or the Bytes/ByteString str/bytes
// split og-rek needs for Python 2/3 pickle compatibility — Banana has
// exactly one string type).
//
// Like a builtin map, Dict is pointer-like: its zero value is an
// invalid, unusable dictionary; use NewDict.
type Dict struct {
	m *gomap.Map[any, any]
}

// NewDict returns an empty dictionary.
func NewDict() *Dict { return NewDictWithSizeHint(0) }

// NewDictWithSizeHint returns an empty dictionary preallocated for
// size entries.
func NewDictWithSizeHint(size int) *Dict {
	return &Dict{m: gomap.NewHint[any, any](size, dictEqual, dictHash)}
}

// Get returns the value associated with a key equal to key, or nil if
// none is present.
func (d *Dict) Get(key any) any {
	v, _ := d.Get_(key)
	return v
}

// Get_ is the comma-ok form of Get.
func (d *Dict) Get_(key any) (value any, ok bool) { return d.m.Get(key) }

// Set associates value with key, replacing any existing entry whose
// key compares equal.
func (d *Dict) Set(key, value any) { d.m.Set(key, value) }

// Delete removes the entry whose key compares equal to key, if any.
func (d *Dict) Delete(key any) { d.m.Delete(key) }

// Len reports the number of entries.
func (d *Dict) Len() int { return d.m.Len() }

// Iter returns an iteration function visiting every (key, value) pair
// in arbitrary order.
func (d *Dict) Iter() func(yield func(key, value any) bool) {
	it := d.m.Iter()
	return func(yield func(key, value any) bool) {
		for it.Next() {
			if !yield(it.Key(), it.Elem()) {
				return
			}
		}
	}
}

// String renders the dictionary with entries sorted by key text, for
// reproducible output.
func (d *Dict) String() string {
	type kv struct{ k, v string }
	pairs := make([]kv, 0, d.Len())
	d.Iter()(func(k, v any) bool {
		pairs = append(pairs, kv{fmt.Sprintf("%v", k), fmt.Sprintf("%v", v)})
		return true
	})
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })
	out := "{"
	for i, p := range pairs {
		if i > 0 {
			out += ", "
		}
		out += p.k + ": " + p.v
	}
	return out + "}"
}

// dictKind classifies a key for dictEqual/dictHash's numeric-tower
// cross-type comparisons.
type dictKind int

const (
	kInt dictKind = iota
	kFloat
	kBigInt
	kString
	kTuple
	kOther // compared/hashed via plain Go == and fmt, not cross-type aware
)

func kindOf(x any) dictKind {
	switch x.(type) {
	case int64:
		return kInt
	case float64:
		return kFloat
	case *big.Int:
		return kBigInt
	case string:
		return kString
	case Tuple:
		return kTuple
	default:
		return kOther
	}
}

// dictEqual implements the numeric-tower equality spec.md's data
// model implies (int64/float64/*big.Int denote the same Python number
// space, so 1, 1.0 and big.NewInt(1) must collide as Dict keys).
// Grounded on og-rek's dict.go equal(), trimmed to Banana's key set.
func dictEqual(xa, xb any) bool {
	ak, bk := kindOf(xa), kindOf(xb)
	if ak > bk {
		xa, xb = xb, xa
		ak, bk = bk, ak
	}

	switch ak {
	case kInt:
		a := xa.(int64)
		switch bk {
		case kInt:
			return a == xb.(int64)
		case kFloat:
			return float64(a) == xb.(float64)
		case kBigInt:
			b := xb.(*big.Int)
			return b.IsInt64() && a == b.Int64()
		}
	case kFloat:
		a := xa.(float64)
		switch bk {
		case kFloat:
			return a == xb.(float64)
		case kBigInt:
			bf, acc := bigIntToFloat64(xb.(*big.Int))
			return acc == big.Exact && a == bf
		}
	case kBigInt:
		if bk == kBigInt {
			return xa.(*big.Int).Cmp(xb.(*big.Int)) == 0
		}
	case kString:
		if bk == kString {
			return xa.(string) == xb.(string)
		}
	case kTuple:
		if bk == kTuple {
			a, b := xa.(Tuple), xb.(Tuple)
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if !dictEqual(a[i], b[i]) {
					return false
				}
			}
			return true
		}
	}
	if ak != bk {
		return false
	}
	return xa == xb
}

// dictHash is consistent with dictEqual: equal(a,b) implies
// hash(a)==hash(b). Panics for key types Python would also refuse as
// dict keys (lists and dicts are unhashable).
func dictHash(seed maphash.Seed, x any) uint64 {
	switch v := x.(type) {
	case string:
		return maphash.String(seed, v)
	case []any, *Dict:
		panic(fmt.Sprintf("unhashable type: %T", x))
	}

	var h maphash.Hash
	h.SetSeed(seed)
	hashUint := func(u uint64) {
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(u >> (56 - 8*i))
		}
		h.Write(b[:])
	}
	hashFloat := func(f float64) {
		if i := int64(f); float64(i) == f {
			hashUint(uint64(i))
			return
		}
		hashUint(math.Float64bits(f))
	}

	switch v := x.(type) {
	case int64:
		hashUint(uint64(v))
	case float64:
		hashFloat(v)
	case *big.Int:
		switch {
		case v.IsInt64():
			hashUint(uint64(v.Int64()))
		case v.IsUint64():
			hashUint(v.Uint64())
		default:
			f, acc := bigIntToFloat64(v)
			if acc == big.Exact {
				hashFloat(f)
			} else {
				h.WriteString("bigint")
				h.Write(v.Bytes())
			}
		}
	case Tuple:
		h.WriteString("tuple")
		for _, item := range v {
			hashUint(dictHash(seed, item))
		}
	default:
		h.WriteString(fmt.Sprintf("%T:%v", x, x))
	}
	return h.Sum64()
}

func bigIntToFloat64(b *big.Int) (float64, big.Accuracy) {
	f := new(big.Float).SetInt(b)
	return f.Float64()
}

// dictSlicer walks a Dict as a flat (key, value, key, value, ...)
// sequence, the compact encoding banana.py's DictSlicer uses instead
// of nesting each pair in its own tuple.
type dictSlicer struct {
	pairs []any // key, value, key, value, ...
	idx   int
}

func newDictSlicer(d *Dict) *dictSlicer {
	pairs := make([]any, 0, d.Len()*2)
	d.Iter()(func(k, v any) bool {
		pairs = append(pairs, k, v)
		return true
	})
	return &dictSlicer{pairs: pairs}
}

func (s *dictSlicer) Init() error { return nil }

func (s *dictSlicer) Next() (Step, error) {
	if s.idx >= len(s.pairs) {
		return doneStep()
	}
	v := s.pairs[s.idx]
	s.idx++
	return itemStep(v)
}

func (s *dictSlicer) SendOpen() bool                      { return true }
func (s *dictSlicer) TrackReferences() bool               { return true }
func (s *dictSlicer) Streamable() bool                    { return true }
func (s *dictSlicer) RegisterReference(uint64, any)       {}
func (s *dictSlicer) ChildAborted(v *Violation) *Violation { return v }
func (s *dictSlicer) Describe() string                    { return "<dict>" }
func (s *dictSlicer) OpenType() []any                      { return []any{"dict"} }

// dictUnslicer reassembles the flat key/value sequence back into a
// *Dict.
type dictUnslicer struct {
	baseUnslicer
	dict      *Dict
	pendingKey any
	haveKey   bool
}

func newDictUnslicer(reg *Registry) *dictUnslicer {
	return &dictUnslicer{baseUnslicer: baseUnslicer{reg: reg}, dict: NewDict()}
}

func (u *dictUnslicer) ReceiveChild(obj any) error {
	if !u.haveKey {
		u.pendingKey = obj
		u.haveKey = true
		return nil
	}
	u.dict.Set(u.pendingKey, obj)
	u.haveKey = false
	return nil
}

func (u *dictUnslicer) ReceiveClose() (any, error) {
	if u.haveKey {
		return nil, NewViolation("dict message has an odd number of entries")
	}
	return u.dict, nil
}

func (u *dictUnslicer) Describe() string { return "<dict>" }
