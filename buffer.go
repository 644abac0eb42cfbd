package banana

// recvBuffer is a chunked byte accumulator supporting peek-a-header and
// consume-a-body, without ever copying an arrived chunk into a single
// contiguous buffer up front (spec.md §4.2: "zero-copy accumulation of
// byte chunks"). It is grounded on banana.py's handleData/receiveHeader/
// _consume_and_return_first_n_bytes, which walk a list of chunks plus an
// offset into the first one instead of concatenating eagerly.
type recvBuffer struct {
	chunks  [][]byte
	offset  int   // offset into chunks[0]
	size    int   // total unconsumed bytes across all chunks
	consumed int64 // total bytes ever advanced past, for error offsets
}

// Consumed reports the total number of bytes ever scanned past,
// across the buffer's whole lifetime — used to annotate OpcodeError
// with a byte offset.
func (b *recvBuffer) Consumed() int64 { return b.consumed }

// Append records a newly arrived chunk. The caller must not mutate
// chunk afterwards; recvBuffer keeps the slice, it does not copy it.
func (b *recvBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
}

// Size reports the number of unconsumed bytes currently buffered.
func (b *recvBuffer) Size() int { return b.size }

// advance drops n already-scanned bytes from the front of the buffer,
// discarding any chunk it fully consumes.
func (b *recvBuffer) advance(n int) {
	b.consumed += int64(n)
	for n > 0 && len(b.chunks) > 0 {
		avail := len(b.chunks[0]) - b.offset
		if avail > n {
			b.offset += n
			b.size -= n
			return
		}
		b.size -= avail
		n -= avail
		b.chunks = b.chunks[1:]
		b.offset = 0
	}
}

// PeekHeader scans for a complete base-128 header terminated by a type
// byte (high bit set), without requiring the header to lie within a
// single chunk. On success it consumes exactly the header+type-byte
// bytes and returns the decoded value and type byte. If the buffer does
// not yet contain a full header, it consumes nothing and reports
// ok=false, err=nil ("NeedMore" per spec.md §4.2). A prefix longer than
// 64 non-terminator bytes is a fatal BananaError.
func (b *recvBuffer) PeekHeader() (value uint64, typ byte, ok bool, err error) {
	var place uint64 = 1
	var v uint64
	digits := 0
	scanned := 0

	ci, off := 0, b.offset
	for ci < len(b.chunks) {
		chunk := b.chunks[ci]
		for off < len(chunk) {
			c := chunk[off]
			off++
			scanned++
			if c&0x80 != 0 {
				b.advance(scanned)
				return v, c, true, nil
			}
			if digits >= maxHeaderDigits {
				return 0, 0, false, newBananaError("token header prefix exceeds %d digits", maxHeaderDigits)
			}
			v += uint64(c) * place
			place *= 128
			digits++
		}
		ci++
		off = 0
	}
	return 0, 0, false, nil
}

// Consume removes and returns the next n bytes. The caller must have
// already confirmed Size() >= n. A read that stays within the first
// chunk returns a slice of it directly (no copy); a read that spans a
// chunk boundary is concatenated into a fresh buffer, exactly as
// banana.py's _consume_and_return_first_n_bytes does only "when a
// boundary is crossed" (spec.md §4.2).
func (b *recvBuffer) Consume(n int) []byte {
	if n == 0 || len(b.chunks) == 0 {
		return nil
	}
	first := b.chunks[0][b.offset:]
	if len(first) >= n {
		out := first[:n:n]
		b.advance(n)
		return out
	}

	out := make([]byte, 0, n)
	remaining := n
	ci, off := 0, b.offset
	for remaining > 0 {
		chunk := b.chunks[ci][off:]
		if len(chunk) > remaining {
			out = append(out, chunk[:remaining]...)
			remaining = 0
		} else {
			out = append(out, chunk...)
			remaining -= len(chunk)
			ci++
			off = 0
		}
	}
	b.advance(n)
	return out
}

// wantBodyLen determines, from a just-decoded header+type, how many
// more bytes must be buffered before the token's body can be consumed.
// Mirrors banana.py's processTypeByte.
func wantBodyLen(typ byte, header uint64) (int, error) {
	fixed, useHeader, ok := bodyLenKind(typ)
	if !ok {
		return 0, &OpcodeError{Type: typ}
	}
	if useHeader {
		if typ == tError && header > SizeLimit {
			return 0, newBananaError("oversized ERROR token (%d > %d)", header, SizeLimit)
		}
		return int(header), nil
	}
	return fixed, nil
}
