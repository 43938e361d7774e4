package h2

import "github.com/valyala/bytebufferpool"

// ReadOperation describes what an I/O adapter should do next to keep
// the engine's Reader fed, spec.md Section 4.11. The engine never
// touches a socket itself; an adapter (see cmd/server, cmd/client)
// drives this loop against whatever transport it has.
type ReadOperation struct {
	// WantBytes is how many additional bytes the Reader needs before
	// it can make progress (a full frame header, or the rest of a
	// frame's payload). An adapter is free to deliver fewer via
	// multiple Read calls; the Reader accumulates.
	WantBytes int

	// EOFAcceptable reports whether read_eof is a legal response right
	// now (true between frames, false mid-frame).
	EOFAcceptable bool
}

// Reader is the buffer-driven counterpart of a blocking bufio.Reader:
// bytes arrive via Read, frames come out via TakeFrame once enough of
// them have accumulated. It never blocks and never touches an fd.
type Reader struct {
	buf          *bytebufferpool.ByteBuffer
	consumed     int // bytes at the front of buf already handed out via TakeFrame
	eof          bool
	maxFrameSize uint32
}

func newReader(maxFrameSize uint32) *Reader {
	return &Reader{buf: bytebufferpool.Get(), maxFrameSize: maxFrameSize}
}

func (r *Reader) release() { bytebufferpool.Put(r.buf) }

// pending is the unconsumed tail of buf.
func (r *Reader) pending() []byte { return r.buf.B[r.consumed:] }

// NextReadOperation reports how many more bytes are needed before a
// full frame header, or a full frame payload, is available.
func (r *Reader) NextReadOperation() ReadOperation {
	p := r.pending()
	if len(p) < frameHeaderLen {
		return ReadOperation{WantBytes: frameHeaderLen - len(p), EOFAcceptable: len(p) == 0}
	}
	h := parseFrameHeader(p)
	need := frameHeaderLen + int(h.Length)
	if len(p) < need {
		return ReadOperation{WantBytes: need - len(p)}
	}
	return ReadOperation{WantBytes: 0}
}

// Read appends adapter-delivered bytes to the internal buffer.
func (r *Reader) Read(data []byte) {
	r.buf.Write(data)
}

// ReadEOF marks the underlying transport as exhausted. Any bytes still
// pending are readable via TakeFrame, but a subsequent NextReadOperation
// asking for more will never be satisfied.
func (r *Reader) ReadEOF() { r.eof = true }

// AtEOF reports whether the peer closed its write side and no further
// bytes will ever arrive.
func (r *Reader) AtEOF() bool { return r.eof }

// TakeFrame extracts and parses one complete frame if one is buffered,
// per RFC 7540 Section 4.1's fixed 9-octet header plus variable
// payload framing.
func (r *Reader) TakeFrame() (*Frame, bool, error) {
	p := r.pending()
	if len(p) < frameHeaderLen {
		return nil, false, nil
	}
	h := parseFrameHeader(p)
	if h.Length > r.maxFrameSize {
		return nil, false, NewConnectionError(ErrCodeFrameSizeError, "frame length %d exceeds MAX_FRAME_SIZE %d", h.Length, r.maxFrameSize)
	}
	need := frameHeaderLen + int(h.Length)
	if len(p) < need {
		return nil, false, nil
	}
	payload := p[frameHeaderLen:need]
	f, err := parseFramePayload(h, payload)
	r.YieldReader(need)
	if err != nil {
		return nil, true, err
	}
	return f, true, nil
}

// YieldReader advances past n consumed bytes, compacting the buffer
// once the consumed prefix grows large relative to what's left, so a
// long-lived connection doesn't retain an ever-growing backing array.
func (r *Reader) YieldReader(n int) {
	r.consumed += n
	if r.consumed > 0 && r.consumed >= len(r.buf.B)/2 {
		remaining := append([]byte(nil), r.buf.B[r.consumed:]...)
		r.buf.Reset()
		r.buf.Write(remaining)
		r.consumed = 0
	}
}

// WriteOperation describes the next chunk of bytes an adapter should
// write to the transport, spec.md Section 4.11.
type WriteOperation struct {
	Data []byte
	// Done reports there is nothing queued right now; an adapter
	// should stop polling until more frames are queued.
	Done bool
}

// Writer queues serialized frame bytes for an adapter to drain. Unlike
// Reader it does not own a growable accumulate-then-parse buffer: it's
// just an ordered byte queue plus a cursor into the head chunk, so
// partial adapter writes (report_write_result(n) with n less than
// len(Data)) don't require re-copying anything.
type Writer struct {
	queue  [][]byte
	cursor int // bytes of queue[0] already written
}

func newWriter() *Writer { return &Writer{} }

// enqueue adds a fully-serialized frame's bytes to the write queue.
func (w *Writer) enqueue(b []byte) {
	if len(b) == 0 {
		return
	}
	w.queue = append(w.queue, b)
}

// NextWriteOperation returns the next slice an adapter should attempt
// to write. Calling it repeatedly without a ReportWriteResult in
// between returns the same slice.
func (w *Writer) NextWriteOperation() WriteOperation {
	for len(w.queue) > 0 && w.cursor >= len(w.queue[0]) {
		w.queue = w.queue[1:]
		w.cursor = 0
	}
	if len(w.queue) == 0 {
		return WriteOperation{Done: true}
	}
	return WriteOperation{Data: w.queue[0][w.cursor:]}
}

// ReportWriteResult advances the cursor by n, the number of bytes the
// adapter actually managed to write (which may be a short write).
func (w *Writer) ReportWriteResult(n int) {
	w.cursor += n
}

// YieldWriter reports how many bytes are currently queued, letting an
// adapter decide whether it's worth flushing now or batching more
// frames first.
func (w *Writer) YieldWriter() int {
	total := -w.cursor
	for _, b := range w.queue {
		total += len(b)
	}
	if total < 0 {
		total = 0
	}
	return total
}

// Pending reports whether any bytes remain queued.
func (w *Writer) Pending() bool { return w.YieldWriter() > 0 }
