package h2

import "fmt"

// StreamState is one of the states of the RFC 7540 Section 5.1 stream
// state machine.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamReservedLocal
	StreamReservedRemote
	StreamOpen
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
)

var streamStateNames = [...]string{
	StreamIdle:             "idle",
	StreamReservedLocal:    "reserved(local)",
	StreamReservedRemote:   "reserved(remote)",
	StreamOpen:             "open",
	StreamHalfClosedLocal:  "half-closed(local)",
	StreamHalfClosedRemote: "half-closed(remote)",
	StreamClosed:           "closed",
}

func (s StreamState) String() string {
	if int(s) >= 0 && int(s) < len(streamStateNames) {
		return streamStateNames[s]
	}
	return fmt.Sprintf("StreamState(%d)", int(s))
}

// HeaderField is one entry of an ordered header list, spec.md Section
// 4.3. Unlike a map, order and duplicates survive intact, and each
// field carries the indexing policy its sender chose for it.
type HeaderField struct {
	Name  string
	Value string

	// Sensitive marks a field as "never indexed" (RFC 7541 Section
	// 6.2.3): it must always be literal-encoded and must never be
	// inserted into either peer's dynamic table, regardless of what
	// IndexingPolicy says.
	Sensitive bool

	// Indexing controls whether an HPACK encoder is allowed to add
	// this field to its dynamic table.
	Indexing IndexingPolicy
}

// IndexingPolicy selects an HPACK literal representation, RFC 7541
// Section 6.2.
type IndexingPolicy int

const (
	// IndexIncremental adds the field to the dynamic table after
	// emitting it (RFC 7541 Section 6.2.1) if it isn't already fully
	// indexed.
	IndexIncremental IndexingPolicy = iota
	// IndexNever emits a literal without ever adding it to the table,
	// but permits an intermediary to re-encode it differently.
	IndexNever
	// IndexNeverIndexed is IndexNever plus RFC 7541 Section 6.2.3's
	// "never indexed" bit: intermediaries must preserve this literal
	// representation across re-encoding, used for genuinely sensitive
	// values like auth headers or cookies.
	IndexNeverIndexed
)

func (f HeaderField) size() int {
	// RFC 7541 Section 4.1: entry size accounts for name, value, and
	// a fixed 32-octet overhead.
	return len(f.Name) + len(f.Value) + 32
}

// isLegalStreamTransition reports whether moving a stream from a to b
// is permitted by RFC 7540 Section 5.1's state diagram. It does not
// distinguish sending from receiving: the same table serves both, and
// the caller chooses the target state for the frame it sent or got.
func isLegalStreamTransition(from, to StreamState) bool {
	if from == to {
		return true
	}
	switch from {
	case StreamIdle:
		return to == StreamOpen || to == StreamReservedLocal || to == StreamReservedRemote
	case StreamReservedLocal:
		return to == StreamHalfClosedRemote || to == StreamClosed
	case StreamReservedRemote:
		return to == StreamHalfClosedLocal || to == StreamClosed
	case StreamOpen:
		return to == StreamHalfClosedLocal || to == StreamHalfClosedRemote || to == StreamClosed
	case StreamHalfClosedLocal:
		return to == StreamClosed
	case StreamHalfClosedRemote:
		return to == StreamClosed
	case StreamClosed:
		return false
	default:
		return false
	}
}

// Stream is one HTTP/2 stream's protocol-level state: no I/O, no
// goroutines, just what spec.md Section 4.9 needs to enforce legal
// frame sequencing and flow control for a single stream.
type Stream struct {
	ID    uint32
	State StreamState

	// RequestHeaders / ResponseHeaders / Trailers are populated as
	// HEADERS/CONTINUATION sequences complete; ordered, per
	// HeaderField above.
	RequestHeaders  []HeaderField
	ResponseHeaders []HeaderField
	Trailers        []HeaderField

	// SendWindow / RecvWindow are this stream's flow-control credit in
	// each direction, RFC 7540 Section 6.9. Signed because
	// SETTINGS_INITIAL_WINDOW_SIZE changes can drive SendWindow
	// negative for already-open streams (Section 6.9.2).
	SendWindow int64
	RecvWindow int64

	// RecvWindowConsumed tracks bytes received but not yet released
	// back to the peer via WINDOW_UPDATE.
	RecvWindowConsumed int64

	// Priority is not set by the connection, which looks nodes up in
	// its priorityTree by stream id; it stays nil.
	Priority *priorityNode

	EndStreamSent     bool
	EndStreamReceived bool

	// pendingHeaderBlock accumulates HEADERS/PUSH_PROMISE + CONTINUATION
	// fragments until END_HEADERS, spec.md Section 4.9's header-block
	// contiguity rule.
	pendingHeaderBlock    []byte
	headerBlockIsTrailers bool

	// pendingBody holds DATA bytes accepted from the application but not
	// yet written to the wire because the send window ran out;
	// pendingBodyEndStream remembers whether the deferred write should
	// carry END_STREAM once it drains.
	pendingBody          []byte
	pendingBodyEndStream bool

	// peerInitiated is true for streams admitted from a peer HEADERS
	// frame, false for ones this endpoint opened itself (requests it
	// sends, or its own server pushes).
	peerInitiated bool

	Weight   uint8
	closeErr error // not set by any code path in this package
}

// newStream constructs a stream in the idle state. Callers pass the
// peer's INITIAL_WINDOW_SIZE as the send window and the local one as
// the receive window.
func newStream(id uint32, initialSendWindow, initialRecvWindow uint32) *Stream {
	return &Stream{
		ID:         id,
		State:      StreamIdle,
		SendWindow: int64(initialSendWindow),
		RecvWindow: int64(initialRecvWindow),
		Weight:     16, // RFC 7540 Section 5.3.5 default
	}
}

// transition moves the stream to state 'to', returning a StreamError
// if the move violates RFC 7540 Section 5.1.
func (s *Stream) transition(to StreamState) error {
	if !isLegalStreamTransition(s.State, to) {
		return NewStreamError(s.ID, ErrCodeStreamClosed,
			"illegal state transition %s -> %s", s.State, to)
	}
	s.State = to
	return nil
}

// appendHeaderBlockFragment buffers a HEADERS/PUSH_PROMISE/CONTINUATION
// fragment; the caller assembles the full block once END_HEADERS
// arrives.
func (s *Stream) appendHeaderBlockFragment(b []byte) {
	s.pendingHeaderBlock = append(s.pendingHeaderBlock, b...)
}

func (s *Stream) takeHeaderBlock() []byte {
	block := s.pendingHeaderBlock
	s.pendingHeaderBlock = nil
	return block
}
