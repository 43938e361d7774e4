package h2

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http/httpguts"
)

// EventHandler receives protocol-level notifications a Connection
// can't act on by itself: a complete request (server side) or response
// (client side), a mid-stream error, or connection teardown. server.go
// and client.go implement it; connection.go only knows the shape.
type EventHandler interface {
	OnHeaders(c *Connection, streamID uint32, fields []HeaderField, endStream bool)
	OnData(c *Connection, streamID uint32, data []byte, endStream bool)
	OnTrailers(c *Connection, streamID uint32, fields []HeaderField)
	OnStreamClosed(c *Connection, streamID uint32, err error)
	OnGoAway(c *Connection, lastStreamID uint32, code ErrorCode, debug []byte)
}

// Connection is the RFC 7540 connection-level state machine: frame
// codec, HPACK, flow control, and the stream table, wired together with
// no I/O of its own (spec.md Section 5). An adapter feeds it bytes via
// Read/ReadEOF and drains bytes via NextWriteOperation, calling
// Process after every Read to let buffered frames run.
type Connection struct {
	isServer bool
	config   Config

	local PeerSettings // this endpoint's advertised settings
	peer  PeerSettings // the other endpoint's settings, RFC 7540 Section 11.3 defaults until updated

	localSettingsAcked bool
	pendingLocalDelta  *PeerSettings // our last unacked SETTINGS, applied to `local` on ACK

	streams  map[uint32]*Stream
	priority *priorityTree
	flow     *connFlowController

	hpackEnc *HPACKEncoder
	hpackDec *HPACKDecoder

	reader *Reader
	writer *Writer

	nextLocalStreamID uint32 // next id this endpoint will use for a self-initiated stream
	highestPeerStream uint32 // highest stream id opened by the peer so far

	goAwaySent     bool
	goAwayReceived bool
	lastGoodStream uint32

	prefaceSent bool
	prefaceSeen bool // server: consumed client preface; client: n/a, always true

	handler     EventHandler
	metrics     *Metrics
	log         zerolog.Logger
	pingHandler func(rtt time.Duration)

	pendingPings map[[8]byte]time.Time // outstanding PINGs keyed by opaque payload, RFC 7540 Section 6.7

	// openHeaderBlockStream is the stream a HEADERS or PUSH_PROMISE frame
	// left with its header block still open (END_HEADERS unset), or 0 if
	// none. RFC 7540 Section 4.3: HPACK decoding state is connection-wide,
	// so nothing but a CONTINUATION on this exact stream may intervene
	// until END_HEADERS arrives.
	openHeaderBlockStream      uint32
	openHeaderBlockPushPromise bool // the open block above belongs to a PUSH_PROMISE, not HEADERS
}

// NewConnection builds a Connection ready to run either role. isServer
// controls stream id parity (RFC 7540 Section 5.1.1) and whether a
// connection preface is expected on input rather than sent on output.
func NewConnection(config Config, isServer bool, handler EventHandler, metrics *Metrics) *Connection {
	config.setDefaults()
	local := DefaultPeerSettings()
	local.MaxConcurrentStreams = config.MaxConcurrentStreams
	local.InitialWindowSize = config.InitialWindowSize
	local.EnablePush = config.EnableServerPush

	c := &Connection{
		isServer:     isServer,
		config:       config,
		local:        local,
		peer:         DefaultPeerSettings(),
		streams:      make(map[uint32]*Stream),
		priority:     newPriorityTree(),
		flow:         newConnFlowController(),
		hpackEnc:     NewHPACKEncoder(int(DefaultPeerSettings().HeaderTableSize)),
		hpackDec:     NewHPACKDecoder(int(local.HeaderTableSize)),
		reader:       newReader(local.MaxFrameSize),
		writer:       newWriter(),
		handler:      handler,
		metrics:      metrics,
		log:          newConnLogger(isServer),
		pendingPings: make(map[[8]byte]time.Time),
		prefaceSeen:  isServer == false,
	}
	if isServer {
		c.nextLocalStreamID = 2
	} else {
		c.nextLocalStreamID = 1
	}
	c.hpackEnc.dyn.onEvict = c.onHpackEvict
	c.hpackDec.dyn.onEvict = c.onHpackEvict
	return c
}

// onHpackEvict keeps hpack_evictions_total and hpack_dynamic_table_bytes
// current whenever either side's dynamic table drops an entry, RFC 7541
// Section 4.3.
func (c *Connection) onHpackEvict(dynamicTableEntry) {
	c.metrics.hpackEvictions.Inc()
	c.metrics.dynamicTableSize.Store(int64(c.hpackEnc.dyn.size + c.hpackDec.dyn.size))
}

// Start emits whatever bytes must go out before any frame processing
// can happen: the client connection preface plus both sides' initial
// SETTINGS frame.
func (c *Connection) Start() {
	if !c.isServer {
		c.writer.enqueue(append([]byte(nil), ConnectionPreface...))
	}
	c.sendSettings()
}

func (c *Connection) sendSettings() {
	settings := []Setting{
		{ID: SettingHeaderTableSize, Value: c.local.HeaderTableSize},
		{ID: SettingEnablePush, Value: boolToUint32(c.local.EnablePush)},
		{ID: SettingMaxConcurrentStreams, Value: c.local.MaxConcurrentStreams},
		{ID: SettingInitialWindowSize, Value: c.local.InitialWindowSize},
		{ID: SettingMaxFrameSize, Value: c.local.MaxFrameSize},
	}
	pending := c.local
	c.pendingLocalDelta = &pending
	c.writer.enqueue(serializeSettings(settings))
	LogSettings(&c.log, settings, false)
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// --- I/O-agnostic surface, spec.md Section 4.11 ---

func (c *Connection) NextReadOperation() ReadOperation   { return c.reader.NextReadOperation() }
func (c *Connection) Read(data []byte)                   { c.reader.Read(data) }
func (c *Connection) ReadEOF()                           { c.reader.ReadEOF() }
func (c *Connection) NextWriteOperation() WriteOperation { return c.writer.NextWriteOperation() }
func (c *Connection) ReportWriteResult(n int)            { c.writer.ReportWriteResult(n) }
func (c *Connection) YieldWriter() int                   { return c.writer.YieldWriter() }

// Process drains every complete frame currently buffered, applying
// each to connection and stream state. It never blocks; an adapter
// calls it after every Read.
func (c *Connection) Process() error {
	if c.isServer && !c.prefaceSeen {
		if !c.consumePreface() {
			return nil
		}
	}
	for {
		f, ok, err := c.reader.TakeFrame()
		if err != nil {
			return c.fail(err)
		}
		if !ok {
			if c.reader.AtEOF() && len(c.reader.pending()) > 0 {
				return c.fail(NewConnectionError(ErrCodeProtocolError, "connection closed with a truncated frame"))
			}
			c.pumpReadyStreams()
			return nil
		}
		c.metrics.framesRead.Inc()
		if err := c.handleFrame(f); err != nil {
			if serr, ok := err.(*StreamError); ok {
				c.resetStream(serr.StreamID, serr.Code)
				continue
			}
			return c.fail(err)
		}
	}
}

func (c *Connection) consumePreface() bool {
	p := c.reader.pending()
	if len(p) < len(ConnectionPreface) {
		return false
	}
	c.reader.YieldReader(len(ConnectionPreface))
	c.prefaceSeen = true
	return true
}

func (c *Connection) fail(err error) error {
	code := ErrCodeInternalError
	debug := err.Error()
	if cerr, ok := err.(*ConnectionError); ok {
		code = cerr.Code
	}
	c.metrics.connErrors.Inc()
	LogError(&c.log, err, "connection")
	c.SendGoAway(code, []byte(debug))
	return err
}

// --- frame dispatch ---

func (c *Connection) handleFrame(f *Frame) error {
	LogFrame(&c.log, "recv", f.Header.Type.String(), f.Header.StreamID, int(f.Header.Length), f.Header.Flags)

	if c.openHeaderBlockStream != 0 {
		if f.Header.Type != FrameTypeContinuation || f.Header.StreamID != c.openHeaderBlockStream {
			return NewConnectionError(ErrCodeProtocolError,
				"expected CONTINUATION on stream %d, got %s on stream %d",
				c.openHeaderBlockStream, f.Header.Type, f.Header.StreamID)
		}
	}

	switch f.Header.Type {
	case FrameTypeSettings:
		return c.handleSettings(f)
	case FrameTypePing:
		return c.handlePing(f)
	case FrameTypeWindowUpdate:
		return c.handleWindowUpdate(f)
	case FrameTypeGoAway:
		return c.handleGoAway(f)
	case FrameTypeHeaders:
		return c.handleHeaders(f)
	case FrameTypeContinuation:
		return c.handleContinuation(f)
	case FrameTypeData:
		return c.handleData(f)
	case FrameTypeRSTStream:
		return c.handleRSTStream(f)
	case FrameTypePriority:
		return c.handlePriority(f)
	case FrameTypePushPromise:
		return c.handlePushPromise(f)
	default:
		return nil // unknown frame types are ignored, RFC 7540 Section 5.5
	}
}

func (c *Connection) handleSettings(f *Frame) error {
	sp := f.Settings
	if sp.Ack {
		if c.pendingLocalDelta != nil {
			c.local = *c.pendingLocalDelta
			c.pendingLocalDelta = nil
			c.localSettingsAcked = true
		}
		return nil
	}
	oldInitial := c.peer.InitialWindowSize
	for _, s := range sp.Settings {
		if err := c.peer.apply(s); err != nil {
			return err
		}
	}
	if c.peer.InitialWindowSize != oldInitial {
		if err := adjustInitialWindowSize(c.streams, oldInitial, c.peer.InitialWindowSize); err != nil {
			return err
		}
	}
	c.hpackEnc = replaceEncoderTableSize(c.hpackEnc, int(c.peer.HeaderTableSize))
	LogSettings(&c.log, sp.Settings, false)
	c.writer.enqueue(serializeSettingsAck())
	return nil
}

// replaceEncoderTableSize keeps the encoder's dynamic table contents
// but folds in a new ceiling requested by the peer's SETTINGS.
func replaceEncoderTableSize(enc *HPACKEncoder, n int) *HPACKEncoder {
	enc.dyn.setMaxSize(n)
	return enc
}

func (c *Connection) handlePing(f *Frame) error {
	if f.Ping.Ack {
		sent, ok := c.pendingPings[f.Ping.Data]
		if !ok {
			return nil // unsolicited ACK, RFC 7540 Section 6.7 leaves this unspecified; ignore
		}
		delete(c.pendingPings, f.Ping.Data)
		rtt := time.Since(sent)
		LogPing(&c.log, rtt)
		if c.pingHandler != nil {
			c.pingHandler(rtt)
		}
		return nil
	}
	c.writer.enqueue(serializePing(f.Ping.Data, true))
	return nil
}

func (c *Connection) handleWindowUpdate(f *Frame) error {
	inc := f.WindowUpdate.Increment
	if inc == 0 {
		if f.Header.StreamID == 0 {
			return NewConnectionError(ErrCodeProtocolError, "WINDOW_UPDATE increment 0 on connection")
		}
		return NewStreamError(f.Header.StreamID, ErrCodeProtocolError, "WINDOW_UPDATE increment 0")
	}
	if f.Header.StreamID == 0 {
		next, err := applyWindowUpdate(c.flow.sendWindow, inc)
		if err != nil {
			return err
		}
		c.flow.sendWindow = next
		LogFlowControl(&c.log, 0, int32(next), "window_update")
		return nil
	}
	s, ok := c.streams[f.Header.StreamID]
	if !ok {
		return nil // RFC 7540 Section 6.9: window updates on closed streams are ignored
	}
	next, err := applyWindowUpdate(s.SendWindow, inc)
	if err != nil {
		return NewStreamError(s.ID, ErrCodeFlowControlError, "window overflow")
	}
	s.SendWindow = next
	LogFlowControl(&c.log, s.ID, int32(next), "window_update")
	return nil
}

func (c *Connection) handleGoAway(f *Frame) error {
	c.goAwayReceived = true
	LogGoAway(&c.log, "recv", f.GoAway.LastStreamID, f.GoAway.ErrorCode, string(f.GoAway.DebugData))
	if c.handler != nil {
		c.handler.OnGoAway(c, f.GoAway.LastStreamID, f.GoAway.ErrorCode, f.GoAway.DebugData)
	}
	return nil
}

func (c *Connection) handlePriority(f *Frame) error {
	id := f.Header.StreamID
	if id == 0 {
		return NewConnectionError(ErrCodeProtocolError, "PRIORITY on stream 0")
	}
	if _, live := c.streams[id]; !live && !c.priority.wasRecentlyClosed(id) {
		LogPriorityIdleTarget(&c.log, id)
	}
	LogPriority(&c.log, id, f.Priority.StreamDep, f.Priority.Weight, f.Priority.Exclusive)
	return c.priority.reprioritize(id, *f.Priority)
}

func (c *Connection) handleRSTStream(f *Frame) error {
	s, ok := c.streams[f.Header.StreamID]
	if !ok {
		return NewConnectionError(ErrCodeProtocolError, "RST_STREAM on unknown stream %d", f.Header.StreamID)
	}
	c.metrics.streamsReset.Inc()
	s.transition(StreamClosed)
	c.priority.close(s.ID)
	delete(c.streams, s.ID)
	if c.handler != nil {
		c.handler.OnStreamClosed(c, s.ID, NewStreamError(s.ID, f.RSTStream.ErrorCode, "reset by peer"))
	}
	return nil
}

func (c *Connection) handleHeaders(f *Frame) error {
	id := f.Header.StreamID
	if id == 0 {
		return NewConnectionError(ErrCodeProtocolError, "HEADERS on stream 0")
	}
	s, ok := c.streams[id]
	if !ok {
		if err := c.admitPeerStream(id); err != nil {
			return err
		}
		s = c.streams[id]
	}
	if s.State == StreamClosed {
		return NewStreamError(id, ErrCodeStreamClosed, "HEADERS on closed stream %d", id)
	}
	if err := s.transition(StreamOpen); err != nil {
		if s.State != StreamHalfClosedLocal {
			return err
		}
	}
	if f.Headers.Priority != nil {
		c.priority.reprioritize(id, *f.Headers.Priority)
	}
	s.appendHeaderBlockFragment(f.Headers.HeaderBlockFragment)
	if f.Headers.EndHeaders {
		return c.finishHeaderBlock(s, f.EndStream())
	}
	c.openHeaderBlockStream = id
	return nil
}

func (c *Connection) handleContinuation(f *Frame) error {
	id := f.Header.StreamID
	if c.openHeaderBlockStream == 0 || id != c.openHeaderBlockStream {
		return NewConnectionError(ErrCodeProtocolError, "unexpected CONTINUATION on stream %d", id)
	}
	if c.openHeaderBlockPushPromise {
		// Client-side push consumption is out of scope; just track
		// contiguity through to END_HEADERS and drop the fragment.
		if f.Continuation.EndHeaders {
			c.openHeaderBlockStream = 0
			c.openHeaderBlockPushPromise = false
		}
		return nil
	}
	s, ok := c.streams[id]
	if !ok {
		return NewConnectionError(ErrCodeProtocolError, "CONTINUATION on unknown stream %d", id)
	}
	s.appendHeaderBlockFragment(f.Continuation.HeaderBlockFragment)
	if f.Continuation.EndHeaders {
		c.openHeaderBlockStream = 0
		return c.finishHeaderBlock(s, s.headerBlockIsTrailers && s.EndStreamReceived)
	}
	return nil
}

func (c *Connection) finishHeaderBlock(s *Stream, endStream bool) error {
	block := s.takeHeaderBlock()
	fields, err := c.hpackDec.Decode(block)
	if err != nil {
		return NewConnectionError(ErrCodeCompressionError, "hpack decode: %v", err)
	}
	LogHPACK(&c.log, "decode", len(block), len(block))
	if err := validateHeaderFields(fields); err != nil {
		return err
	}
	if s.peerInitiated && s.ID > c.lastGoodStream {
		c.lastGoodStream = s.ID
	}

	trailers := s.EndStreamReceived
	if endStream {
		s.EndStreamReceived = true
	}
	if trailers {
		s.Trailers = fields
		if c.handler != nil {
			c.handler.OnTrailers(c, s.ID, fields)
		}
	} else {
		s.RequestHeaders = fields
		if c.handler != nil {
			c.handler.OnHeaders(c, s.ID, fields, endStream)
		}
	}
	if endStream {
		c.maybeCloseStream(s)
	}
	return nil
}

// validateHeaderFields rejects malformed header names/values, RFC 7540
// Section 8.1.2 and 10.3, the same httpguts checks the production
// golang.org/x/net/http2 decoder applies to a completed header block.
func validateHeaderFields(fields []HeaderField) error {
	sawRegular := false
	for _, f := range fields {
		name := f.Name
		if strings.HasPrefix(name, ":") {
			// pseudo-headers skip httpguts; the only rule applied here is
			// that they precede every regular field, RFC 7540 Section 8.1.2.1
			if sawRegular {
				return NewConnectionError(ErrCodeProtocolError, "pseudo-header %q after regular header", name)
			}
			continue
		}
		sawRegular = true
		if !httpguts.ValidHeaderFieldName(name) {
			return NewConnectionError(ErrCodeProtocolError, "malformed header field name %q", name)
		}
		if !httpguts.ValidHeaderFieldValue(f.Value) {
			return NewConnectionError(ErrCodeProtocolError, "malformed header field value for %q", name)
		}
	}
	return nil
}

func (c *Connection) handleData(f *Frame) error {
	s, ok := c.streams[f.Header.StreamID]
	if !ok {
		return NewConnectionError(ErrCodeProtocolError, "DATA on unknown stream %d", f.Header.StreamID)
	}
	if s.State != StreamOpen && s.State != StreamHalfClosedLocal {
		return NewStreamError(s.ID, ErrCodeStreamClosed, "DATA on stream %d in state %s", s.ID, s.State)
	}
	n := len(f.Data.Data) + int(f.Data.PadLength)
	c.flow.recordReceived(n)
	s.RecvWindow -= int64(n)
	s.RecvWindowConsumed += int64(n)

	if f.EndStream() {
		s.EndStreamReceived = true
	}
	if c.handler != nil {
		c.handler.OnData(c, s.ID, f.Data.Data, f.EndStream())
	}
	c.maybeReleaseWindow(s)
	if f.EndStream() {
		c.maybeCloseStream(s)
	}
	return nil
}

func (c *Connection) handlePushPromise(f *Frame) error {
	if !c.local.EnablePush {
		return NewConnectionError(ErrCodeProtocolError, "PUSH_PROMISE received with push disabled")
	}
	if !f.PushPromise.EndHeaders {
		// Client-side push consumption is out of scope for the core state
		// machine, but the header block still occupies the connection's
		// single HPACK decoding stream until END_HEADERS arrives.
		c.openHeaderBlockStream = f.Header.StreamID
		c.openHeaderBlockPushPromise = true
	}
	return nil
}

// admitPeerStream validates and registers a stream the peer just
// opened by sending HEADERS, RFC 7540 Section 5.1.1 (id parity and
// monotonicity) and Section 5.1.2 (MAX_CONCURRENT_STREAMS).
func (c *Connection) admitPeerStream(id uint32) error {
	wantOdd := c.isServer
	if (id%2 == 1) != wantOdd {
		return NewConnectionError(ErrCodeProtocolError, "stream id %d has wrong parity", id)
	}
	if id <= c.highestPeerStream {
		return NewConnectionError(ErrCodeProtocolError, "stream id %d is not monotonically increasing", id)
	}
	if uint32(c.countOpenPeerStreams()) >= c.local.MaxConcurrentStreams {
		return NewStreamError(id, ErrCodeRefusedStream, "MAX_CONCURRENT_STREAMS exceeded")
	}
	c.highestPeerStream = id
	s := newStream(id, c.peer.InitialWindowSize, c.local.InitialWindowSize)
	s.peerInitiated = true
	c.streams[id] = s
	c.priority.nodeFor(id)
	c.metrics.streamsOpened.Inc()
	LogStream(&c.log, id, StreamIdle, StreamOpen)
	return nil
}

func (c *Connection) countOpenPeerStreams() int {
	n := 0
	for _, s := range c.streams {
		if s.State != StreamClosed && s.State != StreamIdle {
			n++
		}
	}
	return n
}

func (c *Connection) maybeReleaseWindow(s *Stream) {
	if s.RecvWindowConsumed >= windowUpdateThreshold(int64(c.local.InitialWindowSize)) {
		c.writer.enqueue(serializeWindowUpdate(s.ID, uint32(s.RecvWindowConsumed)))
		s.RecvWindow += s.RecvWindowConsumed
		s.RecvWindowConsumed = 0
	}
	if c.flow.recvConsumed >= windowUpdateThreshold(defaultConnectionWindowSize) {
		c.writer.enqueue(serializeWindowUpdate(0, uint32(c.flow.recvConsumed)))
		c.flow.release(c.flow.recvConsumed)
	}
}

func (c *Connection) maybeCloseStream(s *Stream) {
	// A pushed stream (reserved-local) never receives anything from the
	// client, so EndStreamReceived stays false forever; it can only ever
	// close from EndStreamSent alone, RFC 7540 Section 5.1.
	if s.State == StreamHalfClosedRemote && s.EndStreamSent {
		s.transition(StreamClosed)
		c.priority.close(s.ID)
		delete(c.streams, s.ID)
		c.metrics.streamsClosed.Inc()
		if c.handler != nil {
			c.handler.OnStreamClosed(c, s.ID, nil)
		}
		return
	}
	if s.EndStreamSent && s.EndStreamReceived {
		s.transition(StreamClosed)
		c.priority.close(s.ID)
		delete(c.streams, s.ID)
		c.metrics.streamsClosed.Inc()
		if c.handler != nil {
			c.handler.OnStreamClosed(c, s.ID, nil)
		}
		return
	}
	if s.EndStreamReceived {
		s.transition(StreamHalfClosedRemote)
	}
}

// --- outbound API used by server.go / client.go ---

// OpenStream allocates the next self-initiated stream id, RFC 7540
// Section 5.1.1.
func (c *Connection) OpenStream() *Stream {
	id := c.nextLocalStreamID
	c.nextLocalStreamID += 2
	s := newStream(id, c.peer.InitialWindowSize, c.local.InitialWindowSize)
	c.streams[id] = s
	c.priority.nodeFor(id)
	c.metrics.streamsOpened.Inc()
	return s
}

// SendHeaders encodes and frames fields for streamID, splitting across
// HEADERS + CONTINUATION when the block exceeds the peer's
// MAX_FRAME_SIZE, RFC 7540 Section 4.3.
func (c *Connection) SendHeaders(streamID uint32, fields []HeaderField, endStream bool) {
	s := c.streams[streamID]
	block := c.hpackEnc.Encode(nil, fields)
	LogHPACK(&c.log, "encode", len(block), len(block))
	c.emitHeaderFrames(streamID, block, endStream)
	if endStream {
		if s != nil {
			s.EndStreamSent = true
			c.maybeCloseStream(s)
		}
	} else if s != nil {
		if s.State == StreamReservedLocal {
			s.transition(StreamHalfClosedRemote)
		} else {
			s.transition(StreamOpen)
		}
	}
}

func (c *Connection) emitHeaderFrames(streamID uint32, block []byte, endStream bool) {
	max := int(c.peer.MaxFrameSize)
	if len(block) <= max {
		c.writer.enqueue(serializeHeaders(streamID, block, endStream, true))
		return
	}
	c.writer.enqueue(serializeHeaders(streamID, block[:max], endStream, false))
	block = block[max:]
	for len(block) > max {
		c.writer.enqueue(serializeContinuation(streamID, block[:max], false))
		block = block[max:]
	}
	c.writer.enqueue(serializeContinuation(streamID, block, true))
}

// SendData frames as much of data as the stream and connection send
// windows allow right now. Whatever doesn't fit is buffered on the
// stream's pendingBody rather than dropped, and pumpReadyStreams drains
// it in priority order once WINDOW_UPDATE restores credit.
func (c *Connection) SendData(streamID uint32, data []byte, endStream bool) (sent int) {
	s, ok := c.streams[streamID]
	if !ok {
		return 0
	}
	if len(s.pendingBody) > 0 {
		// A drain is already queued ahead of this call; appending here
		// preserves the stream's byte order instead of interleaving.
		s.pendingBody = append(s.pendingBody, data...)
		if endStream {
			s.pendingBodyEndStream = true
		}
		return 0
	}
	n, doneAll := c.writeAvailable(s, data, endStream)
	if doneAll {
		if endStream {
			s.EndStreamSent = true
			c.maybeCloseStream(s)
		}
		return n
	}
	s.pendingBody = append(s.pendingBody, data[n:]...)
	s.pendingBodyEndStream = endStream
	return n
}

// writeAvailable emits as much of data as the stream and connection
// send windows currently allow, splitting across MAX_FRAME_SIZE-sized
// DATA frames, RFC 7540 Section 6.9. doneAll reports whether every
// byte of data made it onto the wire.
func (c *Connection) writeAvailable(s *Stream, data []byte, endStream bool) (sent int, doneAll bool) {
	if len(data) == 0 && endStream {
		c.writer.enqueue(serializeData(s.ID, nil, true))
		c.metrics.framesWritten.Inc()
		return 0, true
	}
	max := int(c.peer.MaxFrameSize)
	for len(data) > 0 {
		allowed := consumeSendWindow(c.flow, s, min(max, len(data)))
		if allowed == 0 {
			c.metrics.flowControlStalls.Inc()
			break
		}
		last := allowed >= len(data)
		c.writer.enqueue(serializeData(s.ID, data[:allowed], last && endStream))
		sent += allowed
		data = data[allowed:]
	}
	if sent > 0 {
		c.metrics.framesWritten.Inc()
	}
	return sent, len(data) == 0
}

// drainPendingStream resumes writing streamID's buffered body after a
// WINDOW_UPDATE, writing at most one MAX_FRAME_SIZE chunk per call and
// returning how many bytes it managed to flush.
func (c *Connection) drainPendingStream(streamID uint32) int {
	s, ok := c.streams[streamID]
	if !ok || len(s.pendingBody) == 0 {
		return 0
	}
	chunk := s.pendingBody
	if max := int(c.peer.MaxFrameSize); len(chunk) > max {
		chunk = chunk[:max]
	}
	last := len(chunk) == len(s.pendingBody)
	n, doneAll := c.writeAvailable(s, chunk, last && s.pendingBodyEndStream)
	s.pendingBody = s.pendingBody[n:]
	if doneAll && last {
		if s.pendingBodyEndStream {
			s.EndStreamSent = true
			c.maybeCloseStream(s)
		}
		s.pendingBodyEndStream = false
	}
	return n
}

// pumpReadyStreams drains every stream with a buffered body in the
// priority tree's weighted-fair order, spec.md Section 4.7: each pick
// writes at most one DATA frame for the chosen stream, so ready streams
// are interleaved frame by frame in proportion to their weights.
func (c *Connection) pumpReadyStreams() {
	stalled := make(map[uint32]bool)
	for {
		ready := make(map[uint32]bool)
		for id, s := range c.streams {
			if !stalled[id] && len(s.pendingBody) > 0 {
				ready[id] = true
			}
		}
		id, ok := c.priority.pickNext(ready)
		if !ok {
			return
		}
		if c.drainPendingStream(id) == 0 {
			stalled[id] = true
		}
	}
}

func (c *Connection) SendRstStream(streamID uint32, code ErrorCode) {
	c.writer.enqueue(serializeRSTStream(streamID, code))
	if s, ok := c.streams[streamID]; ok {
		s.transition(StreamClosed)
		c.priority.close(streamID)
		delete(c.streams, streamID)
		c.metrics.streamsReset.Inc()
	}
}

func (c *Connection) resetStream(streamID uint32, code ErrorCode) {
	c.metrics.streamErrors.Inc()
	c.SendRstStream(streamID, code)
}

func (c *Connection) SendPing(data [8]byte) {
	c.pendingPings[data] = time.Now()
	c.writer.enqueue(serializePing(data, false))
}

// OnPingRTT registers a callback invoked with the measured round-trip
// time whenever a PING this side sent is acknowledged.
func (c *Connection) OnPingRTT(fn func(rtt time.Duration)) {
	c.pingHandler = fn
}

// SendGoAway begins connection shutdown, RFC 7540 Section 6.8.
func (c *Connection) SendGoAway(code ErrorCode, debug []byte) {
	if c.goAwaySent {
		return
	}
	c.goAwaySent = true
	last := c.lastGoodStream
	if last == 0 {
		last = c.highestPeerStream
	}
	c.writer.enqueue(serializeGoAway(last, code, debug))
	LogGoAway(&c.log, "send", last, code, string(debug))
}

// SendWindowUpdate manually credits streamID (0 for the connection),
// used by handlers that consume received DATA slower than it arrives.
func (c *Connection) SendWindowUpdate(streamID, increment uint32) {
	c.writer.enqueue(serializeWindowUpdate(streamID, increment))
}

// PumpPriorityData reports which stream the priority scheduler would
// serve next among those with a buffered body waiting on send-window
// credit, without draining it. Process calls pumpReadyStreams to drive
// the actual sends; this is for callers that want the scheduler's
// choice without forcing a write.
func (c *Connection) PumpPriorityData() (uint32, bool) {
	ready := make(map[uint32]bool, len(c.streams))
	for id, s := range c.streams {
		if len(s.pendingBody) > 0 {
			ready[id] = true
		}
	}
	return c.priority.pickNext(ready)
}
