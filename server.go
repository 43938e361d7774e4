package h2

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// RequestHandler processes one request. It runs synchronously from
// inside Server's cooperative loop and is invoked once, when the
// request's HEADERS block completes; DATA that arrives later is
// buffered on the StreamContext and does not invoke the handler again.
type RequestHandler func(ctx *StreamContext)

// ErrorHandler is notified of connection- and stream-level failures
// that the engine could not route to a RequestHandler, spec.md
// Section 7.
type ErrorHandler func(err error)

// StreamContext is the request-scoped handle a RequestHandler operates
// on: it can read the request as it arrives and write a response,
// without ever seeing a Frame or a Connection directly.
type StreamContext struct {
	conn     *Connection
	streamID uint32

	Headers []HeaderField

	bodyChunks [][]byte
	bodyClosed bool

	respondedHeaders bool
}

// Method / Path / Scheme / Authority read the HTTP/2 pseudo-headers,
// RFC 7540 Section 8.1.2.3, returning "" if absent.
func (ctx *StreamContext) Method() string    { return ctx.pseudo(":method") }
func (ctx *StreamContext) Path() string      { return ctx.pseudo(":path") }
func (ctx *StreamContext) Scheme() string    { return ctx.pseudo(":scheme") }
func (ctx *StreamContext) Authority() string { return ctx.pseudo(":authority") }

func (ctx *StreamContext) pseudo(name string) string {
	for _, f := range ctx.Headers {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// ReadBody returns the body bytes buffered so far and whether the body
// is complete. Bytes that arrive after the call are appended to the
// context's buffer and seen by a later call.
func (ctx *StreamContext) ReadBody() (data []byte, done bool) {
	total := 0
	for _, c := range ctx.bodyChunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range ctx.bodyChunks {
		out = append(out, c...)
	}
	return out, ctx.bodyClosed
}

// RespondWithString sends a complete response whose body is s,
// spec.md's respond_with_string.
func (ctx *StreamContext) RespondWithString(status int, headers []HeaderField, s string) {
	ctx.RespondWithBytes(status, headers, []byte(s))
}

// RespondWithBytes sends a complete response with a fixed body,
// spec.md's respond_with_bigstring.
func (ctx *StreamContext) RespondWithBytes(status int, headers []HeaderField, body []byte) {
	ctx.sendResponseHeaders(status, headers, len(body) == 0)
	if len(body) > 0 {
		ctx.conn.SendData(ctx.streamID, body, true)
	}
}

// StreamWriter is returned by RespondWithStreaming so a handler can
// push body chunks as they become available.
type StreamWriter struct {
	conn     *Connection
	streamID uint32
}

// Write queues len(p) bytes of body onto the stream. Bytes beyond the
// current send window are buffered and drained automatically once
// WINDOW_UPDATE frames arrive, so while the stream is open the full
// length is accepted. Once the stream has closed, Write returns a
// *ClosedStreamError. Not safe to call after End.
func (w *StreamWriter) Write(p []byte) (int, error) {
	if _, ok := w.conn.streams[w.streamID]; !ok {
		return 0, &ClosedStreamError{StreamID: w.streamID}
	}
	w.conn.SendData(w.streamID, p, false)
	return len(p), nil
}

// End finalizes the stream, optionally attaching trailers.
func (w *StreamWriter) End(trailers []HeaderField) {
	if len(trailers) > 0 {
		block := w.conn.hpackEnc.Encode(nil, trailers)
		w.conn.emitHeaderFrames(w.streamID, block, true)
		if s, ok := w.conn.streams[w.streamID]; ok {
			s.EndStreamSent = true
			w.conn.maybeCloseStream(s)
		}
		return
	}
	w.conn.SendData(w.streamID, nil, true)
}

// RespondWithStreaming begins a response whose body will be written
// incrementally through the returned StreamWriter, spec.md's
// respond_with_streaming.
func (ctx *StreamContext) RespondWithStreaming(status int, headers []HeaderField) *StreamWriter {
	ctx.sendResponseHeaders(status, headers, false)
	return &StreamWriter{conn: ctx.conn, streamID: ctx.streamID}
}

func (ctx *StreamContext) sendResponseHeaders(status int, headers []HeaderField, endStream bool) {
	fields := make([]HeaderField, 0, len(headers)+1)
	fields = append(fields, HeaderField{Name: ":status", Value: statusText(status), Indexing: IndexIncremental})
	fields = append(fields, headers...)
	ctx.conn.SendHeaders(ctx.streamID, fields, endStream)
	ctx.respondedHeaders = true
}

// Push initiates a server push, RFC 7540 Section 8.2, promising the
// given request headers on a newly reserved stream and returning a
// StreamContext the caller responds on exactly like a real request.
func (ctx *StreamContext) Push(requestHeaders []HeaderField) (*StreamContext, bool) {
	if !ctx.conn.peer.EnablePush {
		return nil, false
	}
	promised := ctx.conn.OpenStream()
	promised.transition(StreamReservedLocal)
	block := ctx.conn.hpackEnc.Encode(nil, requestHeaders)
	ctx.conn.writer.enqueue(serializePushPromise(ctx.streamID, promised.ID, block, true))
	return &StreamContext{conn: ctx.conn, streamID: promised.ID, Headers: requestHeaders}, true
}

// Server wires an EventHandler implementation onto a Connection,
// dispatching complete request lifecycles to a RequestHandler.
type Server struct {
	config  Config
	onError ErrorHandler
	handle  RequestHandler
	metrics *Metrics
	log     zerolog.Logger

	contexts map[uint32]*StreamContext
}

// Create builds a Server, spec.md's server-construction entry point.
func Create(config Config, onError ErrorHandler, handle RequestHandler) *Server {
	config.setDefaults()
	return &Server{
		config:   config,
		onError:  onError,
		handle:   handle,
		metrics:  NewMetrics(),
		log:      Logger,
		contexts: make(map[uint32]*StreamContext),
	}
}

// NewConnection creates a fresh per-connection engine bound to this
// server's handler, ready for an adapter to drive.
func (srv *Server) NewConnection() *Connection {
	conn := NewConnection(srv.config, true, srv, srv.metrics)
	conn.Start()
	return conn
}

func (srv *Server) OnHeaders(c *Connection, streamID uint32, fields []HeaderField, endStream bool) {
	ctx := &StreamContext{conn: c, streamID: streamID, Headers: fields, bodyClosed: endStream}
	srv.contexts[streamID] = ctx
	defer func() {
		if r := recover(); r != nil {
			if srv.onError != nil {
				srv.onError(WrapInternal(fmt.Errorf("request handler panic: %v", r)))
			}
			if ctx.respondedHeaders {
				c.SendRstStream(streamID, ErrCodeInternalError)
			} else {
				ctx.RespondWithString(500, nil, "")
			}
		}
	}()
	srv.handle(ctx)
}

func (srv *Server) OnData(c *Connection, streamID uint32, data []byte, endStream bool) {
	ctx, ok := srv.contexts[streamID]
	if !ok {
		return
	}
	if len(data) > 0 {
		ctx.bodyChunks = append(ctx.bodyChunks, append([]byte(nil), data...))
	}
	if endStream {
		ctx.bodyClosed = true
	}
}

func (srv *Server) OnTrailers(c *Connection, streamID uint32, fields []HeaderField) {
	if ctx, ok := srv.contexts[streamID]; ok {
		ctx.bodyClosed = true
		_ = ctx
	}
}

func (srv *Server) OnStreamClosed(c *Connection, streamID uint32, err error) {
	delete(srv.contexts, streamID)
	if err != nil && srv.onError != nil {
		srv.onError(err)
	}
}

func (srv *Server) OnGoAway(c *Connection, lastStreamID uint32, code ErrorCode, debug []byte) {
	if srv.onError != nil && code != ErrCodeNoError {
		srv.onError(NewConnectionError(code, "peer sent GOAWAY: %s", string(debug)))
	}
}

func statusText(code int) string {
	return strconv.Itoa(code)
}
