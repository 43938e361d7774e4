package h2

// ResponseHandler receives a response as it arrives, the client-side
// mirror of RequestHandler, spec.md Section 9's Open Question resolved
// in favor of a symmetric client engine built on the same Connection.
type ResponseHandler func(resp *ResponseContext)

// ResponseContext is the client-side counterpart of StreamContext: a
// handle onto one in-flight request's response.
type ResponseContext struct {
	conn     *Connection
	streamID uint32

	Headers  []HeaderField
	Trailers []HeaderField

	bodyChunks [][]byte
	bodyClosed bool
}

func (r *ResponseContext) Status() string { return r.pseudo(":status") }

func (r *ResponseContext) pseudo(name string) string {
	for _, f := range r.Headers {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// ReadBody returns the body bytes buffered so far and whether the
// response is complete.
func (r *ResponseContext) ReadBody() (data []byte, done bool) {
	total := 0
	for _, c := range r.bodyChunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range r.bodyChunks {
		out = append(out, c...)
	}
	return out, r.bodyClosed
}

// Client wires an EventHandler implementation onto a Connection,
// dispatching responses to a ResponseHandler. Server-pushed (promised)
// streams are not tracked.
type Client struct {
	config  Config
	onError ErrorHandler
	handle  ResponseHandler
	metrics *Metrics

	responses map[uint32]*ResponseContext
	conn      *Connection
}

// NewClient builds a Client, spec.md Section 9's symmetric counterpart
// to Create.
func NewClient(config Config, onError ErrorHandler, handle ResponseHandler) *Client {
	config.setDefaults()
	cl := &Client{
		config:    config,
		onError:   onError,
		handle:    handle,
		metrics:   NewMetrics(),
		responses: make(map[uint32]*ResponseContext),
	}
	cl.conn = NewConnection(config, false, cl, cl.metrics)
	return cl
}

// Connection returns the underlying I/O-agnostic engine for an adapter
// to drive.
func (cl *Client) Connection() *Connection { return cl.conn }

// Start emits the connection preface and initial SETTINGS.
func (cl *Client) Start() { cl.conn.Start() }

// Request opens a new stream, sends headers (and, if provided, a
// complete body), and registers the ResponseHandler for its response.
// Odd stream ids only, RFC 7540 Section 5.1.1.
func (cl *Client) Request(headers []HeaderField, body []byte) uint32 {
	s := cl.conn.OpenStream()
	cl.responses[s.ID] = &ResponseContext{conn: cl.conn, streamID: s.ID}
	cl.conn.SendHeaders(s.ID, headers, len(body) == 0)
	if len(body) > 0 {
		cl.conn.SendData(s.ID, body, true)
	}
	return s.ID
}

// RequestStreaming is Request without a body, returning a StreamWriter
// so the caller can push the request body incrementally.
func (cl *Client) RequestStreaming(headers []HeaderField) (uint32, *StreamWriter) {
	s := cl.conn.OpenStream()
	cl.responses[s.ID] = &ResponseContext{conn: cl.conn, streamID: s.ID}
	cl.conn.SendHeaders(s.ID, headers, false)
	return s.ID, &StreamWriter{conn: cl.conn, streamID: s.ID}
}

// Ping sends a PING frame; RTT surfaces via LogPing once the ACK
// arrives (spec.md Section 5: tracked, not acted on).
func (cl *Client) Ping(data [8]byte) { cl.conn.SendPing(data) }

func (cl *Client) OnHeaders(c *Connection, streamID uint32, fields []HeaderField, endStream bool) {
	resp, ok := cl.responses[streamID]
	if !ok {
		resp = &ResponseContext{conn: c, streamID: streamID}
		cl.responses[streamID] = resp
	}
	resp.Headers = fields
	resp.bodyClosed = endStream
	if cl.handle != nil {
		cl.handle(resp)
	}
}

func (cl *Client) OnData(c *Connection, streamID uint32, data []byte, endStream bool) {
	resp, ok := cl.responses[streamID]
	if !ok {
		return
	}
	if len(data) > 0 {
		resp.bodyChunks = append(resp.bodyChunks, append([]byte(nil), data...))
	}
	if endStream {
		resp.bodyClosed = true
	}
	if cl.handle != nil {
		cl.handle(resp)
	}
}

func (cl *Client) OnTrailers(c *Connection, streamID uint32, fields []HeaderField) {
	if resp, ok := cl.responses[streamID]; ok {
		resp.Trailers = fields
		resp.bodyClosed = true
		if cl.handle != nil {
			cl.handle(resp)
		}
	}
}

func (cl *Client) OnStreamClosed(c *Connection, streamID uint32, err error) {
	delete(cl.responses, streamID)
	if err != nil && cl.onError != nil {
		cl.onError(err)
	}
}

func (cl *Client) OnGoAway(c *Connection, lastStreamID uint32, code ErrorCode, debug []byte) {
	if cl.onError != nil && code != ErrCodeNoError {
		cl.onError(NewConnectionError(code, "peer sent GOAWAY: %s", string(debug)))
	}
}
