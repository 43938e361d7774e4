package h2

import "fmt"

// FrameType identifies one of the ten RFC 7540 Section 6 frame kinds,
// or FrameTypeUnknown for anything else (Section 5.5: unknown frame
// types and flags must be ignored, not rejected).
type FrameType uint8

const (
	FrameTypeData         FrameType = 0x0
	FrameTypeHeaders      FrameType = 0x1
	FrameTypePriority     FrameType = 0x2
	FrameTypeRSTStream    FrameType = 0x3
	FrameTypeSettings     FrameType = 0x4
	FrameTypePushPromise  FrameType = 0x5
	FrameTypePing         FrameType = 0x6
	FrameTypeGoAway       FrameType = 0x7
	FrameTypeWindowUpdate FrameType = 0x8
	FrameTypeContinuation FrameType = 0x9
	FrameTypeUnknown      FrameType = 0xff
)

var frameTypeNames = map[FrameType]string{
	FrameTypeData:         "DATA",
	FrameTypeHeaders:      "HEADERS",
	FrameTypePriority:     "PRIORITY",
	FrameTypeRSTStream:    "RST_STREAM",
	FrameTypeSettings:     "SETTINGS",
	FrameTypePushPromise:  "PUSH_PROMISE",
	FrameTypePing:         "PING",
	FrameTypeGoAway:       "GOAWAY",
	FrameTypeWindowUpdate: "WINDOW_UPDATE",
	FrameTypeContinuation: "CONTINUATION",
	FrameTypeUnknown:      "UNKNOWN",
}

func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FRAME_TYPE(%#x)", uint8(t))
}

// Frame flags. Not every flag applies to every frame type; see RFC 7540
// Section 4 per-frame descriptions.
const (
	FlagEndStream  uint8 = 0x1 // DATA, HEADERS
	FlagAck        uint8 = 0x1 // SETTINGS, PING
	FlagEndHeaders uint8 = 0x4 // HEADERS, PUSH_PROMISE, CONTINUATION
	FlagPadded     uint8 = 0x8 // DATA, HEADERS, PUSH_PROMISE
	FlagPriority   uint8 = 0x20
)

const frameHeaderLen = 9

// FrameHeader is the fixed 9-octet preamble of every frame, RFC 7540
// Section 4.1.
type FrameHeader struct {
	Length   uint32 // 24-bit
	Type     FrameType
	Flags    uint8
	StreamID uint32 // 31-bit, reserved bit already cleared
}

// PriorityParam is the 5-octet dependency prefix carried by HEADERS
// (with FlagPriority) and by standalone PRIORITY frames, RFC 7540
// Section 6.3.
type PriorityParam struct {
	StreamDep uint32 // stream this one depends on; 0 means the root
	Exclusive bool
	Weight    uint8 // encodes 1..256 as 0..255
}

func (p PriorityParam) IsZero() bool { return p == PriorityParam{} }

// Frame is the tagged-variant type of spec.md Section 3: every parsed
// frame decodes into exactly one of the typed payloads below, selected
// by Header.Type.
type Frame struct {
	Header FrameHeader

	Data         *DataPayload
	Headers      *HeadersPayload
	Priority     *PriorityParam
	RSTStream    *RSTStreamPayload
	Settings     *SettingsPayload
	PushPromise  *PushPromisePayload
	Ping         *PingPayload
	GoAway       *GoAwayPayload
	WindowUpdate *WindowUpdatePayload
	Continuation *ContinuationPayload
	Unknown      []byte
}

// StreamID is a convenience accessor equal to Header.StreamID.
func (f *Frame) StreamID() uint32 { return f.Header.StreamID }

// EndStream reports whether the END_STREAM flag is set on frame types
// that carry it (DATA, HEADERS).
func (f *Frame) EndStream() bool { return f.Header.Flags&FlagEndStream != 0 }

// DataPayload is the DATA frame body, RFC 7540 Section 6.1.
type DataPayload struct {
	Data      []byte
	PadLength uint8
}

// HeadersPayload is the HEADERS frame body, RFC 7540 Section 6.2.
type HeadersPayload struct {
	HeaderBlockFragment []byte
	Priority            *PriorityParam
	EndHeaders          bool
	PadLength           uint8
}

// RSTStreamPayload is the RST_STREAM body, RFC 7540 Section 6.4.
type RSTStreamPayload struct {
	ErrorCode ErrorCode
}

// SettingsPayload is the SETTINGS body, RFC 7540 Section 6.5.
type SettingsPayload struct {
	Ack      bool
	Settings []Setting
}

// PushPromisePayload is the PUSH_PROMISE body, RFC 7540 Section 6.6.
type PushPromisePayload struct {
	PromisedStreamID    uint32
	HeaderBlockFragment []byte
	EndHeaders          bool
	PadLength           uint8
}

// PingPayload is the PING body, RFC 7540 Section 6.7.
type PingPayload struct {
	Ack  bool
	Data [8]byte
}

// GoAwayPayload is the GOAWAY body, RFC 7540 Section 6.8.
type GoAwayPayload struct {
	LastStreamID uint32
	ErrorCode    ErrorCode
	DebugData    []byte
}

// WindowUpdatePayload is the WINDOW_UPDATE body, RFC 7540 Section 6.9.
type WindowUpdatePayload struct {
	Increment uint32
}

// ContinuationPayload is the CONTINUATION body, RFC 7540 Section 6.10.
type ContinuationPayload struct {
	HeaderBlockFragment []byte
	EndHeaders          bool
}

// ConnectionPreface is the fixed 24-octet client greeting, RFC 7540
// Section 3.5.
var ConnectionPreface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")
