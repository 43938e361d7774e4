package h2

import "encoding/binary"

// parseFrameHeader decodes the fixed 9-octet frame header, RFC 7540
// Section 4.1. b must be exactly frameHeaderLen bytes.
func parseFrameHeader(b []byte) FrameHeader {
	return FrameHeader{
		Length:   uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]),
		Type:     frameTypeFromByte(b[3]),
		Flags:    b[4],
		StreamID: binary.BigEndian.Uint32(b[5:9]) & 0x7fffffff,
	}
}

func frameTypeFromByte(b byte) FrameType {
	if _, ok := frameTypeNames[FrameType(b)]; ok {
		return FrameType(b)
	}
	return FrameTypeUnknown
}

func putFrameHeader(b []byte, h FrameHeader, wireType uint8) {
	b[0] = byte(h.Length >> 16)
	b[1] = byte(h.Length >> 8)
	b[2] = byte(h.Length)
	b[3] = wireType
	b[4] = h.Flags
	binary.BigEndian.PutUint32(b[5:9], h.StreamID&0x7fffffff)
}

// isStreamScopedFrameError reports whether an oversized frame of this
// type on an already-open stream degrades to a stream error rather
// than a connection error, per spec.md Section 4.5.
func isStreamScopedFrameError(t FrameType, streamExists bool) bool {
	if !streamExists {
		return false
	}
	switch t {
	case FrameTypeData, FrameTypeHeaders, FrameTypeContinuation:
		return true
	default:
		return false
	}
}

// parseFramePayload decodes a frame's payload given its already-parsed
// header, RFC 7540 Section 4 per-type wire formats. h.Type is assumed
// to have already survived the frameHeaderLen and MAX_FRAME_SIZE
// checks performed by the caller (the Reader in io.go).
func parseFramePayload(h FrameHeader, payload []byte) (*Frame, error) {
	f := &Frame{Header: h}
	switch h.Type {
	case FrameTypeData:
		d, err := parseDataPayload(h, payload)
		if err != nil {
			return nil, err
		}
		f.Data = d
	case FrameTypeHeaders:
		hp, err := parseHeadersPayload(h, payload)
		if err != nil {
			return nil, err
		}
		f.Headers = hp
	case FrameTypePriority:
		p, err := parsePriorityPayload(h, payload)
		if err != nil {
			return nil, err
		}
		f.Priority = p
	case FrameTypeRSTStream:
		if len(payload) != 4 {
			return nil, NewConnectionError(ErrCodeFrameSizeError, "RST_STREAM payload length %d", len(payload))
		}
		f.RSTStream = &RSTStreamPayload{ErrorCode: ErrorCode(binary.BigEndian.Uint32(payload))}
	case FrameTypeSettings:
		s, err := parseSettingsPayload(h, payload)
		if err != nil {
			return nil, err
		}
		f.Settings = s
	case FrameTypePushPromise:
		pp, err := parsePushPromisePayload(h, payload)
		if err != nil {
			return nil, err
		}
		f.PushPromise = pp
	case FrameTypePing:
		if len(payload) != 8 {
			return nil, NewConnectionError(ErrCodeFrameSizeError, "PING payload length %d", len(payload))
		}
		p := &PingPayload{Ack: h.Flags&FlagAck != 0}
		copy(p.Data[:], payload)
		f.Ping = p
	case FrameTypeGoAway:
		if len(payload) < 8 {
			return nil, NewConnectionError(ErrCodeFrameSizeError, "GOAWAY payload length %d", len(payload))
		}
		f.GoAway = &GoAwayPayload{
			LastStreamID: binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff,
			ErrorCode:    ErrorCode(binary.BigEndian.Uint32(payload[4:8])),
			DebugData:    append([]byte(nil), payload[8:]...),
		}
	case FrameTypeWindowUpdate:
		if len(payload) != 4 {
			return nil, NewConnectionError(ErrCodeFrameSizeError, "WINDOW_UPDATE payload length %d", len(payload))
		}
		inc := binary.BigEndian.Uint32(payload) & 0x7fffffff
		if inc == 0 {
			return nil, NewStreamError(h.StreamID, ErrCodeProtocolError, "zero WINDOW_UPDATE increment")
		}
		f.WindowUpdate = &WindowUpdatePayload{Increment: inc}
	case FrameTypeContinuation:
		f.Continuation = &ContinuationPayload{
			HeaderBlockFragment: append([]byte(nil), payload...),
			EndHeaders:          h.Flags&FlagEndHeaders != 0,
		}
	default:
		f.Unknown = append([]byte(nil), payload...)
	}
	return f, nil
}

func parseDataPayload(h FrameHeader, payload []byte) (*DataPayload, error) {
	data, padLen, err := splitPadding(h, payload)
	if err != nil {
		return nil, err
	}
	return &DataPayload{Data: data, PadLength: padLen}, nil
}

func parseHeadersPayload(h FrameHeader, payload []byte) (*HeadersPayload, error) {
	rest, padLen, err := splitPadding(h, payload)
	if err != nil {
		return nil, err
	}
	hp := &HeadersPayload{EndHeaders: h.Flags&FlagEndHeaders != 0, PadLength: padLen}
	if h.Flags&FlagPriority != 0 {
		if len(rest) < 5 {
			return nil, NewConnectionError(ErrCodeFrameSizeError, "HEADERS priority prefix truncated")
		}
		p := decodePriorityParam(rest[:5])
		hp.Priority = &p
		rest = rest[5:]
	}
	hp.HeaderBlockFragment = append([]byte(nil), rest...)
	return hp, nil
}

func parsePriorityPayload(h FrameHeader, payload []byte) (*PriorityParam, error) {
	if len(payload) != 5 {
		return nil, NewStreamError(h.StreamID, ErrCodeFrameSizeError, "PRIORITY payload length %d", len(payload))
	}
	p := decodePriorityParam(payload)
	return &p, nil
}

func parseSettingsPayload(h FrameHeader, payload []byte) (*SettingsPayload, error) {
	if h.StreamID != 0 {
		return nil, NewConnectionError(ErrCodeProtocolError, "SETTINGS with non-zero stream id %d", h.StreamID)
	}
	ack := h.Flags&FlagAck != 0
	if ack {
		if len(payload) != 0 {
			return nil, NewConnectionError(ErrCodeFrameSizeError, "SETTINGS ACK with non-zero length")
		}
		return &SettingsPayload{Ack: true}, nil
	}
	if len(payload)%6 != 0 {
		return nil, NewConnectionError(ErrCodeFrameSizeError, "SETTINGS payload length %d not a multiple of 6", len(payload))
	}
	settings := make([]Setting, 0, len(payload)/6)
	for i := 0; i < len(payload); i += 6 {
		settings = append(settings, Setting{
			ID:    SettingID(binary.BigEndian.Uint16(payload[i : i+2])),
			Value: binary.BigEndian.Uint32(payload[i+2 : i+6]),
		})
	}
	return &SettingsPayload{Settings: settings}, nil
}

func parsePushPromisePayload(h FrameHeader, payload []byte) (*PushPromisePayload, error) {
	rest, padLen, err := splitPadding(h, payload)
	if err != nil {
		return nil, err
	}
	if len(rest) < 4 {
		return nil, NewConnectionError(ErrCodeFrameSizeError, "PUSH_PROMISE prefix truncated")
	}
	promised := binary.BigEndian.Uint32(rest[0:4]) & 0x7fffffff
	return &PushPromisePayload{
		PromisedStreamID:    promised,
		EndHeaders:          h.Flags&FlagEndHeaders != 0,
		PadLength:           padLen,
		HeaderBlockFragment: append([]byte(nil), rest[4:]...),
	}, nil
}

// splitPadding strips the PADDED-flag pad-length octet and trailing pad
// bytes per RFC 7540 Section 6.1/6.2, returning the meaningful prefix.
func splitPadding(h FrameHeader, payload []byte) (rest []byte, padLen uint8, err error) {
	if h.Flags&FlagPadded == 0 {
		return payload, 0, nil
	}
	if len(payload) < 1 {
		return nil, 0, NewConnectionError(ErrCodeFrameSizeError, "PADDED frame with empty payload")
	}
	padLen = payload[0]
	body := payload[1:]
	if int(padLen) > len(body) {
		return nil, 0, NewConnectionError(ErrCodeProtocolError, "pad length %d exceeds payload", padLen)
	}
	return body[:len(body)-int(padLen)], padLen, nil
}

func decodePriorityParam(b []byte) PriorityParam {
	raw := binary.BigEndian.Uint32(b[0:4])
	return PriorityParam{
		StreamDep: raw & 0x7fffffff,
		Exclusive: raw&0x80000000 != 0,
		Weight:    b[4],
	}
}

func encodePriorityParam(p PriorityParam) []byte {
	b := make([]byte, 5)
	dep := p.StreamDep & 0x7fffffff
	if p.Exclusive {
		dep |= 0x80000000
	}
	binary.BigEndian.PutUint32(b[0:4], dep)
	b[4] = p.Weight
	return b
}

// serializeFrame renders a complete frame (header + payload) into a
// freshly allocated slice, RFC 7540 Section 4.1. h.Type is written as
// the wire type byte; h.Length is overwritten with len(payload).
func serializeFrame(h FrameHeader, payload []byte) []byte {
	h.Length = uint32(len(payload))
	buf := make([]byte, frameHeaderLen+len(payload))
	putFrameHeader(buf, h, uint8(h.Type))
	copy(buf[frameHeaderLen:], payload)
	return buf
}

func serializeData(streamID uint32, data []byte, endStream bool) []byte {
	flags := uint8(0)
	if endStream {
		flags |= FlagEndStream
	}
	return serializeFrame(FrameHeader{Type: FrameTypeData, Flags: flags, StreamID: streamID}, data)
}

func serializeHeaders(streamID uint32, block []byte, endStream, endHeaders bool) []byte {
	flags := uint8(0)
	if endStream {
		flags |= FlagEndStream
	}
	if endHeaders {
		flags |= FlagEndHeaders
	}
	return serializeFrame(FrameHeader{Type: FrameTypeHeaders, Flags: flags, StreamID: streamID}, block)
}

func serializeContinuation(streamID uint32, block []byte, endHeaders bool) []byte {
	flags := uint8(0)
	if endHeaders {
		flags |= FlagEndHeaders
	}
	return serializeFrame(FrameHeader{Type: FrameTypeContinuation, Flags: flags, StreamID: streamID}, block)
}

func serializePushPromise(streamID, promisedID uint32, block []byte, endHeaders bool) []byte {
	flags := uint8(0)
	if endHeaders {
		flags |= FlagEndHeaders
	}
	payload := make([]byte, 4+len(block))
	binary.BigEndian.PutUint32(payload[0:4], promisedID&0x7fffffff)
	copy(payload[4:], block)
	return serializeFrame(FrameHeader{Type: FrameTypePushPromise, Flags: flags, StreamID: streamID}, payload)
}

func serializeSettings(settings []Setting) []byte {
	payload := make([]byte, 0, len(settings)*6)
	for _, s := range settings {
		var b [6]byte
		binary.BigEndian.PutUint16(b[0:2], uint16(s.ID))
		binary.BigEndian.PutUint32(b[2:6], s.Value)
		payload = append(payload, b[:]...)
	}
	return serializeFrame(FrameHeader{Type: FrameTypeSettings}, payload)
}

func serializeSettingsAck() []byte {
	return serializeFrame(FrameHeader{Type: FrameTypeSettings, Flags: FlagAck}, nil)
}

func serializePing(data [8]byte, ack bool) []byte {
	flags := uint8(0)
	if ack {
		flags |= FlagAck
	}
	return serializeFrame(FrameHeader{Type: FrameTypePing, Flags: flags}, data[:])
}

func serializeGoAway(lastStreamID uint32, code ErrorCode, debug []byte) []byte {
	payload := make([]byte, 8+len(debug))
	binary.BigEndian.PutUint32(payload[0:4], lastStreamID&0x7fffffff)
	binary.BigEndian.PutUint32(payload[4:8], uint32(code))
	copy(payload[8:], debug)
	return serializeFrame(FrameHeader{Type: FrameTypeGoAway}, payload)
}

func serializeWindowUpdate(streamID, increment uint32) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, increment&0x7fffffff)
	return serializeFrame(FrameHeader{Type: FrameTypeWindowUpdate, StreamID: streamID}, payload)
}

func serializeRSTStream(streamID uint32, code ErrorCode) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(code))
	return serializeFrame(FrameHeader{Type: FrameTypeRSTStream, StreamID: streamID}, payload)
}

func serializePriority(streamID uint32, p PriorityParam) []byte {
	return serializeFrame(FrameHeader{Type: FrameTypePriority, StreamID: streamID}, encodePriorityParam(p))
}
