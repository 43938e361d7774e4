package h2

// maxWindowIncrement is the largest legal WINDOW_UPDATE increment, RFC
// 7540 Section 6.9: 2^31-1.
const maxWindowIncrement = 1<<31 - 1

// windowUpdateThreshold is the fraction-of-window heuristic this
// engine uses to decide when received bytes are worth acknowledging
// with a WINDOW_UPDATE rather than batching further, spec.md Section
// 4.8: release once consumed bytes reach at least half the window.
func windowUpdateThreshold(window int64) int64 {
	return window / 2
}

// applyWindowUpdate adds increment to window, returning a
// FlowControlError if the result would overflow the signed 31-bit
// space RFC 7540 Section 6.9.1 requires.
func applyWindowUpdate(window int64, increment uint32) (int64, error) {
	if increment == 0 {
		return window, nil
	}
	next := window + int64(increment)
	if next > maxWindowIncrement {
		return window, NewConnectionError(ErrCodeFlowControlError,
			"window update overflow: %d + %d exceeds %d", window, increment, maxWindowIncrement)
	}
	return next, nil
}

// connFlowController tracks the connection-wide send/recv windows,
// RFC 7540 Section 6.9.1: every stream's flow control is bounded by
// these in addition to its own.
type connFlowController struct {
	sendWindow int64
	recvWindow int64

	recvConsumed int64
}

// defaultConnectionWindowSize is the fixed 65535-byte connection-level
// flow control window RFC 7540 Section 6.9.2 mandates: unlike stream
// windows, it is never affected by SETTINGS_INITIAL_WINDOW_SIZE, only
// by WINDOW_UPDATE frames on stream 0.
const defaultConnectionWindowSize = 65535

func newConnFlowController() *connFlowController {
	return &connFlowController{
		sendWindow: defaultConnectionWindowSize,
		recvWindow: defaultConnectionWindowSize,
	}
}

// adjustInitialWindowSize applies RFC 7540 Section 6.9.2's rule: a
// SETTINGS_INITIAL_WINDOW_SIZE change from the peer retroactively
// shifts every open stream's send window by the delta, but never the
// connection window itself.
func adjustInitialWindowSize(streams map[uint32]*Stream, oldValue, newValue uint32) error {
	delta := int64(newValue) - int64(oldValue)
	for _, s := range streams {
		if s.State == StreamClosed {
			continue
		}
		next := s.SendWindow + delta
		if next > maxWindowIncrement || next < -maxWindowIncrement {
			return NewConnectionError(ErrCodeFlowControlError,
				"initial window size change overflows stream %d window", s.ID)
		}
		s.SendWindow = next
	}
	return nil
}

// consumeSendWindow debits n bytes from both the connection and stream
// send windows ahead of writing a DATA frame, returning how many bytes
// are actually permitted right now (which may be less than n, or 0).
func consumeSendWindow(conn *connFlowController, s *Stream, n int) int {
	avail := conn.sendWindow
	if s.SendWindow < avail {
		avail = s.SendWindow
	}
	if avail <= 0 {
		return 0
	}
	if int64(n) > avail {
		n = int(avail)
	}
	conn.sendWindow -= int64(n)
	s.SendWindow -= int64(n)
	return n
}

// recordReceived debits recvWindow by n bytes of DATA payload actually
// delivered, RFC 7540 Section 6.9. It does not itself decide when to
// emit WINDOW_UPDATE; the caller checks recvConsumed against
// windowUpdateThreshold.
func (c *connFlowController) recordReceived(n int) {
	c.recvWindow -= int64(n)
	c.recvConsumed += int64(n)
}

// release folds acknowledged bytes back into recvWindow after emitting
// a WINDOW_UPDATE for them.
func (c *connFlowController) release(n int64) {
	c.recvWindow += n
	c.recvConsumed -= n
}
