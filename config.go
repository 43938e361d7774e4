package h2

// Config holds engine-wide tuning knobs, per spec.md Section 6.
// Zero-value fields are replaced with their documented defaults by
// DefaultConfig / (*Config).setDefaults.
type Config struct {
	ReadBufferSize         int
	RequestBodyBufferSize  int
	ResponseBufferSize     int
	ResponseBodyBufferSize int
	EnableServerPush       bool
	MaxConcurrentStreams   uint32
	InitialWindowSize      uint32
}

// DefaultConfig returns the configuration listed in spec.md Section 6.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:         16384,
		RequestBodyBufferSize:  4096,
		ResponseBufferSize:     1024,
		ResponseBodyBufferSize: 4096,
		EnableServerPush:       true,
		MaxConcurrentStreams:   1<<31 - 1,
		InitialWindowSize:      65535,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.RequestBodyBufferSize == 0 {
		c.RequestBodyBufferSize = d.RequestBodyBufferSize
	}
	if c.ResponseBufferSize == 0 {
		c.ResponseBufferSize = d.ResponseBufferSize
	}
	if c.ResponseBodyBufferSize == 0 {
		c.ResponseBodyBufferSize = d.ResponseBodyBufferSize
	}
	if c.MaxConcurrentStreams == 0 {
		c.MaxConcurrentStreams = d.MaxConcurrentStreams
	}
	if c.InitialWindowSize == 0 {
		c.InitialWindowSize = d.InitialWindowSize
	}
}

// Settings identifiers as defined in RFC 7540 Section 6.5.2.
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

// Setting is one SETTINGS parameter/value pair.
type Setting struct {
	ID    SettingID
	Value uint32
}

// PeerSettings mirrors one side's view of the six SETTINGS parameters,
// with an unlimited value represented by settingUnlimited.
type PeerSettings struct {
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
}

const settingUnlimited = 1<<32 - 1

// DefaultPeerSettings is the RFC 7540 Section 11.3 default table, used
// as the assumed peer state until its own SETTINGS frame arrives.
func DefaultPeerSettings() PeerSettings {
	return PeerSettings{
		HeaderTableSize:      4096,
		EnablePush:           true,
		MaxConcurrentStreams: settingUnlimited,
		InitialWindowSize:    65535,
		MaxFrameSize:         16384,
		MaxHeaderListSize:    settingUnlimited,
	}
}

func (s *PeerSettings) apply(set Setting) error {
	switch set.ID {
	case SettingHeaderTableSize:
		s.HeaderTableSize = set.Value
	case SettingEnablePush:
		if set.Value != 0 && set.Value != 1 {
			return NewConnectionError(ErrCodeProtocolError, "invalid ENABLE_PUSH value %d", set.Value)
		}
		s.EnablePush = set.Value == 1
	case SettingMaxConcurrentStreams:
		s.MaxConcurrentStreams = set.Value
	case SettingInitialWindowSize:
		if set.Value > maxWindowSize {
			return NewConnectionError(ErrCodeFlowControlError, "invalid INITIAL_WINDOW_SIZE %d", set.Value)
		}
		s.InitialWindowSize = set.Value
	case SettingMaxFrameSize:
		if set.Value < minMaxFrameSize || set.Value > maxMaxFrameSize {
			return NewConnectionError(ErrCodeProtocolError, "invalid MAX_FRAME_SIZE %d", set.Value)
		}
		s.MaxFrameSize = set.Value
	case SettingMaxHeaderListSize:
		s.MaxHeaderListSize = set.Value
	default:
		// Unknown settings are ignored per RFC 7540 Section 6.5.2.
	}
	return nil
}

const (
	minMaxFrameSize = 16384
	maxMaxFrameSize = 16777215
	maxWindowSize   = 1<<31 - 1
)
