package h2

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the package-wide zerolog instance for events that are not
// scoped to a single connection.
var Logger zerolog.Logger

func init() {
	setupLogger()
}

// setupLogger configures Logger from the LOG_LEVEL environment variable,
// mirroring the teacher library's setup.
func setupLogger() {
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	var level zerolog.Level
	switch logLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	case "fatal":
		level = zerolog.FatalLevel
	case "panic":
		level = zerolog.PanicLevel
	default:
		level = zerolog.Disabled
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if logLevel == "debug" {
		output.FormatLevel = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		}
		output.FormatMessage = func(i interface{}) string {
			return fmt.Sprintf("*** %s ***", i)
		}
		output.FormatFieldName = func(i interface{}) string {
			return fmt.Sprintf("%s:", i)
		}
	}

	Logger = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("component", "h2").
		Logger()

	if level != zerolog.Disabled {
		Logger.Info().Str("level", level.String()).Msg("h2 logger initialized")
	}
}

// newConnLogger derives a per-connection logger carrying a random
// correlation id, so log lines from concurrent connections in an
// adapter can be told apart.
func newConnLogger(isServer bool) zerolog.Logger {
	role := "client"
	if isServer {
		role = "server"
	}
	return Logger.With().
		Str("conn_id", uuid.NewString()).
		Str("role", role).
		Logger()
}

// LogFrame logs frame processing per RFC 7540 Section 4.
func LogFrame(log *zerolog.Logger, direction, frameType string, streamID uint32, length int, flags uint8) {
	log.Debug().
		Str("event", "frame").
		Str("direction", direction).
		Str("type", frameType).
		Uint32("stream_id", streamID).
		Int("length", length).
		Uint8("flags", flags).
		Msg("frame")
}

// LogStream logs stream lifecycle transitions per RFC 7540 Section 5.1.
func LogStream(log *zerolog.Logger, streamID uint32, from, to StreamState) {
	log.Debug().
		Str("event", "stream").
		Uint32("stream_id", streamID).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("stream state transition")
}

// LogFlowControl logs window changes per RFC 7540 Section 6.9.
func LogFlowControl(log *zerolog.Logger, streamID uint32, window int32, action string) {
	log.Debug().
		Str("event", "flow_control").
		Uint32("stream_id", streamID).
		Int32("window", window).
		Str("action", action).
		Msg("flow control")
}

// LogHPACK logs header (de)compression outcomes.
func LogHPACK(log *zerolog.Logger, action string, originalSize, compressedSize int) {
	ratio := 0.0
	if originalSize > 0 {
		ratio = float64(compressedSize) / float64(originalSize)
	}
	log.Debug().
		Str("event", "hpack").
		Str("action", action).
		Int("original_size", originalSize).
		Int("compressed_size", compressedSize).
		Float64("compression_ratio", ratio).
		Msg("hpack")
}

// LogSettings logs SETTINGS frame processing per RFC 7540 Section 6.5.
func LogSettings(log *zerolog.Logger, settings []Setting, ack bool) {
	log.Debug().
		Str("event", "settings").
		Interface("settings", settings).
		Bool("ack", ack).
		Msg("settings")
}

// LogGoAway logs GOAWAY emission/receipt per RFC 7540 Section 6.8.
func LogGoAway(log *zerolog.Logger, direction string, lastStreamID uint32, code ErrorCode, debug string) {
	log.Warn().
		Str("event", "goaway").
		Str("direction", direction).
		Uint32("last_stream_id", lastStreamID).
		Str("code", code.String()).
		Str("debug", debug).
		Msg("goaway")
}

// LogPing logs PING round-trip measurements per RFC 7540 Section 6.7.
func LogPing(log *zerolog.Logger, rtt time.Duration) {
	log.Debug().
		Str("event", "ping").
		Dur("rtt", rtt).
		Msg("ping")
}

// LogPriority logs PRIORITY frame processing per RFC 7540 Section 5.3.
func LogPriority(log *zerolog.Logger, streamID, dependsOn uint32, weight uint8, exclusive bool) {
	log.Debug().
		Str("event", "priority").
		Uint32("stream_id", streamID).
		Uint32("depends_on", dependsOn).
		Uint8("weight", weight).
		Bool("exclusive", exclusive).
		Msg("priority")
}

// LogPriorityIdleTarget logs a PRIORITY frame naming a stream this
// connection has neither opened nor recently closed, RFC 7540 Section
// 5.3.1: still legal, and gets a fresh tree node carrying the frame's
// weight.
func LogPriorityIdleTarget(log *zerolog.Logger, streamID uint32) {
	log.Debug().
		Str("event", "priority_idle_target").
		Uint32("stream_id", streamID).
		Msg("priority references a stream never opened")
}

// LogError logs a classified error with context.
func LogError(log *zerolog.Logger, err error, context string) {
	log.Error().Err(err).Str("context", context).Msg("error")
}
