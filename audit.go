package authsession

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/authsession/internal/audit"
)

type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink
	NoOpSink   = audit.NoOpSink
)

func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON audit event per line to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *audit.SlogSink {
	return audit.NewSlogSink(logger)
}
