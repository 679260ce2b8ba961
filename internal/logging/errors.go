package logging

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at Error. For oops errors the code and context map are
// emitted as separate attributes.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{"error", oopsErr.Error()}
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if fields := oopsErr.Context(); len(fields) > 0 {
			attrs = append(attrs, "context", fields)
		}
		logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	logger.ErrorContext(ctx, msg, "error", err)
}
