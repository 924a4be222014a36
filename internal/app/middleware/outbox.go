package middleware

import (
	"context"
	"log/slog"

	"staysane/internal/app/commands"
	"staysane/internal/app/outbox"
)

// OutboxFlush nudges the relay once a command has committed, including
// commands whose error reports committed writes. A failed flush does not fail
// the command: the events are already stored.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			if err != nil && !committed(err) {
				return res, err
			}
			if flushErr := box.Flush(ctx); flushErr != nil && logger != nil {
				logger.Warn("outbox flush failed", "command", cmd.Key(), "error", flushErr)
			}
			return res, err
		})
	}
}
