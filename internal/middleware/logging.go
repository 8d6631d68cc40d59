package middleware

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Logger logs every handled update with its kind, duration and error.
// It must run after RequestID.
func Logger(logger *slog.Logger) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()

			err := next(c)

			attrs := []slog.Attr{
				slog.String("kind", updateKind(c)),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}

			level := slog.LevelInfo
			if err != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.String("error", err.Error()))
			}

			GetLogger(c, logger).LogAttrs(context.Background(), level, "update handled", attrs...)
			return err
		}
	}
}

// updateKind names the update without logging its content.
func updateKind(c tele.Context) string {
	switch {
	case c.Callback() != nil:
		return "callback"
	case c.Message() == nil:
		return "other"
	case len(c.Message().Text) > 0 && c.Message().Text[0] == '/':
		return "command"
	default:
		return "message"
	}
}
