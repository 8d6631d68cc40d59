// Package middleware provides bot update middleware and the ops HTTP guard.
package middleware

import (
	"log/slog"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"
)

// Context keys stored on each update.
const (
	RequestIDKey = "request_id"
	LoggerKey    = "logger"
)

// RequestID tags each update with a fresh correlation id and a logger that
// carries it.
func RequestID(logger *slog.Logger) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			requestID := uuid.New().String()

			attrs := []any{
				slog.String("request_id", requestID),
				slog.Int("update_id", c.Update().ID),
			}
			if sender := c.Sender(); sender != nil {
				attrs = append(attrs, slog.Int64("user_id", sender.ID))
			}

			c.Set(RequestIDKey, requestID)
			c.Set(LoggerKey, logger.With(attrs...))

			return next(c)
		}
	}
}

// GetRequestID retrieves the correlation id of the update.
func GetRequestID(c tele.Context) string {
	if id, ok := c.Get(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetLogger returns the update-scoped logger, or fallback when none is set.
func GetLogger(c tele.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := c.Get(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return fallback
}
