package middleware

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"
)

// Recoverer turns a handler panic into a logged error so the poller keeps
// running. It should be the outermost middleware.
func Recoverer(logger *slog.Logger) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if rvr := recover(); rvr != nil {
					GetLogger(c, logger).Error("panic recovered",
						slog.Any("panic", rvr),
						slog.String("stack", string(debug.Stack())),
					)

					if os.Getenv("APP_ENV") == "development" {
						debug.PrintStack()
					}

					err = fmt.Errorf("panic: %v", rvr)
				}
			}()

			return next(c)
		}
	}
}
