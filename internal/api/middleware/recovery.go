package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
)

// stackBufSize bounds the captured stack trace; deeper frames are truncated.
const stackBufSize = 4096

// Recovery returns Echo middleware that converts a handler panic into a 500
// response. The panic value and stack are logged with the request id set by
// RequestLog, so a crash can be matched to its request log line.
func Recovery(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				buf := make([]byte, stackBufSize)
				n := runtime.Stack(buf, false)

				fields := []any{
					"error", fmt.Sprint(r),
					"method", c.Request().Method,
					"path", c.Request().URL.Path,
					"stack", string(buf[:n]),
				}
				if reqID, ok := c.Get("request_id").(string); ok && reqID != "" {
					fields = append(fields, "request_id", reqID)
				}
				log.Error("panic recovered", fields...)

				err = c.JSON(http.StatusInternalServerError, map[string]string{
					"error": "internal server error",
				})
			}()
			return next(c)
		}
	}
}
