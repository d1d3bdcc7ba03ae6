package instrument

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"rocket-filter/internal/metadata"
)

// statusCoder is implemented by application errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

const (
	TraceHeader   = "X-Trace-ID"
	RequestHeader = "X-Request-ID"
)

// Middleware assigns every request a trace ID, taken from X-Trace-ID or
// X-Request-ID when the caller sent one, and wraps it in a root HTTP span.
// The trace ID is echoed in the X-Trace-ID response header.
func Middleware(inst Instrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(TraceHeader)
		if traceID == "" {
			traceID = c.Get(RequestHeader)
		}
		if traceID == "" {
			traceID = newUUID()
		}

		ctx := WithTraceID(c.UserContext(), traceID)
		ctx = WithInstrumenter(ctx, inst)
		ctx, span := inst.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)
		c.Set(TraceHeader, traceID)

		err := c.Next()

		// Auth runs downstream; the user is known only now.
		if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
			span.SetMetadata("user_id", user.ID)
		}
		if entity := c.Params("entity"); entity != "" {
			span.SetEntity(entity)
		}

		status := c.Response().StatusCode()
		if err != nil {
			// The app error handler has not written the response yet.
			var fe *fiber.Error
			var sc statusCoder
			switch {
			case errors.As(err, &fe):
				status = fe.Code
			case errors.As(err, &sc):
				status = sc.StatusCode()
			case status < 400:
				status = fiber.StatusInternalServerError
			}
		}
		span.SetMetadata("status_code", status)
		if status >= 400 {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()
		return err
	}
}
