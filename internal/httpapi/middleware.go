package httpapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/paygate/paygate/internal/payment"
	"github.com/paygate/paygate/internal/pipeline"
)

// IdempotencyKeyHeader scopes at-most-once execution on monetized routes.
const IdempotencyKeyHeader = "Idempotency-Key"

// RequestIDHeader echoes the assigned request id to the caller.
const RequestIDHeader = "X-Request-Id"

// MonetizedPrefix is the path prefix under which payment is required.
const MonetizedPrefix = "/v1/"

const contextKey = "paygate.requestContext"

// requestContext retrieves the per-request context installed by the
// admission middleware.
func requestContext(c *gin.Context) *pipeline.RequestContext {
	rc, _ := c.MustGet(contextKey).(*pipeline.RequestContext)
	return rc
}

// Admission wraps every request in a RequestContext, runs the admission
// pipeline, and finalizes once the response status is known. Panics are
// recovered here, before finalization, so a crashed handler surfaces as
// an internal error and never commits its idempotency key.
func Admission(pipe *pipeline.Pipeline, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := pipeline.NewRequestContext(c.ClientIP())
		c.Set(contextKey, rc)
		c.Header(RequestIDHeader, rc.RequestID)

		req := pipeline.AdmissionRequest{
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			Monetized:      strings.HasPrefix(c.Request.URL.Path, MonetizedPrefix),
			IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
			PaymentHeader:  c.GetHeader(payment.PaymentHeader),
			BypassSignal:   c.GetHeader(payment.BypassHeader) != "",
		}

		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panic",
					zap.String("request_id", rc.RequestID),
					zap.String("path", req.Path),
					zap.Any("panic", r),
				)
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(
						pipeline.CodeInternalError.HTTPStatus(),
						pipeline.NewErrorBody(pipeline.CodeInternalError, "internal error"),
					)
				}
			}

			status := c.Writer.Status()
			pipe.Finalize(c.Request.Context(), rc, status)

			log.Info("request completed",
				zap.String("request_id", rc.RequestID),
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(rc.StartedAt)),
				zap.String("payment", rc.Outcome()),
			)
		}()

		if rej := pipe.Admit(c.Request.Context(), rc, req); rej != nil {
			c.AbortWithStatusJSON(rej.Code.HTTPStatus(), rej.Body())
			return
		}
		c.Next()
	}
}
