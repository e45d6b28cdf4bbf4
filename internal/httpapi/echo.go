package httpapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/paygate/paygate/internal/payment"
	"github.com/paygate/paygate/internal/pipeline"
)

// EchoAdmission exposes the admission pipeline as echo middleware, for
// deployments that embed the gate into an existing echo application.
// Semantics match the gin chain: one RequestContext per request, one
// finalize once the response status is known. Panics are recovered here,
// before finalization, so a crashed handler surfaces as an internal
// error and its idempotency key stays retryable.
func EchoAdmission(pipe *pipeline.Pipeline, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc := pipeline.NewRequestContext(c.RealIP())
			c.Set(contextKey, rc)
			c.Response().Header().Set(RequestIDHeader, rc.RequestID)

			req := pipeline.AdmissionRequest{
				Method:         c.Request().Method,
				Path:           c.Request().URL.Path,
				Monetized:      strings.HasPrefix(c.Request().URL.Path, MonetizedPrefix),
				IdempotencyKey: c.Request().Header.Get(IdempotencyKeyHeader),
				PaymentHeader:  c.Request().Header.Get(payment.PaymentHeader),
				BypassSignal:   c.Request().Header.Get(payment.BypassHeader) != "",
			}

			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic",
						zap.String("request_id", rc.RequestID),
						zap.String("path", req.Path),
						zap.Any("panic", r),
					)
					if !c.Response().Committed {
						_ = c.JSON(
							pipeline.CodeInternalError.HTTPStatus(),
							pipeline.NewErrorBody(pipeline.CodeInternalError, "internal error"),
						)
					}
				}

				status := c.Response().Status
				pipe.Finalize(c.Request().Context(), rc, status)

				log.Info("request completed",
					zap.String("request_id", rc.RequestID),
					zap.String("method", req.Method),
					zap.String("path", req.Path),
					zap.Int("status", status),
					zap.Duration("latency", time.Since(rc.StartedAt)),
					zap.String("payment", rc.Outcome()),
				)
			}()

			if rej := pipe.Admit(c.Request().Context(), rc, req); rej != nil {
				return c.JSON(rej.Code.HTTPStatus(), rej.Body())
			}
			if err := next(c); err != nil {
				c.Error(err)
			}
			return nil
		}
	}
}

// EchoRequestContext retrieves the per-request context inside echo
// handlers running behind EchoAdmission.
func EchoRequestContext(c echo.Context) *pipeline.RequestContext {
	rc, _ := c.Get(contextKey).(*pipeline.RequestContext)
	return rc
}
