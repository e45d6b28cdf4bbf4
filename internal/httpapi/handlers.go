package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paygate/paygate/internal/payment"
	"github.com/paygate/paygate/internal/pipeline"
)

// Build metadata, set via -ldflags at release time.
var (
	Version = "dev"
	Commit  = "unknown"
)

// readinessTimeout bounds the facilitator probe so a hung dependency
// fails closed instead of hanging the check.
const readinessTimeout = 2 * time.Second

// Server holds the handlers for the service routes.
type Server struct {
	pipe *pipeline.Pipeline
	log  *zap.Logger
}

// NewServer creates the handler set.
func NewServer(pipe *pipeline.Pipeline, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{pipe: pipe, log: log}
}

// Router builds the gin engine with the full middleware chain and routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(Admission(s.pipe, s.log))

	r.GET("/healthz", s.Health)
	r.GET("/readyz", s.Ready)
	r.GET("/version", s.Version)

	r.POST("/v1/resource", s.Resource)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(pipeline.CodeNotFound.HTTPStatus(), pipeline.NewErrorBody(pipeline.CodeNotFound, "not found"))
	})
	return r
}

// Resource is the monetized operation. By the time it runs, the request
// has passed every admission stage and carries a paid context.
func (s *Server) Resource(c *gin.Context) {
	rc := requestContext(c)

	if rc.Settlement != nil {
		if encoded, err := payment.EncodeSettlementHeader(rc.Settlement); err == nil {
			c.Header(payment.PaymentResponseHeader, encoded)
		}
	}

	terms := s.pipe.Gate().Requirements()
	c.JSON(http.StatusOK, pipeline.SuccessBody{
		OK: true,
		Data: gin.H{
			"id":          uuid.NewString(),
			"message":     "resource generated",
			"generatedAt": time.Now().UTC().Format(time.RFC3339),
		},
		Receipt: &pipeline.Receipt{
			Amount:         rc.Amount,
			Asset:          terms.Asset,
			Network:        string(terms.Network),
			Receiver:       rc.Receiver,
			Payer:          rc.PayerWallet,
			IdempotencyKey: rc.IdempotencyKey,
			SettlementRef:  rc.SettlementRef,
			RequestID:      rc.RequestID,
		},
	})
}

// Health is the liveness probe. It reports nothing about dependencies.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, pipeline.SuccessBody{OK: true, Data: gin.H{"status": "ok"}})
}

// Ready probes the facilitator with a bounded timeout and fails closed.
func (s *Server) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := s.pipe.Gate().Ready(ctx); err != nil {
		s.log.Warn("readiness probe failed", zap.Error(err))
		c.JSON(pipeline.CodeNotReady.HTTPStatus(),
			pipeline.NewErrorBody(pipeline.CodeNotReady, "payment gate unavailable"))
		return
	}
	c.JSON(http.StatusOK, pipeline.SuccessBody{OK: true, Data: gin.H{"status": "ready"}})
}

// Version reports build metadata.
func (s *Server) Version(c *gin.Context) {
	c.JSON(http.StatusOK, pipeline.SuccessBody{
		OK:   true,
		Data: gin.H{"version": Version, "commit": Commit},
	})
}
