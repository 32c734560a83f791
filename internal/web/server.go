package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"github.com/vitos/crypto_trade_gate/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router    *http.ServeMux
	server    *http.Server
	session   *usecase.TradingSession
	decisions domain.DecisionRepository
	records   domain.RiskRecordRepository
	metrics   http.Handler
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

func NewServer(
	port int,
	session *usecase.TradingSession,
	decisions domain.DecisionRepository,
	records domain.RiskRecordRepository,
	metrics http.Handler,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		session:   session,
		decisions: decisions,
		records:   records,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Signals
	s.router.HandleFunc("POST /api/signals", s.handleAddSignal)
	s.router.HandleFunc("GET /ws/signals", s.handleSignalStream)

	// Decisions
	s.router.HandleFunc("GET /api/decisions", s.handleListDecisions)
	s.router.HandleFunc("GET /api/decisions/{id}", s.handleGetDecision)

	// Risk audit trail
	s.router.HandleFunc("GET /api/risk-records", s.handleListRiskRecords)
	s.router.HandleFunc("GET /api/risk-records/{decisionID}", s.handleDecisionRiskRecords)

	// Session control
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("POST /api/halt", s.handleHalt)
	s.router.HandleFunc("POST /api/resume", s.handleResume)

	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
