package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/crypto_trade_gate/internal/domain"
	"github.com/vitos/crypto_trade_gate/internal/infrastructure/feed"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	maxSignalBody    = 64 << 10
)

type signalAck struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func listLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (s *Server) handleAddSignal(w http.ResponseWriter, r *http.Request) {
	var signal domain.Signal
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignalBody)).Decode(&signal); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid signal payload")
		return
	}
	if signal.Timestamp.IsZero() {
		signal.Timestamp = time.Now()
	}
	if err := signal.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted := s.session.AddSignal(signal)
	status := http.StatusAccepted
	if !accepted {
		status = http.StatusOK
	}
	s.writeJSON(w, status, signalAck{Accepted: accepted})
}

// handleSignalStream accepts feed envelopes over a websocket and acks each
// one. Only signal messages are taken; prices come from the market feed.
func (s *Server) handleSignalStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	s.logger.Info("Signal stream connected", zap.String("remote", r.RemoteAddr))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("Signal stream closed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}

		var ack signalAck
		signal, _, err := feed.Decode(message, time.Now())
		switch {
		case err != nil:
			ack.Error = err.Error()
		case signal == nil:
			ack.Error = "only signal messages are accepted"
		default:
			ack.Accepted = s.session.AddSignal(*signal)
		}

		if err := conn.WriteJSON(ack); err != nil {
			s.logger.Warn("Failed to ack signal", zap.Error(err))
			return
		}
	}
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := s.decisions.ListDecisions(r.Context(), listLimit(r))
	if err != nil {
		s.logger.Error("Failed to list decisions", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}
	if decisions == nil {
		decisions = []*domain.Decision{}
	}
	s.writeJSON(w, http.StatusOK, decisions)
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	decision, err := s.decisions.GetDecision(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "decision not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to get decision", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to get decision")
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleListRiskRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.ListRiskRecords(r.Context(), listLimit(r))
	if err != nil {
		s.logger.Error("Failed to list risk records", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list risk records")
		return
	}
	if records == nil {
		records = []*domain.RiskRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleDecisionRiskRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.ListRiskRecordsByDecision(r.Context(), r.PathValue("decisionID"))
	if err != nil {
		s.logger.Error("Failed to list risk records", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list risk records")
		return
	}
	if len(records) == 0 {
		s.writeError(w, http.StatusNotFound, "no risk records for decision")
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "manual halt"
	}
	s.session.Halt(reason)
	s.writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.session.Resume()
	s.writeJSON(w, http.StatusOK, s.session.Status())
}
