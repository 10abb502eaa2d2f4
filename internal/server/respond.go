package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

// envelope is the uniform JSON response shape. Success responses carry
// message and data; error responses carry error and code.
type envelope struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      int    `json:"code,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) respond(w http.ResponseWriter, status int, message string, data any) {
	if message == "" {
		message = "操作成功"
	}
	s.writeJSON(w, status, envelope{
		Status:    "success",
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, envelope{
		Status:    "error",
		Error:     msg,
		Code:      status,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("writing response failed", zap.Error(err))
	}
}

// respondDomainError maps the error taxonomy onto HTTP statuses: absent or
// malformed credentials 401, rejected credentials 403, unknown user 404,
// upstream failures 502, anything else 500.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	var authErr *domain.AuthError
	switch {
	case errors.As(err, &authErr):
		status := http.StatusUnauthorized
		if authErr.Forbidden {
			status = http.StatusForbidden
		}
		s.respondError(w, status, authErr.Reason)
	case errors.Is(err, domain.ErrUserNotFound):
		s.respondError(w, http.StatusNotFound, "user not found")
	default:
		var fetchErr *domain.DataFetchError
		var deliveryErr *domain.DeliveryError
		if errors.As(err, &fetchErr) || errors.As(err, &deliveryErr) {
			s.respondError(w, http.StatusBadGateway, "upstream request failed")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
