package system

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	logger *slog.Logger
	db     Pinger
}

func NewHandler(logger *slog.Logger, db Pinger) *Handler {
	return &Handler{logger: logger, db: db}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) SystemHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "connected", Timestamp: time.Now().UTC()}
	code := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health: database ping failed", slog.Any("error", err))
		resp.Status = "error"
		resp.Database = "disconnected"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
