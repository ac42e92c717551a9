// Package handler serves the ingestion HTTP API that turns document writes
// into ingest events on Kafka.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/tracing"
)

const maxRequestBytes = 8 << 20

// Ingester publishes a batch of ingest events.
type Ingester interface {
	Ingest(ctx context.Context, events []ingestion.IngestEvent) error
}

type Handler struct {
	ingester Ingester
	logger   *slog.Logger
}

func New(ingester Ingester) *Handler {
	return &Handler{
		ingester: ingester,
		logger:   slog.Default().With("component", "ingestion-handler"),
	}
}

// Register mounts the API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Delete)
	mux.HandleFunc("GET /health", h.Health)
}

// Ingest accepts one ingest event object or a JSON array of them.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var events []ingestion.IngestEvent
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &events); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		var ev ingestion.IngestEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		h.writeError(w, http.StatusBadRequest, "no events")
		return
	}
	h.publish(w, r, events)
}

// Delete publishes a delete event for the document in the path.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	h.publish(w, r, []ingestion.IngestEvent{{
		DocumentID: r.PathValue("id"),
		Op:         ingestion.OpDelete,
	}})
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request, events []ingestion.IngestEvent) {
	ctx := r.Context()
	if err := h.ingester.Ingest(ctx, events); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  err.Error(),
				"fields": validationErr.Fields,
			})
			return
		}
		h.logger.Error("ingestion failed",
			"trace_id", tracing.TraceID(ctx),
			"count", len(events),
			"error", err,
		)
		h.writeError(w, http.StatusServiceUnavailable, "ingestion failed")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": len(events),
		"trace_id": tracing.TraceID(ctx),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
