package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"StagAlgo/internal/domain/models"
	domrepo "StagAlgo/internal/domain/repository"
	pkgkafka "StagAlgo/pkg/kafka"
)

// EventHandler consumes cleaned-or-dropped repository events.
type EventHandler interface {
	Handle(ev models.RepositoryEvent) bool
}

// IngestHandler consumes repository events from Kafka and hands them to the
// cleaner. Rejected records are counted by the cleaner and acknowledged;
// only undecodable envelopes are returned as errors for the DLQ.
type IngestHandler struct {
	topic   string
	cleaner EventHandler
	metrics domrepo.Metrics
	now     func() time.Time
}

func NewIngestHandler(topic string, cleaner EventHandler, metrics domrepo.Metrics) *IngestHandler {
	return &IngestHandler{topic: topic, cleaner: cleaner, metrics: metrics, now: time.Now}
}

func (h *IngestHandler) Topic() string { return h.topic }

func (h *IngestHandler) Handle(_ context.Context, b []byte) error {
	var ev models.RepositoryEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode repository event: %w", err)
	}
	if ev.Event == "" || ev.DataType == "" {
		h.metrics.RecordError("consumer_envelope")
		return fmt.Errorf("repository event missing event or data_type")
	}
	if !ev.Timestamp.IsZero() {
		h.metrics.RecordLatency("ingest_e2e_seconds", h.now().Sub(ev.Timestamp).Seconds())
	}

	start := h.now()
	accepted := h.cleaner.Handle(ev)
	h.metrics.RecordLatency("ingest_apply_seconds", h.now().Sub(start).Seconds())
	if accepted {
		h.metrics.RecordMessageSent("store", string(ev.DataType))
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*IngestHandler)(nil)
