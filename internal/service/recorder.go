// Package service contains the application services sitting between the
// guardrail and the infrastructure layer.
package service

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"tradeflow/internal/domain"
	"tradeflow/internal/guardrail"
	"tradeflow/internal/infra/storage"
)

// Recorder persists guardrail output: alerts and trades as they happen,
// telemetry snapshots on demand. Persistence failures are logged and never
// propagate back into the guardrail.
type Recorder struct {
	store *storage.Storage
}

// NewRecorder creates a recorder over the given storage.
func NewRecorder(store *storage.Storage) *Recorder {
	return &Recorder{store: store}
}

// Attach subscribes the recorder to the guardrail's alert and trade streams.
func (r *Recorder) Attach(guard *guardrail.Engine) {
	guard.SubscribeAlerts(r.onAlert)
	guard.SubscribeTrades(r.onTrade)
}

func (r *Recorder) onAlert(a domain.Alert) {
	details := "{}"
	if len(a.Details) > 0 {
		if raw, err := json.Marshal(a.Details); err == nil {
			details = string(raw)
		}
	}

	rec := &domain.AlertRecord{
		Level:     string(a.Level),
		Message:   a.Message,
		Details:   details,
		CreatedAt: a.Timestamp,
	}
	if err := r.store.InsertAlert(rec); err != nil {
		slog.Error("failed to persist alert", slog.Any("error", err))
	}
}

func (r *Recorder) onTrade(t guardrail.Trade) {
	rec := &domain.TradeRecord{
		ID:         uuid.NewString(),
		RouteID:    t.RouteID,
		Side:       t.Side,
		Qty:        t.Qty,
		EntryPrice: t.EntryPrice,
		Commission: t.Commission,
		CreatedAt:  t.Ts,
	}
	if t.ExitPrice != nil {
		rec.ExitPrice = *t.ExitPrice
	}
	if t.Pnl != nil {
		rec.Pnl = *t.Pnl
		rec.Closed = true
	}

	if err := r.store.InsertTrade(rec); err != nil {
		slog.Error("failed to persist trade", slog.Any("error", err))
	}
}

// PersistSnapshot stores one telemetry snapshot as a JSON payload.
func (r *Recorder) PersistSnapshot(snap domain.TelemetrySnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.store.InsertSnapshot(&domain.SnapshotRecord{
		Payload:   string(raw),
		CreatedAt: snap.Timestamp,
	})
}
