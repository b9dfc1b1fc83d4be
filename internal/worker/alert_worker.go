// Package worker delivers recorded alerts by email.
//
// Alerts arrive over AMQP as lightweight ID-only messages; the worker loads
// the full row from storage, sends the matching email and records the
// delivery outcome. A startup sweep re-delivers alerts whose publish or
// previous delivery failed.
package worker

import (
	"context"
	"errors"
	"fmt"

	"budgetwatch/internal/amqp"
	"budgetwatch/internal/core"
	"budgetwatch/internal/log"
	"budgetwatch/internal/mailer"
	"budgetwatch/internal/storage"
)

// AlertStore is the storage surface the worker needs.
type AlertStore interface {
	GetAlert(ctx context.Context, id int64) (storage.Alert, error)
	ListPendingAlerts(ctx context.Context, limit int) ([]storage.Alert, error)
	MarkAlertDelivered(ctx context.Context, id int64) error
	MarkAlertDeliveryError(ctx context.Context, id int64) error
}

// AlertWorker consumes alert messages and sends the corresponding emails.
type AlertWorker struct {
	storage   AlertStore
	mailer    mailer.Sender
	batchSize int
	logger    *log.Logger
}

func NewAlertWorker(store AlertStore, sender mailer.Sender, batchSize int, logger *log.Logger) *AlertWorker {
	return &AlertWorker{
		storage:   store,
		mailer:    sender,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleAlertMessage delivers the alert referenced by an AMQP message.
// Returning an error requeues the message.
func (w *AlertWorker) HandleAlertMessage(ctx context.Context, msg *amqp.AlertMessage) error {
	alert, err := w.storage.GetAlert(ctx, msg.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Row is gone, nothing to deliver. Ack by returning nil.
			w.logger.WarnContext(ctx, "Alert not found, dropping message",
				log.FieldAlertID, msg.ID)
			return nil
		}
		return fmt.Errorf("load alert %d: %w", msg.ID, err)
	}

	return w.deliver(ctx, alert)
}

// ProcessPendingAlerts sweeps alerts that never made it through the broker,
// oldest first. Called once at startup and safe to call repeatedly.
func (w *AlertWorker) ProcessPendingAlerts(ctx context.Context) error {
	pending, err := w.storage.ListPendingAlerts(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending alerts: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	w.logger.InfoContext(ctx, "Processing pending alerts", "count", len(pending))

	var failed int
	for _, alert := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.deliver(ctx, alert); err != nil {
			failed++
			w.logger.ErrorContext(ctx, "Pending alert delivery failed",
				log.FieldAlertID, alert.ID, log.FieldError, err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d pending alerts failed delivery", failed, len(pending))
	}
	return nil
}

func (w *AlertWorker) deliver(ctx context.Context, alert storage.Alert) error {
	if alert.DeliveryStatus == storage.DeliveryDelivered {
		w.logger.DebugContext(ctx, "Alert already delivered, skipping",
			log.FieldAlertID, alert.ID)
		return nil
	}

	if err := w.send(ctx, alert); err != nil {
		if markErr := w.storage.MarkAlertDeliveryError(ctx, alert.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark delivery error",
				log.FieldAlertID, alert.ID, log.FieldError, markErr)
		}
		return fmt.Errorf("deliver alert %d: %w", alert.ID, err)
	}

	if err := w.storage.MarkAlertDelivered(ctx, alert.ID); err != nil {
		return fmt.Errorf("mark alert %d delivered: %w", alert.ID, err)
	}

	w.logger.InfoContext(ctx, "Alert delivered",
		log.FieldOperation, log.OpDeliver,
		log.FieldAlertID, alert.ID,
		log.FieldAlertKind, alert.Kind,
		log.FieldCategory, alert.Category)

	return nil
}

func (w *AlertWorker) send(ctx context.Context, alert storage.Alert) error {
	switch alert.Kind {
	case storage.AlertKindBudget:
		return w.mailer.SendBudgetAlert(ctx, mailer.BudgetAlert{
			Category:    alert.Category,
			PeriodStart: alert.PeriodStart,
			PeriodEnd:   alert.PeriodEnd,
			Actual:      core.Money{Cents: alert.ActualCents},
			Limit:       core.Money{Cents: alert.LimitCents},
			Overage:     core.Money{Cents: alert.OverageCents},
		})
	case storage.AlertKindAnomaly:
		return w.mailer.SendAnomalyAlert(ctx, mailer.AnomalyAlert{
			Category: alert.Category,
			Amount:   core.Money{Cents: alert.ActualCents},
			Date:     alert.PeriodStart,
		})
	default:
		return fmt.Errorf("unknown alert kind %q", alert.Kind)
	}
}
