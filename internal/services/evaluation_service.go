package services

import (
	"context"
	"fmt"
	"time"

	"budgetwatch/internal/core"
	"budgetwatch/internal/log"
	"budgetwatch/internal/storage"
)

// EvaluationStore is the storage surface the evaluation service needs.
type EvaluationStore interface {
	ListBudgets(ctx context.Context) ([]core.BudgetLimit, error)
	ListExpenses(ctx context.Context, from, to time.Time) ([]core.Expense, error)
	InsertAlert(ctx context.Context, a storage.Alert) (int64, error)
	HasAlertForWindow(ctx context.Context, kind, category string, periodStart, periodEnd time.Time) (bool, error)
}

// EvaluationService runs the budget evaluation and raises alerts for limits
// whose window spend exceeds them. An alert is raised at most once per
// (category, window) pair, so periodic runs stay quiet after the first hit.
type EvaluationService struct {
	storage   EvaluationStore
	publisher AlertPublisher
	logger    *log.Logger
}

func NewEvaluationService(store EvaluationStore, publisher AlertPublisher, logger *log.Logger) *EvaluationService {
	return &EvaluationService{
		storage:   store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentEvaluator),
	}
}

// RunEvaluation evaluates every configured budget against spending as of the
// given instant and returns the alerts raised by this run.
func (s *EvaluationService) RunEvaluation(ctx context.Context, asOf time.Time) ([]storage.Alert, error) {
	limits, err := s.storage.ListBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load budgets: %w", err)
	}
	if len(limits) == 0 {
		return nil, nil
	}

	// One fetch covering the widest window across all configured periods.
	from, to := widestWindow(limits, asOf)
	records, err := s.storage.ListExpenses(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}

	events, err := core.Evaluate(records, limits, asOf)
	if err != nil {
		return nil, fmt.Errorf("evaluate budgets: %w", err)
	}

	var raised []storage.Alert
	for _, ev := range events {
		alert, ok, err := s.raiseBudgetAlert(ctx, ev)
		if err != nil {
			return raised, err
		}
		if ok {
			raised = append(raised, alert)
		}
	}

	s.logger.InfoContext(ctx, "Evaluation complete",
		log.FieldOperation, log.OpEvaluate,
		log.FieldAsOf, asOf.Format(time.RFC3339),
		"budgets", len(limits),
		"events", len(events),
		"raised", len(raised))

	return raised, nil
}

// raiseBudgetAlert records and publishes a single overage event, skipping
// windows that already have an alert of the same kind.
func (s *EvaluationService) raiseBudgetAlert(ctx context.Context, ev core.AlertEvent) (storage.Alert, bool, error) {
	exists, err := s.storage.HasAlertForWindow(ctx, storage.AlertKindBudget, ev.Category, ev.PeriodStart, ev.PeriodEnd)
	if err != nil {
		return storage.Alert{}, false, fmt.Errorf("check existing alert: %w", err)
	}
	if exists {
		return storage.Alert{}, false, nil
	}

	alert := storage.Alert{
		Kind:         storage.AlertKindBudget,
		Category:     ev.Category,
		PeriodStart:  ev.PeriodStart,
		PeriodEnd:    ev.PeriodEnd,
		ActualCents:  ev.ActualSpend.Cents,
		LimitCents:   ev.Limit.Cents,
		OverageCents: ev.Overage.Cents,
	}
	id, err := s.storage.InsertAlert(ctx, alert)
	if err != nil {
		return storage.Alert{}, false, fmt.Errorf("record budget alert: %w", err)
	}
	alert.ID = id
	alert.DeliveryStatus = storage.DeliveryPending

	s.logger.InfoContext(ctx, "Budget exceeded",
		log.FieldAlertID, id,
		log.FieldCategory, ev.Category,
		log.FieldAmountCents, ev.ActualSpend.Cents,
		log.FieldLimitCents, ev.Limit.Cents,
		log.FieldOverage, ev.Overage.Cents)

	s.publishBudgetAlert(ctx, id)

	return alert, true, nil
}

func (s *EvaluationService) publishBudgetAlert(ctx context.Context, alertID int64) {
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "Publisher not available, alert stays pending",
			log.FieldAlertID, alertID)
		return
	}

	if err := s.publisher.PublishAlert(ctx, alertID, storage.AlertKindBudget); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish alert",
			log.FieldAlertID, alertID, log.FieldError, err)
	}
}

// widestWindow returns the union of the evaluation windows for all limits.
func widestWindow(limits []core.BudgetLimit, asOf time.Time) (time.Time, time.Time) {
	var from, to time.Time
	for i, l := range limits {
		start, end := l.Period.Window(asOf)
		if i == 0 || start.Before(from) {
			from = start
		}
		if i == 0 || end.After(to) {
			to = end
		}
	}
	return from, to
}
