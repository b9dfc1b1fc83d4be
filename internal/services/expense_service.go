package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetwatch/internal/anomaly"
	"budgetwatch/internal/core"
	"budgetwatch/internal/forecast"
	"budgetwatch/internal/log"
	"budgetwatch/internal/storage"
)

// AlertPublisher publishes alert notifications to the message broker.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, id int64, kind string) error
}

// ExpenseStore is the storage surface the expense service needs.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.Expense) (int64, error)
	ListExpenses(ctx context.Context, from, to time.Time) ([]core.Expense, error)
	ListAllExpenses(ctx context.Context) ([]core.Expense, error)
	InsertAlert(ctx context.Context, a storage.Alert) (int64, error)
}

// ExpenseService orchestrates expense writes across SQLite, the anomaly
// detector and AMQP, and serves the derived read views.
type ExpenseService struct {
	storage    ExpenseStore
	publisher  AlertPublisher
	detector   *anomaly.Detector
	forecaster *forecast.Forecaster
	logger     *log.Logger
}

func NewExpenseService(store ExpenseStore, publisher AlertPublisher, detector *anomaly.Detector, logger *log.Logger) *ExpenseService {
	return &ExpenseService{
		storage:    store,
		publisher:  publisher,
		detector:   detector,
		forecaster: forecast.New(),
		logger:     logger.WithComponent(log.ComponentExpenses),
	}
}

// CreateExpense saves an expense and checks its amount against the spending
// history. An anomalous amount raises an alert, but never fails the request:
// the expense is already saved.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	// Snapshot history before the insert so the new expense is scored
	// against spending that predates it.
	history, err := s.storage.ListAllExpenses(ctx)
	if err != nil {
		return 0, fmt.Errorf("load expense history: %w", err)
	}

	id, err := s.storage.CreateExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}

	s.checkAnomaly(ctx, e, history)

	return id, nil
}

// checkAnomaly raises an anomaly alert when the amount is far outside the
// typical spending pattern. Detection and delivery failures are logged only.
func (s *ExpenseService) checkAnomaly(ctx context.Context, e core.Expense, history []core.Expense) {
	anomalous, err := s.detector.IsAmountAnomalous(history, e.Amount)
	if err != nil {
		if !errors.Is(err, anomaly.ErrInsufficientData) {
			s.logger.WarnContext(ctx, "Anomaly check failed", log.FieldError, err)
		}
		return
	}
	if !anomalous {
		return
	}

	day := e.Date.Time.UTC().Truncate(24 * time.Hour)
	alertID, err := s.storage.InsertAlert(ctx, storage.Alert{
		Kind:        storage.AlertKindAnomaly,
		Category:    e.Category,
		PeriodStart: day,
		PeriodEnd:   day.AddDate(0, 0, 1),
		ActualCents: e.Amount.Cents,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to record anomaly alert",
			log.FieldCategory, e.Category, log.FieldError, err)
		return
	}

	s.logger.InfoContext(ctx, "Anomalous expense detected",
		log.FieldAlertID, alertID,
		log.FieldCategory, e.Category,
		log.FieldAmountCents, e.Amount.Cents)

	s.publish(ctx, alertID, storage.AlertKindAnomaly)
}

// publish sends the alert notification, tolerating a missing broker. The
// worker's startup sweep picks up alerts whose publish failed.
func (s *ExpenseService) publish(ctx context.Context, alertID int64, kind string) {
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "Publisher not available, alert stays pending",
			log.FieldAlertID, alertID)
		return
	}

	if err := s.publisher.PublishAlert(ctx, alertID, kind); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish alert",
			log.FieldAlertID, alertID, log.FieldAlertKind, kind, log.FieldError, err)
	}
}

// ListExpenses returns expenses with date in [from, to).
func (s *ExpenseService) ListExpenses(ctx context.Context, from, to time.Time) ([]core.Expense, error) {
	return s.storage.ListExpenses(ctx, from, to)
}

// Summary aggregates spending in [from, to).
func (s *ExpenseService) Summary(ctx context.Context, from, to time.Time) (core.SpendSummary, error) {
	records, err := s.storage.ListExpenses(ctx, from, to)
	if err != nil {
		return core.SpendSummary{}, fmt.Errorf("load expenses: %w", err)
	}
	return core.Summarize(records), nil
}

// Forecast projects daily spending for the given horizon.
func (s *ExpenseService) Forecast(ctx context.Context, days int) ([]forecast.Point, error) {
	records, err := s.storage.ListAllExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	return s.forecaster.PredictFuture(records, days)
}

// MonthlyForecast projects total spending for the next 30 days.
func (s *ExpenseService) MonthlyForecast(ctx context.Context) (core.Money, error) {
	records, err := s.storage.ListAllExpenses(ctx)
	if err != nil {
		return core.Money{}, fmt.Errorf("load expenses: %w", err)
	}
	return s.forecaster.MonthlyPrediction(records)
}

// DetectAnomalies scores the full history and returns the outliers.
func (s *ExpenseService) DetectAnomalies(ctx context.Context) ([]anomaly.Anomaly, error) {
	records, err := s.storage.ListAllExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	return s.detector.Detect(records)
}
