package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"budgetwatch/internal/anomaly"
	"budgetwatch/internal/core"
	"budgetwatch/internal/forecast"
	"budgetwatch/internal/log"
	"budgetwatch/internal/storage"
)

const dateLayout = "2006-01-02"

type expenseRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
}

type expenseResponse struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
}

type budgetRequest struct {
	Category string `json:"category"`
	Period   string `json:"period"`
	Limit    string `json:"limit"`
}

type budgetResponse struct {
	Category string `json:"category"`
	Period   string `json:"period"`
	Limit    string `json:"limit"`
}

type alertResponse struct {
	ID             int64  `json:"id"`
	Kind           string `json:"kind"`
	Category       string `json:"category"`
	PeriodStart    string `json:"period_start"`
	PeriodEnd      string `json:"period_end"`
	Actual         string `json:"actual"`
	Limit          string `json:"limit,omitempty"`
	Overage        string `json:"overage,omitempty"`
	DeliveryStatus string `json:"delivery_status"`
}

type summaryResponse struct {
	Total        string           `json:"total"`
	Transactions int              `json:"transactions"`
	AverageDaily string           `json:"average_daily"`
	TopCategory  string           `json:"top_category,omitempty"`
	ByCategory   []categoryAmount `json:"by_category,omitempty"`
}

type categoryAmount struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type forecastResponse struct {
	Days         []forecastPoint `json:"days"`
	MonthlyTotal string          `json:"monthly_total"`
}

type forecastPoint struct {
	Date      string `json:"date"`
	Predicted string `json:"predicted"`
	Lower     string `json:"lower"`
	Upper     string `json:"upper"`
}

type anomalyResponse struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      string  `json:"amount"`
	Category    string  `json:"category"`
	Score       float64 `json:"score"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.ErrorContext(r.Context(), "Response encoding failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, errorResponse{Error: msg})
}

// statusForError maps domain errors onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListExpenses(w, r)
	case http.MethodPost:
		s.handleCreateExpense(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	date, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.Date), time.UTC)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "invalid date, expected YYYY-MM-DD")
		return
	}

	cents, err := core.ParseDecimalToCents(strings.TrimSpace(req.Amount))
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	e := core.Expense{
		Date:        core.Date{Time: date},
		Description: strings.TrimSpace(req.Description),
		Amount:      core.Money{Cents: cents},
		Category:    strings.TrimSpace(req.Category),
	}

	id, err := s.expenses.CreateExpense(r.Context(), e)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Expense creation failed",
			log.FieldOperation, log.OpCreate, log.FieldError, err)
		s.writeError(w, r, statusForError(err), err.Error())
		return
	}

	s.invalidateDerived()

	s.writeJSON(w, r, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	records, err := s.expenses.ListExpenses(r.Context(), from, to)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Expense list failed",
			log.FieldOperation, log.OpList, log.FieldError, err)
		s.writeError(w, r, http.StatusInternalServerError, "failed to list expenses")
		return
	}

	out := make([]expenseResponse, 0, len(records))
	for _, e := range records {
		out = append(out, expenseResponse{
			Date:        e.Date.Format(dateLayout),
			Description: e.Description,
			Amount:      e.Amount.String(),
			Category:    e.Category,
		})
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

// parseRange reads optional from/to query dates. The range is half-open:
// from is included, to is not. Defaults cover the current calendar month.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from, to := core.PeriodMonthly.Window(now)

	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from date, expected YYYY-MM-DD")
		}
		from = t
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to date, expected YYYY-MM-DD")
		}
		to = t
	}
	return from, to, nil
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBudgets(w, r)
	case http.MethodPut:
		s.handleUpsertBudget(w, r)
	case http.MethodDelete:
		s.handleDeleteBudget(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	limits, err := s.budgets.ListBudgets(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Budget list failed",
			log.FieldOperation, log.OpList, log.FieldError, err)
		s.writeError(w, r, http.StatusInternalServerError, "failed to list budgets")
		return
	}

	out := make([]budgetResponse, 0, len(limits))
	for _, b := range limits {
		out = append(out, budgetResponse{
			Category: b.Category,
			Period:   string(b.Period),
			Limit:    b.Limit.String(),
		})
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleUpsertBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := core.ParseDecimalToCents(strings.TrimSpace(req.Limit))
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "invalid limit")
		return
	}

	b := core.BudgetLimit{
		Category: strings.TrimSpace(req.Category),
		Period:   core.Period(strings.TrimSpace(req.Period)),
		Limit:    core.Money{Cents: cents},
	}
	if err := b.Validate(); err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.budgets.UpsertBudget(r.Context(), b); err != nil {
		s.logger.ErrorContext(r.Context(), "Budget upsert failed",
			log.FieldCategory, b.Category, log.FieldError, err)
		s.writeError(w, r, http.StatusInternalServerError, "failed to save budget")
		return
	}

	s.writeJSON(w, r, http.StatusOK, budgetResponse{
		Category: b.Category,
		Period:   string(b.Period),
		Limit:    b.Limit.String(),
	})
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	period := core.Period(strings.TrimSpace(r.URL.Query().Get("period")))
	if category == "" || period.Validate() != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, "category and a valid period are required")
		return
	}

	if err := s.budgets.DeleteBudget(r.Context(), category, period); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, r, http.StatusNotFound, "budget not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "Budget delete failed",
			log.FieldCategory, category, log.FieldError, err)
		s.writeError(w, r, http.StatusInternalServerError, "failed to delete budget")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, r, http.StatusUnprocessableEntity, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	alerts, err := s.alerts.ListAlerts(r.Context(), limit)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Alert list failed",
			log.FieldOperation, log.OpList, log.FieldError, err)
		s.writeError(w, r, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func toAlertResponse(a storage.Alert) alertResponse {
	resp := alertResponse{
		ID:             a.ID,
		Kind:           a.Kind,
		Category:       a.Category,
		PeriodStart:    a.PeriodStart.Format(dateLayout),
		PeriodEnd:      a.PeriodEnd.Format(dateLayout),
		Actual:         core.Money{Cents: a.ActualCents}.String(),
		DeliveryStatus: a.DeliveryStatus,
	}
	if a.Kind == storage.AlertKindBudget {
		resp.Limit = core.Money{Cents: a.LimitCents}.String()
		resp.Overage = core.Money{Cents: a.OverageCents}.String()
	}
	return resp
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	key := from.Format(dateLayout) + "/" + to.Format(dateLayout)
	summary, found := s.summaryCache.Get(key)
	if !found {
		summary, err = s.expenses.Summary(r.Context(), from, to)
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Summary failed", log.FieldError, err)
			s.writeError(w, r, http.StatusInternalServerError, "failed to compute summary")
			return
		}
		s.summaryCache.Set(key, summary)
	}

	resp := summaryResponse{
		Total:        summary.Total.String(),
		Transactions: summary.Transactions,
		AverageDaily: summary.AverageDaily.String(),
		TopCategory:  summary.TopCategory,
	}
	for _, c := range summary.ByCategory {
		resp.ByCategory = append(resp.ByCategory, categoryAmount{Name: c.Name, Amount: c.Amount.String()})
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	days := s.DefaultForecastDays
	if days <= 0 {
		days = 30
	}
	if v := strings.TrimSpace(r.URL.Query().Get("days")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			s.writeError(w, r, http.StatusUnprocessableEntity, "days must be between 1 and 365")
			return
		}
		days = n
	}

	key := strconv.Itoa(days)
	points, found := s.forecastCache.Get(key)
	if !found {
		var err error
		points, err = s.expenses.Forecast(r.Context(), days)
		if err != nil {
			if errors.Is(err, forecast.ErrInsufficientData) {
				s.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
				return
			}
			s.logger.ErrorContext(r.Context(), "Forecast failed", log.FieldError, err)
			s.writeError(w, r, http.StatusInternalServerError, "failed to compute forecast")
			return
		}
		s.forecastCache.Set(key, points)
	}

	monthly, err := s.expenses.MonthlyForecast(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Monthly forecast failed", log.FieldError, err)
		s.writeError(w, r, http.StatusInternalServerError, "failed to compute forecast")
		return
	}

	resp := forecastResponse{MonthlyTotal: monthly.String()}
	for _, p := range points {
		resp.Days = append(resp.Days, forecastPoint{
			Date:      p.Date.Format(dateLayout),
			Predicted: p.Predicted.String(),
			Lower:     p.Lower.String(),
			Upper:     p.Upper.String(),
		})
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	found, err := s.expenses.DetectAnomalies(r.Context())
	if err != nil {
		if errors.Is(err, anomaly.ErrInsufficientData) {
			s.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.ErrorContext(r.Context(), "Anomaly detection failed", log.FieldError, err)
		s.writeError(w, r, http.StatusInternalServerError, "failed to detect anomalies")
		return
	}

	out := make([]anomalyResponse, 0, len(found))
	for _, a := range found {
		out = append(out, anomalyResponse{
			Date:        a.Expense.Date.Format(dateLayout),
			Description: a.Expense.Description,
			Amount:      a.Expense.Amount.String(),
			Category:    a.Expense.Category,
			Score:       a.Score,
		})
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raised, err := s.evaluation.RunEvaluation(r.Context(), time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Evaluation failed",
			log.FieldOperation, log.OpEvaluate, log.FieldError, err)
		s.writeError(w, r, statusForError(err), "evaluation failed")
		return
	}

	out := make([]alertResponse, 0, len(raised))
	for _, a := range raised {
		out = append(out, toAlertResponse(a))
	}
	s.writeJSON(w, r, http.StatusOK, out)
}
