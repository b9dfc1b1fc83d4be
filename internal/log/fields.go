package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldAlertID     = "alert_id"
	FieldAlertKind   = "alert_kind"
	FieldCategory    = "category"
	FieldPeriod      = "period"
	FieldAmountCents = "amount_cents"
	FieldLimitCents  = "limit_cents"
	FieldOverage     = "overage_cents"
	FieldAsOf        = "as_of"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentExpenses  = "expenses"
	ComponentEvaluator = "evaluator"
	ComponentForecast  = "forecast"
	ComponentAnomaly   = "anomaly"
	ComponentMailer    = "mailer"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpList     = "list"
	OpDelete   = "delete"
	OpEvaluate = "evaluate"
	OpDeliver  = "deliver"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
