package log

// Common field names for structured logging
const (
	FieldComponent        = "component"
	FieldRequestID        = "request_id"
	FieldClientIP         = "client_ip"
	FieldMethod           = "method"
	FieldPath             = "path"
	FieldQuery            = "query"
	FieldStatusCode       = "status_code"
	FieldDuration         = "duration_ms"
	FieldUserAgent        = "user_agent"
	FieldReferer          = "referer"
	FieldSuccess          = "success"
	FieldError            = "error"
	FieldOperation        = "operation"
	FieldPersonID         = "person_id"
	FieldExpenseID        = "expense_id"
	FieldBudgetID         = "budget_id"
	FieldAmountYen        = "amount_yen"
	FieldCategory         = "category"
	FieldNotificationKind = "notification_kind"
	FieldRowsImported     = "rows_imported"
	FieldRowErrors        = "row_errors"
	FieldRowWarnings      = "row_warnings"
	FieldSnapshotID       = "snapshot_id"
	FieldSheetsRef        = "sheets_ref"
	FieldCount            = "count"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentLedger      = "ledger"
	ComponentStorage     = "storage"
	ComponentAMQP        = "amqp"
	ComponentSheets      = "sheets"
	ComponentCache       = "cache"
	ComponentNotify      = "notify"
	ComponentMaintenance = "maintenance"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpImport   = "import"
	OpExport   = "export"
	OpArchive  = "archive"
	OpRestore  = "restore"
	OpExpire   = "expire"
	OpNotify   = "notify"
	OpMirror   = "mirror"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// With adds an arbitrary field
func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithExpense adds expense-related fields
func (f LogFields) WithExpense(id, personID, amountYen int64, category string) LogFields {
	f[FieldExpenseID] = id
	f[FieldPersonID] = personID
	f[FieldAmountYen] = amountYen
	f[FieldCategory] = category
	return f
}

// WithImport adds CSV import counters
func (f LogFields) WithImport(imported, rowErrors, warnings int) LogFields {
	f[FieldRowsImported] = imported
	f[FieldRowErrors] = rowErrors
	f[FieldRowWarnings] = warnings
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	if referer != "" {
		f[FieldReferer] = referer
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
