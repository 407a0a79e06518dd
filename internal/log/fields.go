package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldExpenseID  = "expense_id"
	FieldCategory   = "category"
	FieldAmount     = "amount"
	FieldDate       = "date"
	FieldQueueDepth = "queue_depth"
	FieldEventType  = "event_type"
	FieldLocale     = "locale"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentMirror  = "mirror"
	ComponentStore   = "store"
	ComponentFeed    = "feed"
	ComponentOffline = "offline"
	ComponentFlusher = "flusher"
	ComponentBackend = "backend"
	ComponentCache   = "cache"
)

// Operations defines standard operation names
const (
	OpFetch      = "fetch"
	OpCreate     = "create"
	OpApplyDelta = "apply_delta"
	OpEnqueue    = "enqueue"
	OpFlush      = "flush"
	OpSubscribe  = "subscribe"
	OpExport     = "export"
	OpStartup    = "startup"
	OpShutdown   = "shutdown"
)
