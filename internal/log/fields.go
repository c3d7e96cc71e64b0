package log

// Field names shared across components.
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
	FieldOwner      = "owner"
	FieldJob        = "job"
	FieldEntryID    = "entry_id"
	FieldYear       = "year"
	FieldMonth      = "month"
	FieldHours      = "hours"
)

// Component names.
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentExport  = "export"
	ComponentAuth    = "auth"
	ComponentCache   = "cache"
)

// Operation names.
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpDelete   = "delete"
	OpUpsert   = "upsert"
	OpExport   = "export"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
