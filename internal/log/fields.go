package log

// Attribute keys shared by every component.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldRoute      = "route"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldRole       = "role"
	FieldSeasonID   = "season_id"
	FieldJobID      = "job_id"
	FieldReportPath = "report_path"
	FieldBytes      = "bytes"
)

// Component names.
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentSession  = "session"
	ComponentServices = "services"
	ComponentReport   = "report"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentWeather  = "weather"
	ComponentCache    = "cache"
	ComponentSecurity = "security"
	ComponentBackend  = "backend"
)

// Operation names.
const (
	OpCreate    = "create"
	OpDelete    = "delete"
	OpSignOut   = "sign_out"
	OpSignUp    = "sign_up"
	OpRefresh   = "refresh"
	OpBootstrap = "bootstrap"
	OpExport    = "export"
)
