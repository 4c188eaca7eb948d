package debug

// Canonical field names for structured log entries.
const (
	FieldComponent = "component"
	FieldOldState  = "old_state"
	FieldNewState  = "new_state"
	FieldSessionID = "session_id"
	FieldAttempt   = "attempt"
	FieldFacing    = "facing"
	FieldEvent     = "event"
)
