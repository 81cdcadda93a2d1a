package logging

// Standard field names for structured logging. Fragment values are PII and
// are never logged; use types, counts and IDs.
const (
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldDetector  = "detector"
	FieldSource    = "source"
	FieldFile      = "file"
	FieldTable     = "table"
	FieldEntityID  = "entity_id"
	FieldFragID    = "frag_id"
	FieldCount     = "count"
	FieldThreshold = "threshold"
	FieldUser      = "user"
	FieldError     = "error"
	FieldDuration  = "duration_ms"
	FieldPath      = "path"
)
