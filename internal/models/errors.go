package models

import "fmt"

// ConfigurationError indicates tenant configuration that cannot be acted on,
// such as an unknown pipeline stage or a missing threshold. It is always fatal
// to the call that hit it: defaulting a bad config would silently corrupt
// every decision made for the tenant.
type ConfigurationError struct {
	Tenant string // tenant name, may be empty when not yet known
	Field  string // offending field or stage name
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Tenant == "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration error: tenant %s: %s: %s", e.Tenant, e.Field, e.Reason)
}

// DataIntegrityError indicates observed metrics that cannot be true, e.g. a
// counter that moved backwards or a negative spend. The offending snapshot is
// rejected and the prior good state retained.
type DataIntegrityError struct {
	AdID   string
	Field  string
	Stored float64 // previously accepted value, 0 when none
	Seen   float64
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error: ad %s: %s: stored %g, seen %g",
		e.AdID, e.Field, e.Stored, e.Seen)
}
