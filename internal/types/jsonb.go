package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure the JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*Preferences)(nil)
	_ driver.Valuer = Preferences(nil)
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// Preferences is the client-owned settings blob stored in users.preferences.
// The mobile app reads and writes arbitrary keys; the backend only ever
// interprets notificationsDisabled, so the blob stays schemaless here and is
// round-tripped without modification.
type Preferences map[string]any

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (p *Preferences) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	return scanJSONB(p, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (p Preferences) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// NotificationsDisabled reports whether the user has opted out of push
// notifications. Only an explicit boolean true counts; a missing key, null,
// or any other value means notifications stay enabled.
func (p Preferences) NotificationsDisabled() bool {
	if p == nil {
		return false
	}
	disabled, ok := p["notificationsDisabled"].(bool)
	return ok && disabled
}
