// Package validate holds small request-shape checks for the SQL/cascade
// HTTP endpoints, generalizing the teacher's field-validator shape
// (NonEmpty/MaxLen/IsJSONObject kept verbatim; the teacher's
// user/memory-specific validators have no RVBBIT analogue and are
// replaced by a SQL query check).
package validate

import (
	"encoding/json"
	"fmt"
)

const maxSQLLength = 64 * 1024

func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func MaxLen(field string, v *string, limit int) error {
	if v == nil {
		return nil
	}
	if len(*v) > limit {
		return fmt.Errorf("%s exceeds %d characters", field, limit)
	}
	return nil
}

func IsJSONObject(val interface{}) error {
	switch v := val.(type) {
	case map[string]interface{}:
		return nil
	case json.RawMessage:
		var m map[string]interface{}
		if err := json.Unmarshal(v, &m); err == nil {
			return nil
		}
	}
	return fmt.Errorf("must be JSON object")
}

// SQLQuery validates an inbound SQL query string before it reaches the
// rewriter: non-empty and under a sane size cap so a pathological
// payload doesn't reach the tokenizer.
func SQLQuery(sql string) error {
	if err := NonEmpty("sql", sql); err != nil {
		return err
	}
	if len(sql) > maxSQLLength {
		return fmt.Errorf("sql exceeds %d bytes", maxSQLLength)
	}
	return nil
}
