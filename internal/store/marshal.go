package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/verso/internal/ir"
)

// marshalFields serializes field values as plain JSON with sorted keys.
// Strings are written exactly as given; the canonical form is reserved for
// digests and stable keys.
func marshalFields(fields ir.Record) (string, error) {
	b, err := fields.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(b), nil
}

func unmarshalFields(data string) (ir.Record, error) {
	var r ir.Record
	if err := r.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return r, nil
}

func encodeTime(t time.Time) int64 {
	return t.UnixNano()
}

func decodeTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
