package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Notification is a recorded operator notification.
type Notification struct {
	ID        int64     `db:"id"         json:"id"`
	Level     string    `db:"level"      json:"level"`
	Message   string    `db:"message"    json:"message"`
	Payload   JSONMap   `db:"payload"    json:"payload"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// JSONMap stores arbitrary JSON objects in a jsonb column.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
	return json.Unmarshal(data, m)
}
