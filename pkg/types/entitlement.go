package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// MetadataLiveSessionIDsKey is the metadata key under which purchase records
// (lesson or course level) enumerate the live sessions they unlock.
const MetadataLiveSessionIDsKey = "live_lesson_session_ids"

// Entitlement is an access record written by the billing/enrollment side.
// A record may grant sessions directly, through an id list, through its
// metadata map, or any combination of the three.
type Entitlement struct {
	ID         string  `json:"id" db:"id"`
	ChildID    string  `json:"child_id" db:"child_id"`
	CourseID   *string `json:"course_id,omitempty" db:"course_id"`
	SessionID  *string `json:"session_id,omitempty" db:"session_id"`
	SessionIDs IDList  `json:"session_ids,omitempty" db:"session_ids"`
	Metadata   JSONMap `json:"metadata,omitempty" db:"metadata"`
	Paid       bool    `json:"paid" db:"paid"`
}

// Grants normalises the record into its tagged grant shapes.
func (e *Entitlement) Grants() []EntitlementGrant {
	var grants []EntitlementGrant
	if e.SessionID != nil && strings.TrimSpace(*e.SessionID) != "" {
		grants = append(grants, DirectGrant{SessionID: strings.TrimSpace(*e.SessionID)})
	}
	if len(e.SessionIDs) > 0 {
		grants = append(grants, ListGrant{IDs: e.SessionIDs})
	}
	if len(e.Metadata) > 0 {
		grants = append(grants, NestedGrant{Metadata: e.Metadata})
	}
	return grants
}

// EntitlementGrant is one of DirectGrant, ListGrant or NestedGrant.
type EntitlementGrant interface {
	SessionIDs() []string
	grant()
}

type DirectGrant struct{ SessionID string }

type ListGrant struct{ IDs []string }

type NestedGrant struct{ Metadata JSONMap }

func (g DirectGrant) SessionIDs() []string { return []string{g.SessionID} }

func (g ListGrant) SessionIDs() []string { return g.IDs }

// SessionIDs reads MetadataLiveSessionIDsKey; a missing or malformed key grants nothing.
func (g NestedGrant) SessionIDs() []string {
	raw, ok := g.Metadata[MetadataLiveSessionIDsKey]
	if !ok {
		return nil
	}
	ids, err := normalizeIDs(raw)
	if err != nil {
		return nil
	}
	return ids
}

func (DirectGrant) grant() {}
func (ListGrant) grant()   {}
func (NestedGrant) grant() {}

// IDList is a JSON array of ids stored in a text column. Elements may be
// JSON strings or numbers; both are kept as their decimal string form.
type IDList []string

func (l *IDList) Scan(src interface{}) error {
	data, err := columnBytes(src)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		*l = nil
		return nil
	}
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode id list: %w", err)
	}
	ids, err := normalizeIDs(raw)
	if err != nil {
		return err
	}
	*l = ids
	return nil
}

func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// JSONMap is an opaque JSON object stored in a text column.
type JSONMap map[string]interface{}

func (m *JSONMap) Scan(src interface{}) error {
	data, err := columnBytes(src)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		*m = nil
		return nil
	}
	out := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	*m = out
	return nil
}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(map[string]interface{}(m))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func columnBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", src)
	}
}

// normalizeIDs accepts a decoded JSON array (or a single scalar) of strings
// and numbers and returns the ids as trimmed strings, skipping blanks.
func normalizeIDs(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			id, ok := scalarID(item)
			if !ok {
				return nil, fmt.Errorf("unsupported id element %T", item)
			}
			if id != "" {
				ids = append(ids, id)
			}
		}
		return ids, nil
	case []string:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				ids = append(ids, s)
			}
		}
		return ids, nil
	case []int:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			ids = append(ids, fmt.Sprintf("%d", item))
		}
		return ids, nil
	default:
		id, ok := scalarID(v)
		if !ok {
			return nil, fmt.Errorf("unsupported id list %T", raw)
		}
		if id == "" {
			return nil, nil
		}
		return []string{id}, nil
	}
}

func scalarID(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id), true
	case json.Number:
		return id.String(), true
	case float64:
		return fmt.Sprintf("%.0f", id), id == float64(int64(id))
	case int:
		return fmt.Sprintf("%d", id), true
	case int64:
		return fmt.Sprintf("%d", id), true
	default:
		return "", false
	}
}
