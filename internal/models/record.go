package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"gopkg.in/yaml.v3"
)

const (
	fieldID      = "id"
	fieldDate    = "date"
	fieldDeleted = "deleted"

	// DateLayout is the business date format of Record.Date.
	DateLayout = "2006-01-02"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Record is one entry of a collection. Only ID, Date and Deleted take part
// in merging; every other member is carried in Fields and written back
// byte for byte.
type Record struct {
	// ID is unique within a collection and assigned locally at creation
	// (milliseconds since the epoch).
	ID int64

	// Date is the business date (YYYY-MM-DD). It is the merge tie-breaker,
	// not a modification time.
	Date string

	// Deleted marks a tombstone.
	Deleted bool

	// Fields holds the opaque payload.
	Fields map[string]json.RawMessage
}

// UnmarshalJSON splits the merge keys from the opaque payload.
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var out Record

	if v, ok := raw[fieldID]; ok {
		if err := json.Unmarshal(v, &out.ID); err != nil {
			return fmt.Errorf("%w: id: %v", common.ErrInvalidRecord, err)
		}
		delete(raw, fieldID)
	}

	if v, ok := raw[fieldDate]; ok {
		if string(v) != "null" {
			if err := json.Unmarshal(v, &out.Date); err != nil {
				return fmt.Errorf("%w: date: %v", common.ErrInvalidRecord, err)
			}
		}
		delete(raw, fieldDate)
	}

	if v, ok := raw[fieldDeleted]; ok {
		// anything other than a literal true is a live record
		var d bool
		if json.Unmarshal(v, &d) == nil {
			out.Deleted = d
		}
		delete(raw, fieldDeleted)
	}

	if len(raw) > 0 {
		out.Fields = raw
	}

	*r = out
	return nil
}

// MarshalJSON writes the record as a flat object with sorted member names.
// A false Deleted flag is omitted.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(r.Fields)+3)
	for k, v := range r.Fields {
		m[k] = v
	}

	id, err := json.Marshal(r.ID)
	if err != nil {
		return nil, err
	}
	m[fieldID] = id

	date, err := json.Marshal(r.Date)
	if err != nil {
		return nil, err
	}
	m[fieldDate] = date

	if r.Deleted {
		m[fieldDeleted] = json.RawMessage("true")
	}

	return json.Marshal(m)
}

// MarshalYAML renders the same members as MarshalJSON.
func (r Record) MarshalYAML() (any, error) {
	b, err := r.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Time parses Date. Unparseable dates yield the zero time so they sort last
// and lose every date comparison.
func (r Record) Time() time.Time {
	if t, err := time.Parse(DateLayout, r.Date); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, r.Date); err == nil {
		return t
	}
	return time.Time{}
}

// Field decodes one payload member into v. It reports false when the
// member is absent.
func (r Record) Field(name string, v any) (bool, error) {
	raw, ok := r.Fields[name]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// SetField stores v as a payload member.
func (r *Record) SetField(name string, v any) error {
	switch name {
	case fieldID, fieldDate, fieldDeleted:
		return fmt.Errorf("%w: %q is reserved", common.ErrInvalidRecord, name)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if r.Fields == nil {
		r.Fields = make(map[string]json.RawMessage)
	}
	r.Fields[name] = b
	return nil
}

// ValidateRecord checks the members the sync engine relies on.
func ValidateRecord(r Record) error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", common.ErrInvalidRecord)
	}
	if !dateRe.MatchString(r.Date) {
		return fmt.Errorf("%w: date %q must be YYYY-MM-DD", common.ErrInvalidRecord, r.Date)
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return fmt.Errorf("%w: date %q: %v", common.ErrInvalidRecord, r.Date, err)
	}
	return nil
}

// SortNewestFirst orders records by date descending; equal dates fall back
// to id descending so the order is deterministic.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].Time(), records[j].Time()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return records[i].ID > records[j].ID
	})
}
