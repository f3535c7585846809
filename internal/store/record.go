// Package store persists the moderation record (admins and blacklist).
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// ErrConfigUnavailable is returned when the backing store cannot be read or
// holds content that does not decode as a moderation record.
var ErrConfigUnavailable = errors.New("moderation config unavailable")

const (
	keyAdmins    = "admins"
	keyBlacklist = "blacklist"
)

// Record is the single persisted moderation document.
// Top-level fields other than admins and blacklist are kept verbatim so a
// load/mutate/save cycle never drops data written by newer versions.
type Record struct {
	Admins    []string
	Blacklist []string

	extra map[string]json.RawMessage
}

// NewRecord returns an empty, uninitialized record.
func NewRecord() *Record {
	return &Record{Admins: []string{}, Blacklist: []string{}}
}

// IsAdmin reports whether id is in the admin set.
func (r *Record) IsAdmin(id string) bool {
	return lo.Contains(r.Admins, id)
}

// IsBlacklisted reports whether id is in the blacklist.
func (r *Record) IsBlacklisted(id string) bool {
	return lo.Contains(r.Blacklist, id)
}

// Extra returns the raw value of an unknown top-level field.
func (r *Record) Extra(key string) (json.RawMessage, bool) {
	v, ok := r.extra[key]
	return v, ok
}

// MarshalJSON writes admins, blacklist and any preserved extra fields.
func (r *Record) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(r.extra)+2)
	for k, v := range r.extra {
		doc[k] = v
	}
	doc[keyAdmins] = nonNil(r.Admins)
	doc[keyBlacklist] = nonNil(r.Blacklist)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads a record, defaulting missing or null sets to empty.
func (r *Record) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	admins, err := stringSet(doc, keyAdmins)
	if err != nil {
		return err
	}
	blacklist, err := stringSet(doc, keyBlacklist)
	if err != nil {
		return err
	}
	delete(doc, keyAdmins)
	delete(doc, keyBlacklist)
	r.Admins = admins
	r.Blacklist = blacklist
	r.extra = nil
	if len(doc) > 0 {
		r.extra = doc
	}
	return nil
}

// Encode renders a record as indented UTF-8 JSON with HTML escaping off.
func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a stored document. Blank input is an uninitialized record.
func Decode(data []byte) (*Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewRecord(), nil
	}
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
	}
	return rec, nil
}

func stringSet(doc map[string]json.RawMessage, key string) ([]string, error) {
	raw, ok := doc[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	return nonNil(out), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
