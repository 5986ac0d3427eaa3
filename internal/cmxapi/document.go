package cmxapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Metadata field names as sent by the API.
const (
	FieldID                = "id"
	FieldExternalID        = "externalId"
	FieldCreationDate      = "creationDate"
	FieldName              = "name"
	FieldApplicationSource = "applicationSource"
	FieldSensitivity       = "sensitivity"
	FieldMaxRetentionDate  = "maxRetentionDate"
)

// DocumentRecord is the metadata of one document returned by a search.
// Fields the record does not model are kept in Extra.
type DocumentRecord struct {
	ID                string
	ExternalID        string
	CreationDate      time.Time
	Name              string
	ApplicationSource string
	Sensitivity       string
	MaxRetentionDate  time.Time

	Extra map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DocumentRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*d = DocumentRecord{}
	strs := map[string]*string{
		FieldID:                &d.ID,
		FieldExternalID:        &d.ExternalID,
		FieldName:              &d.Name,
		FieldApplicationSource: &d.ApplicationSource,
		FieldSensitivity:       &d.Sensitivity,
	}
	times := map[string]*time.Time{
		FieldCreationDate:     &d.CreationDate,
		FieldMaxRetentionDate: &d.MaxRetentionDate,
	}

	for key, raw := range fields {
		if dst, ok := strs[key]; ok {
			*dst = scalarText(raw)
			continue
		}
		if dst, ok := times[key]; ok {
			text := scalarText(raw)
			if text == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339Nano, text)
			if err != nil {
				return fmt.Errorf("invalid %s %q; %w", key, text, err)
			}
			*dst = t
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]json.RawMessage)
		}
		d.Extra[key] = raw
	}

	return nil
}

// MarshalJSON implements json.Marshaler. Zero-valued fields are omitted.
func (d DocumentRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+7)
	for k, v := range d.Extra {
		out[k] = v
	}
	setString := func(key, v string) {
		if v != "" {
			out[key] = v
		}
	}
	setTime := func(key string, t time.Time) {
		if !t.IsZero() {
			out[key] = t.Format(time.RFC3339Nano)
		}
	}
	setString(FieldID, d.ID)
	setString(FieldExternalID, d.ExternalID)
	setString(FieldName, d.Name)
	setString(FieldApplicationSource, d.ApplicationSource)
	setString(FieldSensitivity, d.Sensitivity)
	setTime(FieldCreationDate, d.CreationDate)
	setTime(FieldMaxRetentionDate, d.MaxRetentionDate)

	return json.Marshal(out)
}

// Column returns the text of a metadata column, or "" when the record does
// not carry it.
func (d DocumentRecord) Column(name string) string {
	switch name {
	case FieldID:
		return d.ID
	case FieldExternalID:
		return d.ExternalID
	case FieldName:
		return d.Name
	case FieldApplicationSource:
		return d.ApplicationSource
	case FieldSensitivity:
		return d.Sensitivity
	case FieldCreationDate:
		return formatTime(d.CreationDate)
	case FieldMaxRetentionDate:
		return formatTime(d.MaxRetentionDate)
	}
	return scalarText(d.Extra[name])
}

// RawFile describes the stored file behind a document.
type RawFile map[string]json.RawMessage

// Column returns the text of a raw-file field, or "".
func (f RawFile) Column(name string) string {
	return scalarText(f[name])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// scalarText renders a JSON value as cell text: strings unquoted, null empty,
// anything else as compact JSON.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}
