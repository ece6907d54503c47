package storage

import (
	"bytes"
	"encoding/json"

	"bosstimer/internal/timers"
)

// wireRecord mirrors timers.Record with optional fields so that missing keys
// take the same defaults as a freshly added entry.
type wireRecord struct {
	Name     *string `json:"name"`
	Minutes  *int    `json:"minutes"`
	Seconds  *int    `json:"seconds"`
	LastTime *string `json:"last_time"`
	Enabled  *bool   `json:"enabled"`
}

func (w wireRecord) record() timers.Record {
	r := timers.Record{
		Name:     timers.DefaultName,
		Minutes:  timers.DefaultMinutes,
		LastTime: "00:00:00",
		Enabled:  true,
	}
	if w.Name != nil {
		r.Name = *w.Name
	}
	if w.Minutes != nil {
		r.Minutes = *w.Minutes
	}
	if w.Seconds != nil {
		r.Seconds = *w.Seconds
	}
	if w.LastTime != nil {
		r.LastTime = *w.LastTime
	}
	if w.Enabled != nil {
		r.Enabled = *w.Enabled
	}
	return r
}

// decodeRecords parses a JSON array of records. A structurally invalid
// document fails as a whole; bad elements are skipped one by one.
func decodeRecords(b []byte) (records []timers.Record, malformed []error, err error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, nil, err
	}

	records = make([]timers.Record, 0, len(raw))
	for i, item := range raw {
		r, derr := decodeRecord(item)
		if derr != nil {
			malformed = append(malformed, &timers.MalformedEntryError{
				Index:  i + 1,
				Name:   guessName(item),
				Reason: "cannot decode record",
				Err:    derr,
			})
			continue
		}
		records = append(records, r)
	}
	return records, malformed, nil
}

func decodeRecord(b []byte) (timers.Record, error) {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return timers.Record{}, err
	}
	return w.record(), nil
}

func guessName(b []byte) string {
	var probe struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(b, &probe)
	return probe.Name
}

func encodeRecords(records []timers.Record) ([]byte, error) {
	if records == nil {
		records = []timers.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
