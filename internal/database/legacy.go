package database

import (
	"bytes"
	"encoding/json"
	"time"
)

// Older releases wrote local wall-clock timestamps without a zone and used
// different key names in a few records.
var legacyTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

var timestampKeys = []string{
	"joined_at", "last_active", "cooldown_until", "role_expiry_date",
	"timestamp", "created_at", "completed_at",
}

// upgradeLegacy rewrites raw into the current layout. Documents that need
// no changes are returned untouched.
func upgradeLegacy(raw []byte, loc *time.Location) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}

	u := legacyUpgrader{loc: loc}
	for _, user := range objects(root["users"]) {
		u.rename(user, "id", "user_id")
		u.times(user)
		u.date(user, "last_request_date")
		u.date(user, "last_zc_grant_date")
	}
	for _, e := range objects(root["exclusions"]) {
		u.times(e)
	}
	for _, o := range objects(root["orders"]) {
		u.times(o)
	}
	for _, q := range objects(root["query_history"]) {
		u.rename(q, "service_name", "service")
		u.rename(q, "query_text", "query")
		u.times(q)
	}
	if analytics, ok := root["analytics"].(map[string]any); ok {
		for _, e := range objects(analytics["error_logs"]) {
			u.rename(e, "error_message", "message")
			u.rename(e, "error_type", "context")
			u.times(e)
		}
	}
	if stats, ok := root["stats"].(map[string]any); ok {
		u.date(stats, "last_reset")
	}

	if !u.changed {
		return raw, nil
	}
	return json.Marshal(root)
}

type legacyUpgrader struct {
	loc     *time.Location
	changed bool
}

func (u *legacyUpgrader) rename(m map[string]any, from, to string) {
	v, ok := m[from]
	if !ok {
		return
	}
	if _, exists := m[to]; !exists {
		m[to] = v
	}
	delete(m, from)
	u.changed = true
}

func (u *legacyUpgrader) times(m map[string]any) {
	for _, key := range timestampKeys {
		s, ok := m[key].(string)
		if !ok {
			continue
		}
		if s == "" {
			m[key] = nil
			u.changed = true
			continue
		}
		if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
			continue
		}
		if t, ok := u.parse(s); ok {
			m[key] = t.Format(time.RFC3339Nano)
			u.changed = true
		}
	}
}

// date cuts a full timestamp stored in a calendar-date field down to the date.
func (u *legacyUpgrader) date(m map[string]any, key string) {
	s, ok := m[key].(string)
	if !ok || len(s) <= len("2006-01-02") {
		return
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
		if _, ok := u.parse(s); !ok {
			return
		}
	}
	m[key] = s[:len("2006-01-02")]
	u.changed = true
}

func (u *legacyUpgrader) parse(s string) (time.Time, bool) {
	for _, layout := range legacyTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, u.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// objects returns the JSON objects held in a map or array value.
func objects(v any) []map[string]any {
	var out []map[string]any
	switch c := v.(type) {
	case map[string]any:
		for _, item := range c {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	case []any:
		for _, item := range c {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out
}
