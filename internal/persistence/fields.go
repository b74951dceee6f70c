package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"partner-workspace/internal/models"
)

// encodeFields converts an entity or field map into a JSON object without identity fields.
func encodeFields(fields any) (map[string]any, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("fields must be a JSON object: %w", err)
	}
	for k := range out {
		if models.IsMetaField(k) {
			delete(out, k)
		}
	}
	return out, nil
}

func decodeFields(data json.RawMessage) (map[string]any, error) {
	out := map[string]any{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode stored fields: %w", err)
	}
	return out, nil
}

// mergePatch overlays patch onto data at the top level.
func mergePatch(data json.RawMessage, patch map[string]any) (json.RawMessage, error) {
	fields, err := decodeFields(data)
	if err != nil {
		return nil, err
	}
	clean, err := encodeFields(patch)
	if err != nil {
		return nil, err
	}
	for k, v := range clean {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// toggleMember flips member's presence in the string array at field.
func toggleMember(data json.RawMessage, field, member string) (json.RawMessage, error) {
	if models.IsMetaField(field) {
		return nil, fmt.Errorf("field %q is not a set", field)
	}
	fields, err := decodeFields(data)
	if err != nil {
		return nil, err
	}

	var set []string
	switch cur := fields[field].(type) {
	case nil:
	case []any:
		for _, v := range cur {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("field %q holds a non-string member", field)
			}
			set = append(set, s)
		}
	default:
		return nil, fmt.Errorf("field %q is not a set", field)
	}

	next := make([]string, 0, len(set)+1)
	found := false
	for _, s := range set {
		if s == member {
			found = true
			continue
		}
		next = append(next, s)
	}
	if !found {
		next = append(next, member)
	}
	fields[field] = next
	return json.Marshal(fields)
}

// uniqueKey returns the natural key a collection must keep unique, if any.
// Applications are unique per (company, partner), collaborations per
// application, and chat messages per (collaboration, client key).
func uniqueKey(c Collection, fields map[string]any) (string, bool) {
	str := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	switch c {
	case Applications:
		if str("companyId") == "" || str("partnerId") == "" {
			return "", false
		}
		return strings.Join([]string{str("companyId"), str("partnerId")}, "|"), true
	case Collaborations:
		if str("applicationId") == "" {
			return "", false
		}
		return str("applicationId"), true
	case Messages:
		if str("clientKey") == "" {
			return "", false
		}
		return strings.Join([]string{str("collaborationId"), str("clientKey")}, "|"), true
	}
	return "", false
}

// monotonicClock returns UTC timestamps that strictly increase within the process,
// so creation order survives stores that sort by timestamp.
func monotonicClock() func() time.Time {
	var mu sync.Mutex
	var last time.Time
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now().UTC()
		if !now.After(last) {
			now = last.Add(time.Microsecond)
		}
		last = now
		return now
	}
}
