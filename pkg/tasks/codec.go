package tasks

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// timeFormat is used for every timestamp field stored in the hash.
// RFC3339Nano strings do not sort chronologically in every case, so
// time ordering in the store relies on Unix-second sorted-set scores;
// visibility_deadline also carries a Unix-seconds companion field.
const timeFormat = time.RFC3339Nano

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ToFields flattens a Task into the hash fields persisted under
// task:{id}, matching the field names from spec.md §6.
func (t Task) ToFields() (map[string]string, error) {
	retryJSON, err := json.Marshal(t.RetryConfig)
	if err != nil {
		return nil, errors.Wrap(err, "marshal retry_config")
	}
	f := map[string]string{
		"id":                 t.ID,
		"name":               t.Name,
		"payload":            base64.StdEncoding.EncodeToString(t.Payload),
		"queue":              t.Queue,
		"priority":           strconv.Itoa(int(t.Priority)),
		"status":             string(t.Status),
		"attempts":           strconv.Itoa(t.Attempts),
		"retry_config":       string(retryJSON),
		"retry_max_retries":  strconv.Itoa(t.RetryConfig.MaxRetries),
		"retry_base_delay":   strconv.Itoa(t.RetryConfig.BaseDelaySec),
		"retry_exponential":  boolField(t.RetryConfig.Exponential),
		"retry_max_delay":    strconv.Itoa(t.RetryConfig.MaxDelaySeconds),
		"created_at":         t.CreatedAt.Format(timeFormat),
		"claimed_by":         t.ClaimedBy,
		"error":              t.Error,
	}
	if t.Result != nil {
		f["result"] = base64.StdEncoding.EncodeToString(t.Result)
	}
	if t.ClaimedAt != nil {
		f["claimed_at"] = t.ClaimedAt.Format(timeFormat)
	}
	if t.FinishedAt != nil {
		f["finished_at"] = t.FinishedAt.Format(timeFormat)
	}
	if t.VisibilityDeadline != nil {
		f["visibility_deadline"] = t.VisibilityDeadline.Format(timeFormat)
		f["visibility_deadline_unix"] = strconv.FormatInt(t.VisibilityDeadline.Unix(), 10)
	}
	return f, nil
}

// FromFields reconstructs a Task from a hash field map as returned by
// the store's HGetAll.
func FromFields(f map[string]string) (Task, error) {
	var t Task
	if len(f) == 0 {
		return t, errors.New("empty task record")
	}
	t.ID = f["id"]
	t.Name = f["name"]
	t.Queue = f["queue"]
	t.Status = Status(f["status"])
	t.ClaimedBy = f["claimed_by"]
	t.Error = f["error"]

	if v, ok := f["payload"]; ok && v != "" {
		raw, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return t, errors.Wrap(err, "decode payload")
		}
		t.Payload = raw
	}
	if v, ok := f["result"]; ok && v != "" {
		raw, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return t, errors.Wrap(err, "decode result")
		}
		t.Result = raw
	}
	if v, ok := f["priority"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return t, errors.Wrap(err, "decode priority")
		}
		t.Priority = Priority(n)
	}
	if v, ok := f["attempts"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return t, errors.Wrap(err, "decode attempts")
		}
		t.Attempts = n
	}
	if v, ok := f["retry_config"]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &t.RetryConfig); err != nil {
			return t, errors.Wrap(err, "decode retry_config")
		}
	}
	if v, ok := f["created_at"]; ok && v != "" {
		parsed, err := time.Parse(timeFormat, v)
		if err != nil {
			return t, errors.Wrap(err, "decode created_at")
		}
		t.CreatedAt = parsed
	}
	if v, ok := f["claimed_at"]; ok && v != "" {
		parsed, err := time.Parse(timeFormat, v)
		if err != nil {
			return t, errors.Wrap(err, "decode claimed_at")
		}
		t.ClaimedAt = &parsed
	}
	if v, ok := f["finished_at"]; ok && v != "" {
		parsed, err := time.Parse(timeFormat, v)
		if err != nil {
			return t, errors.Wrap(err, "decode finished_at")
		}
		t.FinishedAt = &parsed
	}
	if v, ok := f["visibility_deadline"]; ok && v != "" {
		parsed, err := time.Parse(timeFormat, v)
		if err != nil {
			return t, errors.Wrap(err, "decode visibility_deadline")
		}
		t.VisibilityDeadline = &parsed
	}
	return t, nil
}
