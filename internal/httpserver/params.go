package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pastebox/internal/lifecycle"
)

// maxTTLSeconds keeps expiry instants inside the int64 nanosecond range the
// stores persist.
const maxTTLSeconds = 100 * 365 * 24 * 60 * 60

// maxViewsLimit fits the 32-bit integer columns some stores use.
const maxViewsLimit = math.MaxInt32

type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

type createRequest struct {
	Content    *string         `json:"content"`
	TTLSeconds json.RawMessage `json:"ttl_seconds"`
	MaxViews   json.RawMessage `json:"max_views"`
}

func decodeCreateJSON(body io.Reader, maxBytes int) (lifecycle.CreateParams, error) {
	var req createRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "content" {
			return lifecycle.CreateParams{}, invalid("content must be a string")
		}
		return lifecycle.CreateParams{}, err
	}
	if req.Content == nil {
		return lifecycle.CreateParams{}, invalid("content is required and must be a non-empty string")
	}

	ttl, err := jsonPositiveInt(req.TTLSeconds, "ttl_seconds")
	if err != nil {
		return lifecycle.CreateParams{}, err
	}
	maxViews, err := jsonPositiveInt(req.MaxViews, "max_views")
	if err != nil {
		return lifecycle.CreateParams{}, err
	}
	return buildParams(*req.Content, ttl, maxViews, maxBytes)
}

func decodeCreateForm(form url.Values, maxBytes int) (lifecycle.CreateParams, error) {
	if _, ok := form["content"]; !ok {
		return lifecycle.CreateParams{}, invalid("content is required and must be a non-empty string")
	}
	ttl, err := formPositiveInt(form.Get("ttl_seconds"), "ttl_seconds")
	if err != nil {
		return lifecycle.CreateParams{}, err
	}
	maxViews, err := formPositiveInt(form.Get("max_views"), "max_views")
	if err != nil {
		return lifecycle.CreateParams{}, err
	}
	return buildParams(form.Get("content"), ttl, maxViews, maxBytes)
}

func buildParams(content string, ttlSeconds, maxViews, maxBytes int) (lifecycle.CreateParams, error) {
	if strings.TrimSpace(content) == "" {
		return lifecycle.CreateParams{}, invalid("content cannot be empty")
	}
	if len(content) > maxBytes {
		return lifecycle.CreateParams{}, invalid("content exceeds %d byte limit", maxBytes)
	}
	if ttlSeconds > maxTTLSeconds {
		return lifecycle.CreateParams{}, invalid("ttl_seconds must be at most %d", maxTTLSeconds)
	}
	if maxViews > maxViewsLimit {
		return lifecycle.CreateParams{}, invalid("max_views must be at most %d", maxViewsLimit)
	}
	return lifecycle.CreateParams{
		Content:  content,
		TTL:      time.Duration(ttlSeconds) * time.Second,
		MaxViews: maxViews,
	}, nil
}

// jsonPositiveInt accepts an integer literal or an integer string. Absent and
// null mean "not set" and yield 0.
func jsonPositiveInt(raw json.RawMessage, field string) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, invalid("%s must be an integer >= 1", field)
		}
	}
	return positiveInt(text, field)
}

// formPositiveInt treats an empty form field as not set.
func formPositiveInt(v, field string) (int, error) {
	if strings.TrimSpace(v) == "" {
		return 0, nil
	}
	return positiveInt(v, field)
}

func positiveInt(v, field string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 1 || n > int64(maxInt) {
		return 0, invalid("%s must be an integer >= 1", field)
	}
	return int(n), nil
}

const maxInt = int(^uint(0) >> 1)
