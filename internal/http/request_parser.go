// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// path ids, year/month query parameters and JSON bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"oshikakeibo/internal/core"
)

// maxBodyBytes bounds JSON bodies and uploads.
const maxBodyBytes = 10 << 20

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, using now as default.
// Out of range values are rejected rather than silently replaced.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return params, fmt.Errorf("%w: year %q", core.ErrValidation, v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return params, fmt.Errorf("%w: month %q", core.ErrValidation, v)
		}
		params.Month = m
	}

	return params, nil
}

// PathID parses the {id} path segment.
func PathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id %q", core.ErrValidation, raw)
	}
	return id, nil
}

// QueryInt64 returns a non-negative integer query parameter, or def when absent.
func QueryInt64(query url.Values, key string, def int64) (int64, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s %q", core.ErrValidation, key, v)
	}
	return n, nil
}

// DecodeJSON reads a single JSON value from the request body into dst.
// Unknown fields are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", core.ErrValidation)
		}
		return fmt.Errorf("%w: %v", core.ErrParse, err)
	}
	return nil
}

// UploadedFile returns the "file" part of a multipart request, or the raw
// body for any other content type. Bodies over maxBodyBytes fail with an
// *http.MaxBytesError instead of being cut short. The caller closes the result.
func UploadedFile(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, fmt.Errorf("multipart form: %w", tooLarge)
			}
			return nil, fmt.Errorf("%w: multipart form: %v", core.ErrParse, err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: missing file part", core.ErrValidation)
		}
		return f, nil
	}
	return r.Body, nil
}
