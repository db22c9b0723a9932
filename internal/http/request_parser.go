package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"
	"tally/internal/storage"
)

const userIDHeader = "X-User-ID"

var errMissingUserHeader = errors.New("missing " + userIDHeader + " header")

// requestUser reads the caller identity from the request header.
func requestUser(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(userIDHeader))
	if id == "" {
		return "", errMissingUserHeader
	}
	return id, nil
}

// decodeBody parses a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseDate accepts RFC 3339 or plain dates.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return t.UTC(), nil
}

// parseTransactionFilter builds the list query from URL parameters.
// Supported: ledger_id, search, tag_id, type, owner_id, from, to, sort
// (asc|desc), page, limit.
func parseTransactionFilter(r *http.Request) (storage.TransactionFilter, error) {
	q := r.URL.Query()
	f := storage.TransactionFilter{
		LedgerID: strings.TrimSpace(q.Get("ledger_id")),
		Search:   strings.TrimSpace(q.Get("search")),
		TagID:    strings.TrimSpace(q.Get("tag_id")),
		OwnerID:  strings.TrimSpace(q.Get("owner_id")),
		Type:     core.TransactionType(strings.TrimSpace(q.Get("type"))),
		SortDesc: strings.EqualFold(q.Get("sort"), "desc"),
	}

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return storage.TransactionFilter{}, err
		}
		f.From = t
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return storage.TransactionFilter{}, err
		}
		f.To = t
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return storage.TransactionFilter{}, fmt.Errorf("invalid page %q", v)
		}
		f.Page = page
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return storage.TransactionFilter{}, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = limit
	}
	return f, nil
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
