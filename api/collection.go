package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	goerrors "github.com/goliatone/go-errors"
	rwportal "github.com/goliatone/go-rwportal"
)

// pageMeta is the pagination block some list endpoints echo back.
type pageMeta struct {
	Page       flexInt `json:"page"`
	Limit      flexInt `json:"limit"`
	Total      flexInt `json:"total"`
	TotalPages flexInt `json:"totalPages"`
	TotalAlt   flexInt `json:"total_pages"`
}

type envelope struct {
	Data       json.RawMessage `json:"data"`
	Items      json.RawMessage `json:"items"`
	Pagination *pageMeta       `json:"pagination"`
	Meta       *pageMeta       `json:"meta"`
	Total      flexInt         `json:"total"`
	TotalPages flexInt         `json:"totalPages"`
}

// flexInt decodes numbers sent either as JSON numbers or strings. Unset
// values stay at -1; anything else that is not a number is an error.
type flexInt struct {
	set bool
	v   int
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid number").
			WithCode(goerrors.CodeBadRequest)
	}
	f.set, f.v = true, int(n)
	return nil
}

func (f flexInt) value() int {
	if !f.set {
		return -1
	}
	return f.v
}

// Count is a counter the API may send as a number or a numeric string.
type Count int

func (c *Count) UnmarshalJSON(data []byte) error {
	var f flexInt
	if err := f.UnmarshalJSON(data); err != nil {
		return err
	}
	*c = Count(max(f.value(), 0))
	return nil
}

// decodeCollection accepts a bare array or an envelope with data/items and
// optional pagination. total and totalPages are -1 when not reported.
func decodeCollection[T any](raw json.RawMessage) (items []T, total, totalPages int, err error) {
	raw = bytes.TrimSpace(raw)
	total, totalPages = -1, -1

	if len(raw) == 0 || string(raw) == "null" {
		return []T{}, total, totalPages, nil
	}

	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, total, totalPages, malformed(err)
		}
		return items, total, totalPages, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, total, totalPages, malformed(err)
	}

	body := env.Data
	if len(bytes.TrimSpace(body)) == 0 {
		body = env.Items
	}
	if len(bytes.TrimSpace(body)) == 0 || string(bytes.TrimSpace(body)) == "null" {
		items = []T{}
	} else if err := json.Unmarshal(body, &items); err != nil {
		return nil, total, totalPages, malformed(err)
	}

	meta := env.Pagination
	if meta == nil {
		meta = env.Meta
	}
	if meta != nil {
		total = meta.Total.value()
		totalPages = meta.TotalPages.value()
		if totalPages < 0 {
			totalPages = meta.TotalAlt.value()
		}
	}
	if total < 0 {
		total = env.Total.value()
	}
	if totalPages < 0 {
		totalPages = env.TotalPages.value()
	}
	return items, total, totalPages, nil
}

// fetchPage loads one page of a collection endpoint.
func fetchPage[T any](ctx context.Context, s *Service, path string, params rwportal.ListParams) (rwportal.Page[T], error) {
	var raw json.RawMessage
	if err := s.client.GetJSON(ctx, path, params.Values(), &raw); err != nil {
		return rwportal.Page[T]{}, err
	}

	items, total, totalPages, err := decodeCollection[T](raw)
	if err != nil {
		return rwportal.Page[T]{}, err
	}
	return rwportal.NewPage(items, params, total, totalPages), nil
}

func malformed(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryInternal, rwportal.MsgServer).
		WithCode(http.StatusBadGateway).
		WithTextCode(rwportal.TextCodeServer)
}
