package pages

import (
	"fmt"

	rwportal "github.com/goliatone/go-rwportal"
	"github.com/goliatone/go-rwportal/api"
)

// Helpers returns the template functions for the API resources, on top
// of rwportal.TemplateHelpers.
//
//	<span class="badge {{ c.Status }}">{{ status_label(c.Status) }}</span>
//	<a href="{{ page_url("/complaints", page.Params, page.Page + 1) }}">
//	{% if same(params.Status, s) %}selected{% endif %}
func Helpers() map[string]any {
	return map[string]any{
		"status_label": func(s api.ComplaintStatus) string { return s.Label() },
		"transitions":  func(s api.ComplaintStatus) []api.ComplaintStatus { return s.Transitions() },
		"statuses":     api.ComplaintStatuses(),
		"tx_label":     func(t api.TransactionType) string { return t.Label() },
		"categories":   api.Categories,
		"vote_up":      api.VoteUp,
		"vote_down":    api.VoteDown,
		"page_url":     pageURL,
		"percent":      percent,
		"same":         same,
	}
}

// same compares values by their text, so a typed status matches the
// string it came from.
func same(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func pageURL(path string, params rwportal.ListParams, n int) string {
	return withQuery(path, params.WithPage(n))
}

// percent is v as a share of peak, for chart bars.
func percent(v, peak rwportal.Amount) int {
	if peak <= 0 || v <= 0 {
		return 0
	}
	return int(min(100, v*100/peak))
}
