package rwportal

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-rwportal/middleware/csrf"
)

var TemplateUserKey = LocalsUserKey

var monthNames = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// TemplateHelpers returns the functions and constants every view can use.
//
// In templates:
//
//	{{ format_rupiah(tx.Amount) }}
//	{{ format_date(tx.Date) }}
//	{% if has_role(current_user, "admin", "bendahara") %}
//	{{ markdown(comment.Content)|safe }}
func TemplateHelpers() map[string]any {
	return map[string]any{
		"format_rupiah":  formatRupiahAny,
		"format_grouped": formatGroupedAny,
		"format_date":    formatDateAny,
		"month_name":     MonthName,
		"markdown":       RenderMarkdown,
		"role_label":     roleLabel,
		"has_role":       hasRole,
		"can_manage_users": func(user any) bool {
			u := profileOf(user)
			return u != nil && u.Role.CanManageUsers()
		},
		"can_record_transactions": func(user any) bool {
			u := profileOf(user)
			return u != nil && u.Role.CanRecordTransactions()
		},
		"can_moderate_complaints": func(user any) bool {
			u := profileOf(user)
			return u != nil && u.Role.CanModerateComplaints()
		},
		"roles": GetAllRoles(),
	}
}

// TemplateHelpersWithContext adds the request's user and CSRF values to
// TemplateHelpers.
func TemplateHelpersWithContext(c *fiber.Ctx) map[string]any {
	helpers := TemplateHelpers()

	if user := CurrentUser(c); user != nil {
		helpers[TemplateUserKey] = user
	}

	maps.Copy(helpers, csrf.TemplateHelpers(c, csrf.DefaultContextKey))
	return helpers
}

// ViewContext merges data over the request helpers. Handlers pass the
// result to Render.
func ViewContext(c *fiber.Ctx, data fiber.Map) fiber.Map {
	out := fiber.Map(TemplateHelpersWithContext(c))
	maps.Copy(out, data)
	return out
}

// FormatDate renders t as "2 Januari 2024".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%d %s %d", t.Day(), MonthName(int(t.Month())), t.Year())
}

// MonthName returns the Indonesian name of month m (1-12).
func MonthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return monthNames[m-1]
}

func formatDateAny(v any) string {
	switch t := v.(type) {
	case time.Time:
		return FormatDate(t)
	case *time.Time:
		if t == nil {
			return "-"
		}
		return FormatDate(*t)
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return FormatDate(parsed)
			}
		}
		return t
	}
	return "-"
}

func formatRupiahAny(v any) string {
	n, ok := toInt64(v)
	if !ok {
		return "Rp 0"
	}
	return FormatRupiah(n)
}

func formatGroupedAny(v any) string {
	n, ok := toInt64(v)
	if !ok {
		return ""
	}
	return FormatGrouped(n)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case Amount:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case string:
		a, err := ParseGroupedAmount(n)
		if err != nil {
			i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			return i, err == nil
		}
		return int64(a), true
	}
	return 0, false
}

func roleLabel(v any) string {
	switch r := v.(type) {
	case UserRole:
		return r.Label()
	case string:
		return UserRole(r).Label()
	}
	return ""
}

// profileOf accepts what a template holds for the current user. The
// engine hands a missing or nil user to helpers as an untyped nil.
func profileOf(v any) *UserProfile {
	switch u := v.(type) {
	case *UserProfile:
		return u
	case UserProfile:
		return &u
	}
	return nil
}

func hasRole(v any, roles ...string) bool {
	user := profileOf(v)
	if user == nil {
		return false
	}
	for _, r := range roles {
		if user.Role == UserRole(r) {
			return true
		}
	}
	return false
}
