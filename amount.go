package rwportal

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Amount is a whole rupiah value.
type Amount int64

// ErrInvalidAmount is returned for amounts that are not whole rupiah values.
var ErrInvalidAmount = goerrors.New("amount must be a whole number", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode("INVALID_AMOUNT")

// ParseGroupedAmount reads an amount typed with thousands separators,
// "50.000" or "50,000" or "Rp 50.000", and returns 50000.
func ParseGroupedAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "Rp"), "rp")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == ',' || r == ' ' || r == '\u00a0':
		default:
			return 0, ErrInvalidAmount
		}
	}

	digits := b.String()
	if digits == "" {
		return 0, ErrInvalidAmount
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return Amount(n), nil
}

// FormatGrouped renders n with "." as the thousands separator: 50000 -> "50.000".
func FormatGrouped(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}

	digits := strconv.FormatInt(n, 10)
	groups := make([]string, 0, len(digits)/3+1)
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)
	return sign + strings.Join(groups, ".")
}

// FormatRupiah renders n as "Rp 50.000".
func FormatRupiah(n int64) string {
	return "Rp " + FormatGrouped(n)
}

func (a Amount) Int64() int64    { return int64(a) }
func (a Amount) Grouped() string { return FormatGrouped(int64(a)) }
func (a Amount) Rupiah() string  { return FormatRupiah(int64(a)) }
func (a Amount) String() string  { return a.Grouped() }

// UnmarshalJSON accepts 50000, "50000" and "50000.00" since the API sends
// numeric columns as strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
		if len(data) == 0 {
			*a = 0
			return nil
		}
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid amount").
			WithCode(goerrors.CodeBadRequest)
	}
	*a = Amount(math.Round(f))
	return nil
}
