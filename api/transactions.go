package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	rwportal "github.com/goliatone/go-rwportal"
)

const DateLayout = "2006-01-02"

// DefaultCategory is preselected on the transaction form.
const DefaultCategory = "Dana Sosial"

// Categories offered on the transaction form.
var Categories = []string{DefaultCategory}

type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

func (t TransactionType) Label() string {
	switch t {
	case TransactionIncome:
		return "Pemasukkan"
	case TransactionExpense:
		return "Pengeluaran"
	default:
		return string(t)
	}
}

func (t TransactionType) IsIncome() bool { return t == TransactionIncome }

type Transaction struct {
	ID          rwportal.ID     `json:"id"`
	Type        TransactionType `json:"type"`
	Amount      rwportal.Amount `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        string          `json:"transaction_date"`
	CreatedAt   string          `json:"created_at"`
}

// Time returns the transaction date, falling back to the creation time.
func (t Transaction) Time() time.Time {
	for _, v := range []string{t.Date, t.CreatedAt} {
		if v == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, DateLayout} {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

// Summary holds the income and expense totals.
type Summary struct {
	Income  rwportal.Amount
	Expense rwportal.Amount
}

func (s Summary) Balance() rwportal.Amount {
	return s.Income - s.Expense
}

// MonthTotal is the income and expense of one calendar month.
type MonthTotal struct {
	Year    int
	Month   int
	Income  rwportal.Amount
	Expense rwportal.Amount
}

func (m MonthTotal) Label() string {
	return rwportal.MonthName(m.Month) + " " + strconv.Itoa(m.Year)
}

func (m MonthTotal) Balance() rwportal.Amount {
	return m.Income - m.Expense
}

// MonthlyTotals groups transactions per month, oldest first. Transactions
// without a usable date are skipped.
func MonthlyTotals(txs []Transaction) []MonthTotal {
	byMonth := map[[2]int]*MonthTotal{}
	for _, tx := range txs {
		t := tx.Time()
		if t.IsZero() {
			continue
		}
		key := [2]int{t.Year(), int(t.Month())}
		m, ok := byMonth[key]
		if !ok {
			m = &MonthTotal{Year: key[0], Month: key[1]}
			byMonth[key] = m
		}
		switch tx.Type {
		case TransactionIncome:
			m.Income += tx.Amount
		case TransactionExpense:
			m.Expense += tx.Amount
		}
	}

	out := make([]MonthTotal, 0, len(byMonth))
	for _, m := range byMonth {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// TransactionInput is the new transaction form.
type TransactionInput struct {
	Type        string `form:"type" json:"type"`
	Amount      string `form:"amount" json:"amount"`
	Description string `form:"description" json:"description"`
	Category    string `form:"category" json:"category"`
	Date        string `form:"transaction_date" json:"transaction_date"`
}

// NewTransactionInput returns the form defaults.
func NewTransactionInput(now time.Time) TransactionInput {
	return TransactionInput{
		Type:     string(TransactionIncome),
		Category: DefaultCategory,
		Date:     now.Format(DateLayout),
	}
}

func (in TransactionInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Type,
			validation.Required.Error("Jenis transaksi wajib diisi"),
			validation.In(string(TransactionIncome), string(TransactionExpense)).Error("Jenis transaksi tidak valid"),
		),
		validation.Field(&in.Amount,
			validation.Required.Error("Jumlah wajib diisi"),
			validation.By(validGroupedAmount),
		),
		validation.Field(&in.Description, validation.Length(0, 255)),
		validation.Field(&in.Category, validation.Required.Error("Kategori wajib diisi")),
		validation.Field(&in.Date,
			validation.Required.Error("Tanggal wajib diisi"),
			validation.Date(DateLayout).Error("Format tanggal tidak valid"),
		),
	)
}

func validGroupedAmount(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	a, err := rwportal.ParseGroupedAmount(s)
	if err != nil || a <= 0 {
		return errors.New("Jumlah harus berupa angka lebih dari 0")
	}
	return nil
}

// Payload is the request body for the create endpoint. The amount is sent
// as an integer number of rupiah.
func (in TransactionInput) Payload() (map[string]any, error) {
	amount, err := rwportal.ParseGroupedAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":             in.Type,
		"amount":           amount.Int64(),
		"description":      strings.TrimSpace(in.Description),
		"category":         in.Category,
		"transaction_date": in.Date,
	}, nil
}

// Transactions lists transactions.
func (s *Service) Transactions(ctx context.Context, params rwportal.ListParams) (rwportal.Page[Transaction], error) {
	return fetchPage[Transaction](ctx, s, s.paths.Transactions, params)
}

// TransactionSummary reads the per type totals. The endpoint answers with
// [{type, total}] where total may be a string.
func (s *Service) TransactionSummary(ctx context.Context) (Summary, error) {
	var rows []struct {
		Type  TransactionType `json:"type"`
		Total rwportal.Amount `json:"total"`
	}
	if err := s.getData(ctx, s.paths.TransactionSummary, nil, &rows); err != nil {
		return Summary{}, err
	}

	summary := Summary{}
	for _, row := range rows {
		switch row.Type {
		case TransactionIncome:
			summary.Income += row.Total
		case TransactionExpense:
			summary.Expense += row.Total
		}
	}
	return summary, nil
}

// CreateTransaction validates in and records it.
func (s *Service) CreateTransaction(ctx context.Context, in TransactionInput) (*Transaction, error) {
	if err := rwportal.ValidateForm(in); err != nil {
		return nil, err
	}

	payload, err := in.Payload()
	if err != nil {
		return nil, rwportal.NewValidationError(map[string]string{"amount": rwportal.ErrInvalidAmount.Error()})
	}

	tx := &Transaction{}
	if err := s.sendData(ctx, http.MethodPost, s.paths.Transactions, payload, tx); err != nil {
		return nil, err
	}
	return tx, nil
}
