package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	rwportal "github.com/goliatone/go-rwportal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := rwportal.NewClient(srv.URL, rwportal.WithRetryAttempts(1))
	require.NoError(t, err)
	return New(client.WithToken("test-token"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDecodeCollectionBareArray(t *testing.T) {
	items, total, totalPages, err := decodeCollection[Transaction](json.RawMessage(`[{"id":1,"type":"income","amount":"50000.00"}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, rwportal.Amount(50000), items[0].Amount)
	assert.Equal(t, -1, total)
	assert.Equal(t, -1, totalPages)
}

func TestDecodeCollectionEnvelope(t *testing.T) {
	raw := json.RawMessage(`{"data":[{"id":"a"},{"id":"b"}],"pagination":{"page":2,"limit":2,"total":"7","totalPages":4}}`)
	items, total, totalPages, err := decodeCollection[Complaint](raw)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 7, total)
	assert.Equal(t, 4, totalPages)
}

func TestDecodeCollectionMetaAndNullData(t *testing.T) {
	items, total, totalPages, err := decodeCollection[User](json.RawMessage(`{"data":null,"meta":{"total":0,"total_pages":0}}`))
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, totalPages)
}

func TestDecodeCollectionMalformed(t *testing.T) {
	_, _, _, err := decodeCollection[User](json.RawMessage(`{"data":"nope"}`))
	require.Error(t, err)
	assert.Equal(t, rwportal.KindServer, rwportal.KindOf(err))
}

func TestTransactionsPartialPageHeuristic(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 1, "type": "income", "amount": 1000},
			{"id": 2, "type": "expense", "amount": "250"},
		})
	})

	params := rwportal.ListParams{Page: 1, PageSize: 2}
	page, err := svc.Transactions(context.Background(), params)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.False(t, page.HasTotal)
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrev)
}

func TestTransactionSummaryAcceptsStringTotals(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transactions/summary", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"type": "income", "total": "150000"},
			{"type": "expense", "total": 50000},
		})
	})

	summary, err := svc.TransactionSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rwportal.Amount(150000), summary.Income)
	assert.Equal(t, rwportal.Amount(50000), summary.Expense)
	assert.Equal(t, rwportal.Amount(100000), summary.Balance())
}

func TestCreateTransactionSendsWholeAmount(t *testing.T) {
	var body map[string]any
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, map[string]any{"id": 9, "type": "income", "amount": 50000})
	})

	tx, err := svc.CreateTransaction(context.Background(), TransactionInput{
		Type:     "income",
		Amount:   "50.000",
		Category: DefaultCategory,
		Date:     "2024-05-01",
	})
	require.NoError(t, err)
	assert.Equal(t, rwportal.ID("9"), tx.ID)
	assert.Equal(t, float64(50000), body["amount"])
	assert.Equal(t, "2024-05-01", body["transaction_date"])
}

func TestCreateTransactionValidationSkipsAPI(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := svc.CreateTransaction(context.Background(), TransactionInput{
		Type:   "gift",
		Amount: "abc",
		Date:   "01/05/2024",
	})
	require.Error(t, err)
	assert.Equal(t, rwportal.KindValidation, rwportal.KindOf(err))

	fields := rwportal.FieldErrors(err)
	assert.Contains(t, fields, "type")
	assert.Contains(t, fields, "amount")
	assert.Contains(t, fields, "category")
	assert.Contains(t, fields, "transaction_date")
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestMonthlyTotals(t *testing.T) {
	txs := []Transaction{
		{Type: TransactionIncome, Amount: 100, Date: "2024-02-10"},
		{Type: TransactionExpense, Amount: 40, Date: "2024-02-11"},
		{Type: TransactionIncome, Amount: 70, CreatedAt: "2024-01-05T10:00:00Z"},
		{Type: TransactionIncome, Amount: 999},
	}

	months := MonthlyTotals(txs)
	require.Len(t, months, 2)
	assert.Equal(t, 1, months[0].Month)
	assert.Equal(t, rwportal.Amount(70), months[0].Income)
	assert.Equal(t, "Februari 2024", months[1].Label())
	assert.Equal(t, rwportal.Amount(60), months[1].Balance())
}

func TestComplaintsDropsRecordsOutsideStatusFilter(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		assert.Equal(t, "me", r.URL.Query().Get("filter"))
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"id": 1, "status": "pending", "upvotes": "3"},
				{"id": 2, "status": "resolved"},
			},
		})
	})

	params := rwportal.ListParams{Page: 1, PageSize: 10, Status: "pending", Scope: rwportal.ScopeMine}
	page, err := svc.Complaints(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, StatusPending, page.Items[0].Status)
	assert.Equal(t, Count(3), page.Items[0].Upvotes)
}

func TestComplaintsStatusFilterPagination(t *testing.T) {
	tests := []struct {
		name     string
		records  []map[string]any
		hasTotal bool
		total    int
		hasNext  bool
	}{
		{
			name:     "filter honoured keeps totals",
			records:  []map[string]any{{"id": 1, "status": "pending"}, {"id": 2, "status": "pending"}},
			hasTotal: true,
			total:    9,
			hasNext:  true,
		},
		{
			name:    "full page with dropped records",
			records: []map[string]any{{"id": 1, "status": "pending"}, {"id": 2, "status": "resolved"}},
			hasNext: true,
		},
		{
			name:    "short page with dropped records",
			records: []map[string]any{{"id": 2, "status": "resolved"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{
					"data":       tt.records,
					"pagination": map[string]any{"page": 1, "limit": 2, "total": 9, "totalPages": 5},
				})
			})

			params := rwportal.ListParams{Page: 1, PageSize: 2, Status: "pending"}
			page, err := svc.Complaints(context.Background(), params)
			require.NoError(t, err)
			for _, c := range page.Items {
				assert.Equal(t, StatusPending, c.Status)
			}
			assert.Equal(t, tt.hasTotal, page.HasTotal)
			assert.Equal(t, tt.total, page.Total)
			assert.Equal(t, tt.hasNext, page.HasNext)
			if !tt.hasTotal {
				assert.Zero(t, page.TotalPages)
			}
			assert.Equal(t, params, page.Params)
		})
	}
}

func TestFlexIntRejectsNonNumbers(t *testing.T) {
	var f flexInt
	require.NoError(t, json.Unmarshal([]byte(`"12"`), &f))
	assert.Equal(t, 12, f.value())

	var unset flexInt
	require.NoError(t, json.Unmarshal([]byte(`null`), &unset))
	assert.Equal(t, -1, unset.value())

	var bad flexInt
	require.Error(t, json.Unmarshal([]byte(`"banyak"`), &bad))
	assert.Equal(t, -1, bad.value())

	_, _, _, err := decodeCollection[Complaint](json.RawMessage(`{"data":[],"pagination":{"total":"banyak"}}`))
	require.Error(t, err)
	assert.Equal(t, rwportal.KindServer, rwportal.KindOf(err))
}

func TestComplaintStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusInProgress))
	assert.True(t, StatusPending.CanTransitionTo(StatusRejected))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusResolved))
	assert.False(t, StatusPending.CanTransitionTo(StatusResolved))
	assert.False(t, StatusResolved.CanTransitionTo(StatusPending))
	assert.True(t, StatusRejected.IsTerminal())
	assert.Empty(t, StatusResolved.Transitions())
	assert.Equal(t, "Diproses", StatusInProgress.Label())
}

func TestUpdateComplaintStatusRejectsInvalidTransition(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/complaints/5/status", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"id": 5, "status": "in_progress"})
	})

	_, err := svc.UpdateComplaintStatus(context.Background(), "5", StatusResolved, StatusPending)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Zero(t, atomic.LoadInt32(&calls))

	c, err := svc.UpdateComplaintStatus(context.Background(), "5", StatusPending, StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, c.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateComplaintForwardsPhoto(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Lampu jalan mati", r.FormValue("title"))
		assert.Equal(t, "Gang 3", r.FormValue("location"))

		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "lampu.jpg", header.Filename)
		assert.Equal(t, []byte("jpeg-bytes"), data)

		writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"id": 11, "status": "pending"}})
	})

	c, err := svc.CreateComplaint(context.Background(), ComplaintInput{
		Title:       "Lampu jalan mati",
		Description: "Sudah tiga hari",
		Location:    "Gang 3",
	}, &rwportal.FilePart{Filename: "lampu.jpg", ContentType: "image/jpeg", Data: []byte("jpeg-bytes")})
	require.NoError(t, err)
	assert.Equal(t, rwportal.ID("11"), c.ID)
}

func TestValidatePhoto(t *testing.T) {
	assert.NoError(t, ValidatePhoto(nil))
	assert.NoError(t, ValidatePhoto(&rwportal.FilePart{ContentType: "image/png", Data: []byte("x")}))

	err := ValidatePhoto(&rwportal.FilePart{ContentType: "application/pdf", Data: []byte("x")})
	assert.Contains(t, rwportal.FieldErrors(err), "photo")

	err = ValidatePhoto(&rwportal.FilePart{ContentType: "image/jpeg", Data: make([]byte, MaxPhotoSize+1)})
	assert.Contains(t, rwportal.FieldErrors(err), "photo")
}

func TestVote(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "upvote", body["voteType"])
		writeJSON(w, http.StatusOK, map[string]any{"upvotes": 4, "downvotes": 1, "userVote": "upvote"})
	})

	res, err := svc.Vote(context.Background(), "3", VoteUp)
	require.NoError(t, err)
	assert.Equal(t, Count(4), res.Upvotes)
	assert.Equal(t, VoteUp, res.UserVote)

	_, err = svc.Vote(context.Background(), "3", VoteType("meh"))
	assert.Equal(t, rwportal.KindValidation, rwportal.KindOf(err))
}

func TestCommentsAndAddComment(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/complaints/3/comments", r.URL.Path)
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusCreated, map[string]any{"id": 2, "content": "Setuju"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "content": "**penting**", "user": map[string]any{"name": "Budi"}}})
	})

	comments, err := svc.Comments(context.Background(), "3")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Budi", comments[0].AuthorName())

	_, err = svc.AddComment(context.Background(), "3", CommentInput{Content: "   "})
	assert.Equal(t, rwportal.KindValidation, rwportal.KindOf(err))

	c, err := svc.AddComment(context.Background(), "3", CommentInput{Content: "Setuju"})
	require.NoError(t, err)
	assert.Equal(t, "Setuju", c.Content)
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("0812-3456-7890")
	require.NoError(t, err)
	assert.Equal(t, "+6281234567890", got)

	_, err = NormalizePhone("12")
	assert.Error(t, err)
}

func TestUserInputPayload(t *testing.T) {
	in := UserInput{Username: "budi", Name: "Budi", Email: "budi@example.com", Role: "warga"}
	payload := in.Payload()
	assert.NotContains(t, payload, "rt_number")
	assert.NotContains(t, payload, "password")
	assert.NotContains(t, payload, "phone")

	in.RTNumber = "03"
	in.Phone = "081234567890"
	payload = in.Payload()
	assert.Equal(t, "03", payload["rt_number"])
	assert.Equal(t, "+6281234567890", payload["phone"])
}

func TestUserInputPasswordRequiredOnCreateOnly(t *testing.T) {
	in := UserInput{Username: "budi", Name: "Budi", Email: "budi@example.com", Role: "warga"}

	err := rwportal.ValidateForm(in)
	assert.Contains(t, rwportal.FieldErrors(err), "password")

	in.Editing = true
	assert.NoError(t, rwportal.ValidateForm(in))

	in.Role = "superuser"
	assert.Contains(t, rwportal.FieldErrors(rwportal.ValidateForm(in)), "role")
}

func TestUserDecodesAlternateFields(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"id":4,"username":"siti","role":"rt","rtNumber":2,"phone_number":"+628111"}`), &u))
	assert.Equal(t, rwportal.ID("2"), u.RTNumber)
	assert.Equal(t, rwportal.RoleRT, u.Role)
	assert.Equal(t, "+628111", u.Phone)
	assert.True(t, u.Input().Editing)
}

func TestUsersCRUD(t *testing.T) {
	var seen []string
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			if r.URL.Path == "/api/users/export" {
				w.Header().Set("Content-Type", XLSXContentType)
				_, _ = w.Write([]byte("PK-xlsx"))
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"id": 7, "username": "budi"})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"id": 7, "username": "budi"})
		}
	})
	ctx := context.Background()
	in := UserInput{Username: "budi", Name: "Budi", Email: "budi@example.com", Role: "warga", Password: "rahasia1"}

	_, err := svc.CreateUser(ctx, in)
	require.NoError(t, err)
	_, err = svc.UpdateUser(ctx, "7", in)
	require.NoError(t, err)
	u, err := svc.User(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "budi", u.Username)
	require.NoError(t, svc.DeleteUser(ctx, "7"))

	resp, err := svc.ExportUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK-xlsx"), resp.Body)

	assert.Equal(t, []string{
		"POST /api/user",
		"PUT /api/user/7",
		"GET /api/user/7",
		"DELETE /api/user/7",
		"GET /api/users/export",
	}, seen)
}

func TestAPIErrorsAreClassified(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{"message": "nope"})
	})

	_, err := svc.Users(context.Background(), rwportal.ListParams{Page: 1, PageSize: 10})
	assert.True(t, rwportal.IsForbidden(err))
}

func TestPathsWithDefaults(t *testing.T) {
	p := Paths{Users: "/v2/users"}.WithDefaults()
	assert.Equal(t, "/v2/users", p.Users)
	assert.Equal(t, "/api/complaints/:id/vote", p.ComplaintVote)
	assert.Equal(t, "/api/complaints/42", expand(p.Complaint, "42"))
}
