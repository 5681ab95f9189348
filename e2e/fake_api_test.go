//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

type account struct {
	password string
	profile  map[string]any
}

// rwAPI keeps transactions and complaints in memory.
type rwAPI struct {
	mu           sync.Mutex
	accounts     map[string]account
	sessions     map[string]string
	transactions []map[string]any
	complaints   []map[string]any
	comments     map[string][]map[string]any
}

func newRWAPI() *httptest.Server {
	api := &rwAPI{
		accounts: map[string]account{
			"sari": {password: "bendahara123", profile: map[string]any{"id": "2", "username": "sari", "name": "Sari", "role": "bendahara"}},
			"budi": {password: "warga123", profile: map[string]any{"id": "4", "username": "budi", "name": "Budi", "role": "warga"}},
		},
		sessions: map[string]string{},
		comments: map[string][]map[string]any{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", api.login)
	mux.HandleFunc("GET /api/auth/profile", api.profile)
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/transactions", api.authed(api.listTransactions))
	mux.HandleFunc("GET /api/transactions/summary", api.authed(api.summary))
	mux.HandleFunc("POST /api/transactions", api.authed(api.createTransaction))
	mux.HandleFunc("GET /api/complaints", api.authed(api.listComplaints))
	mux.HandleFunc("POST /api/complaints", api.authed(api.createComplaint))
	mux.HandleFunc("GET /api/complaints/{id}", api.authed(api.complaint))
	mux.HandleFunc("POST /api/complaints/{id}/vote", api.authed(api.vote))
	mux.HandleFunc("GET /api/complaints/{id}/comments", api.authed(api.listComments))
	mux.HandleFunc("POST /api/complaints/{id}/comments", api.authed(api.addComment))
	return httptest.NewServer(mux)
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *rwAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		a.mu.Lock()
		_, ok := a.sessions[token]
		a.mu.Unlock()
		if !ok {
			reply(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (a *rwAPI) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&creds)

	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.accounts[creds.Username]
	if !ok || acct.password != creds.Password {
		reply(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	token := fmt.Sprintf("tok-%s-%d", creds.Username, len(a.sessions)+1)
	a.sessions[token] = creds.Username
	reply(w, http.StatusOK, map[string]any{"token": token, "user": acct.profile})
}

func (a *rwAPI) profile(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	a.mu.Lock()
	defer a.mu.Unlock()
	username, ok := a.sessions[token]
	if !ok {
		reply(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		return
	}
	reply(w, http.StatusOK, map[string]any{"data": a.accounts[username].profile})
}

func (a *rwAPI) listTransactions(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reply(w, http.StatusOK, map[string]any{
		"data":       a.transactions,
		"pagination": map[string]any{"total": len(a.transactions), "totalPages": 1},
	})
}

func (a *rwAPI) summary(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	totals := map[string]float64{}
	for _, tx := range a.transactions {
		totals[tx["type"].(string)] += tx["amount"].(float64)
	}
	reply(w, http.StatusOK, []map[string]any{
		{"type": "income", "total": totals["income"]},
		{"type": "expense", "total": totals["expense"]},
	})
}

func (a *rwAPI) createTransaction(w http.ResponseWriter, r *http.Request) {
	tx := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&tx)

	a.mu.Lock()
	defer a.mu.Unlock()
	tx["id"] = len(a.transactions) + 1
	a.transactions = append([]map[string]any{tx}, a.transactions...)
	reply(w, http.StatusCreated, map[string]any{"data": tx})
}

func (a *rwAPI) listComplaints(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reply(w, http.StatusOK, map[string]any{
		"data":       a.complaints,
		"pagination": map[string]any{"total": len(a.complaints), "totalPages": 1},
	})
}

func (a *rwAPI) createComplaint(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		reply(w, http.StatusBadRequest, map[string]string{"message": "bad form"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	c := map[string]any{
		"id":          fmt.Sprintf("c%d", len(a.complaints)+1),
		"title":       r.FormValue("title"),
		"description": r.FormValue("description"),
		"location":    r.FormValue("location"),
		"status":      "pending",
		"upvotes":     0,
		"downvotes":   0,
	}
	a.complaints = append(a.complaints, c)
	reply(w, http.StatusCreated, map[string]any{"data": c})
}

func (a *rwAPI) find(id string) map[string]any {
	for _, c := range a.complaints {
		if c["id"] == id {
			return c
		}
	}
	return nil
}

func (a *rwAPI) complaint(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.find(r.PathValue("id"))
	if c == nil {
		reply(w, http.StatusNotFound, map[string]string{"message": "Pengaduan tidak ditemukan"})
		return
	}
	reply(w, http.StatusOK, map[string]any{"data": c})
}

func (a *rwAPI) vote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VoteType string `json:"voteType"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.find(r.PathValue("id"))
	if c == nil {
		reply(w, http.StatusNotFound, map[string]string{"message": "Pengaduan tidak ditemukan"})
		return
	}
	key := "upvotes"
	if body.VoteType == "downvote" {
		key = "downvotes"
	}
	c[key] = c[key].(int) + 1
	c["userVote"] = body.VoteType
	reply(w, http.StatusOK, map[string]any{"upvotes": c["upvotes"], "downvotes": c["downvotes"], "userVote": body.VoteType})
}

func (a *rwAPI) listComments(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reply(w, http.StatusOK, map[string]any{"data": a.comments[r.PathValue("id")]})
}

func (a *rwAPI) addComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	a.mu.Lock()
	defer a.mu.Unlock()
	id := r.PathValue("id")
	comment := map[string]any{
		"id":      fmt.Sprintf("k%d", len(a.comments[id])+1),
		"content": body.Content,
		"user":    map[string]any{"name": "Budi"},
	}
	a.comments[id] = append(a.comments[id], comment)
	reply(w, http.StatusCreated, map[string]any{"data": comment})
}
