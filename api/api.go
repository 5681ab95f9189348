// Package api binds the RW REST API resources to the portal client.
package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	rwportal "github.com/goliatone/go-rwportal"
)

// Paths are the API endpoints the portal calls. Paths containing ":id"
// are expanded per record.
type Paths struct {
	Transactions       string `json:"transactions"`
	TransactionSummary string `json:"transaction_summary"`
	Complaints         string `json:"complaints"`
	Complaint          string `json:"complaint"`
	ComplaintVote      string `json:"complaint_vote"`
	ComplaintStatus    string `json:"complaint_status"`
	ComplaintComments  string `json:"complaint_comments"`
	Users              string `json:"users"`
	User               string `json:"user"`
	UserCreate         string `json:"user_create"`
	UsersExport        string `json:"users_export"`
	Health             string `json:"health"`
}

func DefaultPaths() Paths {
	return Paths{
		Transactions:       "/api/transactions",
		TransactionSummary: "/api/transactions/summary",
		Complaints:         "/api/complaints",
		Complaint:          "/api/complaints/:id",
		ComplaintVote:      "/api/complaints/:id/vote",
		ComplaintStatus:    "/api/complaints/:id/status",
		ComplaintComments:  "/api/complaints/:id/comments",
		Users:              "/api/users",
		User:               "/api/user/:id",
		UserCreate:         "/api/user",
		UsersExport:        "/api/users/export",
		Health:             "/api/health",
	}
}

// WithDefaults fills empty paths from DefaultPaths.
func (p Paths) WithDefaults() Paths {
	d := DefaultPaths()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&p.Transactions, d.Transactions)
	fill(&p.TransactionSummary, d.TransactionSummary)
	fill(&p.Complaints, d.Complaints)
	fill(&p.Complaint, d.Complaint)
	fill(&p.ComplaintVote, d.ComplaintVote)
	fill(&p.ComplaintStatus, d.ComplaintStatus)
	fill(&p.ComplaintComments, d.ComplaintComments)
	fill(&p.Users, d.Users)
	fill(&p.User, d.User)
	fill(&p.UserCreate, d.UserCreate)
	fill(&p.UsersExport, d.UsersExport)
	fill(&p.Health, d.Health)
	return p
}

func expand(path string, id rwportal.ID) string {
	return strings.ReplaceAll(path, ":id", id.String())
}

// Service calls the resource endpoints with a session bound client.
type Service struct {
	client *rwportal.Client
	paths  Paths
	logger rwportal.Logger
}

type Option func(*Service) *Service

func WithPaths(p Paths) Option {
	return func(s *Service) *Service {
		s.paths = p.WithDefaults()
		return s
	}
}

func WithLogger(l rwportal.Logger) Option {
	return func(s *Service) *Service {
		if l != nil {
			s.logger = l
		}
		return s
	}
}

func New(client *rwportal.Client, opts ...Option) *Service {
	s := &Service{
		client: client,
		paths:  DefaultPaths(),
		logger: rwportal.NewSlogLogger(nil),
	}
	for _, opt := range opts {
		s = opt(s)
	}
	return s
}

func (s *Service) Paths() Paths { return s.paths }

func (s *Service) getData(ctx context.Context, path string, query url.Values, out any) error {
	var raw json.RawMessage
	if err := s.client.GetJSON(ctx, path, query, &raw); err != nil {
		return err
	}
	return decodeData(raw, out)
}

func (s *Service) sendData(ctx context.Context, method, path string, payload, out any) error {
	var raw json.RawMessage
	if err := s.client.SendJSON(ctx, method, path, payload, &raw); err != nil {
		return err
	}
	return decodeData(raw, out)
}

func decodeData(raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(rwportal.UnwrapData(raw), out); err != nil {
		return malformed(err)
	}
	return nil
}
