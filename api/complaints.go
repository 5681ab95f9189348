package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	rwportal "github.com/goliatone/go-rwportal"
)

// ComplaintCapabilities are the list features the complaints endpoint serves.
const ComplaintCapabilities = rwportal.CapAll

const MaxPhotoSize = 5 << 20

// PhotoContentTypes are the accepted complaint photo formats.
var PhotoContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

type ComplaintStatus string

const (
	StatusPending    ComplaintStatus = "pending"
	StatusInProgress ComplaintStatus = "in_progress"
	StatusResolved   ComplaintStatus = "resolved"
	StatusRejected   ComplaintStatus = "rejected"
)

var complaintTransitions = map[ComplaintStatus][]ComplaintStatus{
	StatusPending:    {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusResolved, StatusRejected},
}

// ComplaintStatuses lists every status in workflow order.
func ComplaintStatuses() []ComplaintStatus {
	return []ComplaintStatus{StatusPending, StatusInProgress, StatusResolved, StatusRejected}
}

func (s ComplaintStatus) IsValid() bool {
	return slices.Contains(ComplaintStatuses(), s)
}

func (s ComplaintStatus) Label() string {
	switch s {
	case StatusPending:
		return "Menunggu"
	case StatusInProgress:
		return "Diproses"
	case StatusResolved:
		return "Selesai"
	case StatusRejected:
		return "Ditolak"
	default:
		return string(s)
	}
}

// IsTerminal reports a status nothing can move out of.
func (s ComplaintStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// Transitions returns the statuses s may move to.
func (s ComplaintStatus) Transitions() []ComplaintStatus {
	return slices.Clone(complaintTransitions[s])
}

func (s ComplaintStatus) CanTransitionTo(next ComplaintStatus) bool {
	return slices.Contains(complaintTransitions[s], next)
}

type VoteType string

const (
	VoteUp   VoteType = "upvote"
	VoteDown VoteType = "downvote"
)

func (v VoteType) IsValid() bool {
	return v == VoteUp || v == VoteDown
}

type Author struct {
	ID     rwportal.ID `json:"id"`
	Name   string      `json:"name"`
	Avatar string      `json:"avatar"`
}

type Complaint struct {
	ID            rwportal.ID     `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Location      string          `json:"location"`
	Category      string          `json:"category"`
	Status        ComplaintStatus `json:"status"`
	PhotoURL      string          `json:"photo_url"`
	ReporterName  string          `json:"reporter_name"`
	FormattedDate string          `json:"formatted_date"`
	CreatedAt     string          `json:"created_at"`
	ViewCount     Count           `json:"view_count"`
	Upvotes       Count           `json:"upvotes"`
	Downvotes     Count           `json:"downvotes"`
	UserVote      VoteType        `json:"userVote"`
	User          *Author         `json:"user"`
}

// Reporter is the name shown for the author of the complaint.
func (c Complaint) Reporter() string {
	switch {
	case c.ReporterName != "":
		return c.ReporterName
	case c.User != nil && c.User.Name != "":
		return c.User.Name
	default:
		return "Anonim"
	}
}

type Comment struct {
	ID        rwportal.ID `json:"id"`
	Content   string      `json:"content"`
	CreatedAt string      `json:"created_at"`
	User      *Author     `json:"user"`
}

func (c Comment) AuthorName() string {
	if c.User != nil && c.User.Name != "" {
		return c.User.Name
	}
	return "Anonim"
}

type VoteResult struct {
	Upvotes   Count    `json:"upvotes"`
	Downvotes Count    `json:"downvotes"`
	UserVote  VoteType `json:"userVote"`
}

// ComplaintInput is the new complaint form. The photo travels separately.
type ComplaintInput struct {
	Title       string `form:"title" json:"title"`
	Description string `form:"description" json:"description"`
	Location    string `form:"location" json:"location"`
}

func (in ComplaintInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title,
			validation.Required.Error("Judul wajib diisi"),
			validation.Length(3, 200),
		),
		validation.Field(&in.Description,
			validation.Required.Error("Deskripsi wajib diisi"),
			validation.Length(0, 5000),
		),
		validation.Field(&in.Location, validation.Length(0, 255)),
	)
}

// CommentInput is the comment form.
type CommentInput struct {
	Content string `form:"content" json:"content"`
}

func (in CommentInput) Validate() error {
	in.Content = strings.TrimSpace(in.Content)
	return validation.ValidateStruct(&in,
		validation.Field(&in.Content,
			validation.Required.Error("Komentar tidak boleh kosong"),
			validation.Length(0, 2000),
		),
	)
}

// ValidatePhoto checks an uploaded photo before it is forwarded.
func ValidatePhoto(photo *rwportal.FilePart) error {
	if photo == nil {
		return nil
	}
	if len(photo.Data) > MaxPhotoSize {
		return rwportal.NewValidationError(map[string]string{"photo": "Ukuran foto maksimal 5 MB"})
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.Split(photo.ContentType, ";")[0]))
	if !slices.Contains(PhotoContentTypes, contentType) {
		return rwportal.NewValidationError(map[string]string{"photo": "Format foto harus JPG, PNG, atau WEBP"})
	}
	return nil
}

// Complaints lists complaints. When filtering by status, records with a
// different status are dropped in case the API ignored the filter. The
// API's totals then count records the page no longer shows, so they are
// discarded and the next page is assumed to exist when the API returned
// a full page.
func (s *Service) Complaints(ctx context.Context, params rwportal.ListParams) (rwportal.Page[Complaint], error) {
	page, err := fetchPage[Complaint](ctx, s, s.paths.Complaints, params)
	if err != nil || params.Status == "" {
		return page, err
	}

	fetched := len(page.Items)
	kept := make([]Complaint, 0, fetched)
	for _, c := range page.Items {
		if string(c.Status) == params.Status {
			kept = append(kept, c)
		}
	}
	dropped := fetched - len(kept)
	if dropped == 0 {
		return page, nil
	}

	s.logger.Warn("complaint list ignored status filter", "status", params.Status, "dropped", dropped)
	filtered := rwportal.NewPage(kept, params, -1, -1)
	if params.Page > 0 {
		filtered.HasNext = fetched >= params.PageSize
	}
	return filtered, nil
}

func (s *Service) Complaint(ctx context.Context, id rwportal.ID) (*Complaint, error) {
	c := &Complaint{}
	if err := s.getData(ctx, expand(s.paths.Complaint, id), nil, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CreateComplaint submits the form as multipart, forwarding the photo when
// one was attached.
func (s *Service) CreateComplaint(ctx context.Context, in ComplaintInput, photo *rwportal.FilePart) (*Complaint, error) {
	if err := rwportal.ValidateForm(in); err != nil {
		return nil, err
	}
	if err := ValidatePhoto(photo); err != nil {
		return nil, err
	}

	fields := map[string]string{
		"title":       strings.TrimSpace(in.Title),
		"description": strings.TrimSpace(in.Description),
		"location":    strings.TrimSpace(in.Location),
	}

	var files []rwportal.FilePart
	if photo != nil {
		p := *photo
		p.Field = "photo"
		files = append(files, p)
	}

	var raw json.RawMessage
	if err := s.client.SendMultipart(ctx, http.MethodPost, s.paths.Complaints, fields, files, &raw); err != nil {
		return nil, err
	}
	c := &Complaint{}
	if err := decodeData(raw, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Vote(ctx context.Context, id rwportal.ID, vote VoteType) (*VoteResult, error) {
	if !vote.IsValid() {
		return nil, rwportal.NewValidationError(map[string]string{"voteType": "Jenis suara tidak valid"})
	}
	result := &VoteResult{}
	err := s.sendData(ctx, http.MethodPost, expand(s.paths.ComplaintVote, id), map[string]string{
		"voteType": string(vote),
	}, result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ErrInvalidTransition is returned for a status change the workflow does not allow.
var ErrInvalidTransition = goerrors.New("Perubahan status tidak diizinkan", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode("INVALID_TRANSITION")

// UpdateComplaintStatus moves a complaint from current to next. The
// transition is checked before the API is called.
func (s *Service) UpdateComplaintStatus(ctx context.Context, id rwportal.ID, current, next ComplaintStatus) (*Complaint, error) {
	if !current.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}
	c := &Complaint{}
	err := s.sendData(ctx, http.MethodPatch, expand(s.paths.ComplaintStatus, id), map[string]string{
		"status": string(next),
	}, c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Comments(ctx context.Context, id rwportal.ID) ([]Comment, error) {
	var raw json.RawMessage
	if err := s.client.GetJSON(ctx, expand(s.paths.ComplaintComments, id), nil, &raw); err != nil {
		return nil, err
	}
	comments, _, _, err := decodeCollection[Comment](raw)
	if err != nil {
		return nil, err
	}
	return comments, nil
}

func (s *Service) AddComment(ctx context.Context, id rwportal.ID, in CommentInput) (*Comment, error) {
	in.Content = strings.TrimSpace(in.Content)
	if err := rwportal.ValidateForm(in); err != nil {
		return nil, err
	}
	c := &Comment{}
	if err := s.sendData(ctx, http.MethodPost, expand(s.paths.ComplaintComments, id), in, c); err != nil {
		return nil, err
	}
	return c, nil
}
