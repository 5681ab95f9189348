package pages

import (
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	rwportal "github.com/goliatone/go-rwportal"
	"github.com/goliatone/go-rwportal/api"
	"golang.org/x/sync/errgroup"
)

func (h *Handlers) complaintList(c *fiber.Ctx, svc *api.Service) *rwportal.ResourceList[api.Complaint] {
	return listOf(h, c, ViewComplaints, api.ComplaintCapabilities, svc.Complaints)
}

// ComplaintsIndex lists complaints with paging, sorting, the status
// filter, search and the "mine" scope.
func (h *Handlers) ComplaintsIndex(c *fiber.Ctx) error {
	list := h.complaintList(c, h.service(c))
	params := rwportal.ParseListParams(c.Query, api.ComplaintCapabilities)

	page, err := list.Fetch(c.UserContext(), params)
	if goerrors.Is(err, rwportal.ErrStaleResponse) {
		return stale(c)
	}

	data := fiber.Map{
		"title":  "Pengaduan",
		"params": params.Normalize(api.ComplaintCapabilities),
	}
	if err != nil {
		msg, passthrough := pageError(err)
		if passthrough != nil {
			return passthrough
		}
		data["error"] = msg
	} else {
		data["page"] = page
	}

	return h.render(c, fiber.StatusOK, listTemplate(c, "complaints/index", "complaints/_list"), data)
}

func (h *Handlers) ComplaintsNew(c *fiber.Ctx) error {
	return h.renderComplaintForm(c, fiber.StatusOK, api.ComplaintInput{}, nil, "")
}

// ComplaintsCreate forwards the form and the optional photo to the API.
func (h *Handlers) ComplaintsCreate(c *fiber.Ctx) error {
	in := api.ComplaintInput{}
	if err := c.BodyParser(&in); err != nil {
		h.Logger.Warn("complaint form parse failed", "error", err)
		return h.renderComplaintForm(c, fiber.StatusBadRequest, in, nil, rwportal.MsgValidation)
	}

	photo, err := readPhoto(c)
	if err != nil {
		return h.renderComplaintForm(c, rwportal.StatusCode(err), in, rwportal.FieldErrors(err), rwportal.UserMessage(err))
	}

	created, err := h.service(c).CreateComplaint(c.UserContext(), in, photo)
	if err != nil {
		if rwportal.IsUnauthorized(err) {
			return err
		}
		return h.renderComplaintForm(c, rwportal.StatusCode(err), in, rwportal.FieldErrors(err), rwportal.UserMessage(err))
	}

	h.Logger.Info("complaint submitted", "id", created.ID, "photo", photo != nil)
	if created.ID == "" {
		return seeOther(c, "/complaints")
	}
	return seeOther(c, "/complaints/"+created.ID.String())
}

// readPhoto loads the optional "photo" upload. Oversized files are
// rejected before they are read.
func readPhoto(c *fiber.Ctx) (*rwportal.FilePart, error) {
	header, err := c.FormFile("photo")
	if err != nil || header == nil || header.Size == 0 {
		return nil, nil
	}
	if header.Size > api.MaxPhotoSize {
		return nil, rwportal.NewValidationError(map[string]string{"photo": "Ukuran foto maksimal 5 MB"})
	}

	data, err := readUpload(header)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, rwportal.MsgValidation).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(rwportal.TextCodeBadRequest)
	}

	return &rwportal.FilePart{
		Field:       "photo",
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, api.MaxPhotoSize+1))
}

func (h *Handlers) renderComplaintForm(c *fiber.Ctx, status int, in api.ComplaintInput, fields map[string]string, message string) error {
	return h.render(c, formStatus(c, status), "complaints/new", fiber.Map{
		"title":  "Buat Pengaduan",
		"record": in,
		"errors": fields,
		"error":  message,
	})
}

// ComplaintsShow renders a complaint with its comments.
func (h *Handlers) ComplaintsShow(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	return h.renderDetail(c, h.service(c), id, fiber.StatusOK, nil)
}

// renderDetail fetches the complaint and its comments concurrently and
// renders the detail page with extra merged in.
func (h *Handlers) renderDetail(c *fiber.Ctx, svc *api.Service, id rwportal.ID, status int, extra fiber.Map) error {
	var (
		complaint *api.Complaint
		comments  []api.Comment
	)

	g, ctx := errgroup.WithContext(c.UserContext())
	g.Go(func() error {
		var err error
		complaint, err = svc.Complaint(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		comments, err = svc.Comments(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		if rwportal.IsUnauthorized(err) || rwportal.IsNotFound(err) || rwportal.IsForbidden(err) {
			return err
		}
		return h.render(c, fiber.StatusOK, "complaints/detail", fiber.Map{
			"title": "Detail Pengaduan",
			"error": rwportal.UserMessage(err),
		})
	}

	data := fiber.Map{
		"title":     complaint.Title,
		"complaint": complaint,
		"comments":  comments,
		"comment":   api.CommentInput{},
	}
	for k, v := range extra {
		data[k] = v
	}
	return h.render(c, status, "complaints/detail", data)
}

// ComplaintsVote records an upvote or downvote. htmx gets the vote
// counter back.
func (h *Handlers) ComplaintsVote(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	vote := api.VoteType(c.FormValue("voteType"))
	result, err := h.service(c).Vote(c.UserContext(), id, vote)
	if err != nil {
		if rwportal.IsUnauthorized(err) || !rwportal.IsHTMX(c) {
			return err
		}
		return h.render(c, fiber.StatusOK, "complaints/_votes", fiber.Map{
			"id":    id,
			"error": rwportal.UserMessage(err),
		})
	}

	if !rwportal.IsHTMX(c) {
		return c.Redirect("/complaints/"+id.String(), fiber.StatusSeeOther)
	}
	return h.render(c, fiber.StatusOK, "complaints/_votes", fiber.Map{
		"id":    id,
		"votes": result,
	})
}

// ComplaintsComment adds a comment. An invalid comment re-renders the
// detail page with the message under the field.
func (h *Handlers) ComplaintsComment(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	in := api.CommentInput{Content: c.FormValue("content")}
	svc := h.service(c)

	if _, err := svc.AddComment(c.UserContext(), id, in); err != nil {
		if rwportal.IsUnauthorized(err) {
			return err
		}
		return h.renderDetail(c, svc, id, formStatus(c, rwportal.StatusCode(err)), fiber.Map{
			"comment":        in,
			"comment_errors": rwportal.FieldErrors(err),
			"comment_error":  rwportal.UserMessage(err),
		})
	}

	if rwportal.IsHTMX(c) {
		comments, err := svc.Comments(c.UserContext(), id)
		if err != nil {
			return err
		}
		return h.render(c, fiber.StatusOK, "complaints/_comments", fiber.Map{
			"id":       id,
			"comments": comments,
			"comment":  api.CommentInput{},
		})
	}
	return c.Redirect("/complaints/"+id.String()+"#komentar", fiber.StatusSeeOther)
}

// ComplaintsStatus moves the complaint along its workflow. The current
// status is read from the API so the transition check sees fresh data.
func (h *Handlers) ComplaintsStatus(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	svc := h.service(c)
	current, err := svc.Complaint(c.UserContext(), id)
	if err != nil {
		return err
	}

	next := api.ComplaintStatus(c.FormValue("status"))
	if _, err := svc.UpdateComplaintStatus(c.UserContext(), id, current.Status, next); err != nil {
		if rwportal.IsUnauthorized(err) {
			return err
		}
		msg := rwportal.UserMessage(err)
		if goerrors.Is(err, api.ErrInvalidTransition) {
			msg = api.ErrInvalidTransition.Message
		}
		h.Logger.Info("complaint status change refused", "id", id, "from", current.Status, "to", next, "error", err)
		return h.renderDetail(c, svc, id, formStatus(c, rwportal.StatusCode(err)), fiber.Map{
			"status_error": msg,
		})
	}

	h.Logger.Info("complaint status changed", "id", id, "from", current.Status, "to", next)
	return seeOther(c, "/complaints/"+id.String())
}
