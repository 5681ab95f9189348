package pages

import (
	"context"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	rwportal "github.com/goliatone/go-rwportal"
	"github.com/goliatone/go-rwportal/api"
)

func (h *Handlers) userList(c *fiber.Ctx, svc *api.Service) *rwportal.ResourceList[api.User] {
	return listOf(h, c, ViewUsers, api.UserCapabilities, svc.Users)
}

func (h *Handlers) UsersIndex(c *fiber.Ctx) error {
	list := h.userList(c, h.service(c))
	params := rwportal.ParseListParams(c.Query, api.UserCapabilities)

	page, err := list.Fetch(c.UserContext(), params)
	if goerrors.Is(err, rwportal.ErrStaleResponse) {
		return stale(c)
	}

	data := fiber.Map{
		"title":  "Manajemen Pengguna",
		"params": params.Normalize(api.UserCapabilities),
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
	return h.render(c, fiber.StatusOK, listTemplate(c, "users/index", "users/_list"), data)
}

func (h *Handlers) UsersNew(c *fiber.Ctx) error {
	in := api.UserInput{Role: string(rwportal.RoleWarga)}
	return h.renderUserForm(c, fiber.StatusOK, "", in, nil, "")
}

func (h *Handlers) UsersCreate(c *fiber.Ctx) error {
	in := api.UserInput{}
	if err := c.BodyParser(&in); err != nil {
		return h.renderUserForm(c, fiber.StatusBadRequest, "", in, nil, rwportal.MsgValidation)
	}

	svc := h.service(c)
	if _, err := svc.CreateUser(c.UserContext(), in); err != nil {
		return h.userFormError(c, "", in, err)
	}

	h.Logger.Info("user created", "username", in.Username, "role", in.Role)
	return seeOther(c, withQuery("/users", h.userList(c, svc).LastParams()))
}

func (h *Handlers) UsersEdit(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	user, err := h.service(c).User(c.UserContext(), id)
	if err != nil {
		return err
	}
	return h.renderUserForm(c, fiber.StatusOK, id, user.Input(), nil, "")
}

// UsersUpdate saves the edit form. An empty password keeps the current one.
func (h *Handlers) UsersUpdate(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	in := api.UserInput{Editing: true}
	if err := c.BodyParser(&in); err != nil {
		return h.renderUserForm(c, fiber.StatusBadRequest, id, in, nil, rwportal.MsgValidation)
	}
	in.Editing = true

	svc := h.service(c)
	if _, err := svc.UpdateUser(c.UserContext(), id, in); err != nil {
		return h.userFormError(c, id, in, err)
	}

	h.Logger.Info("user updated", "id", id)
	return seeOther(c, withQuery("/users", h.userList(c, svc).LastParams()))
}

func (h *Handlers) UsersDelete(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	svc := h.service(c)
	list := h.userList(c, svc)
	deleted := false
	page, err := list.Mutate(c.UserContext(), func(ctx context.Context) error {
		err := svc.DeleteUser(ctx, id)
		deleted = err == nil
		return err
	})
	if !deleted {
		return err
	}

	h.Logger.Info("user deleted", "id", id)
	if err == nil && rwportal.IsHTMX(c) {
		return h.render(c, fiber.StatusOK, "users/_list", fiber.Map{
			"page":   page,
			"params": page.Params,
			"notice": "Pengguna berhasil dihapus",
		})
	}
	return c.Redirect(withQuery("/users", list.LastParams()), fiber.StatusSeeOther)
}

// UsersExport streams the spreadsheet the API produced.
func (h *Handlers) UsersExport(c *fiber.Ctx) error {
	resp, err := h.service(c).ExportUsers(c.UserContext())
	if err != nil {
		return err
	}

	contentType := resp.Header.Get(fiber.HeaderContentType)
	if contentType == "" {
		contentType = api.XLSXContentType
	}
	c.Attachment("users.xlsx")
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(resp.Body)
}

func (h *Handlers) userFormError(c *fiber.Ctx, id rwportal.ID, in api.UserInput, err error) error {
	if rwportal.IsUnauthorized(err) {
		return err
	}
	return h.renderUserForm(c, rwportal.StatusCode(err), id, in, rwportal.FieldErrors(err), rwportal.UserMessage(err))
}

func (h *Handlers) renderUserForm(c *fiber.Ctx, status int, id rwportal.ID, in api.UserInput, fields map[string]string, message string) error {
	in.Password = ""
	action := "/users"
	title := "Tambah Pengguna"
	if id != "" {
		action = "/users/" + id.String()
		title = "Ubah Pengguna"
	}
	return h.render(c, formStatus(c, status), "users/form", fiber.Map{
		"title":   title,
		"action":  action,
		"editing": id != "",
		"record":  in,
		"errors":  fields,
		"error":   message,
	})
}
