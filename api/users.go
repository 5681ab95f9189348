package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	rwportal "github.com/goliatone/go-rwportal"
	"github.com/nyaruka/phonenumbers"
)

// PhoneRegion is the default region for numbers typed without a country code.
const PhoneRegion = "ID"

const UserCapabilities = rwportal.CapPaginate | rwportal.CapSearch

// XLSXContentType is the content type of the users export.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type User struct {
	ID       rwportal.ID       `json:"id"`
	Username string            `json:"username"`
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Role     rwportal.UserRole `json:"role"`
	RTNumber rwportal.ID       `json:"rt_number"`
	Phone    string            `json:"phone"`
}

// UnmarshalJSON also accepts rtNumber, which the single user endpoint uses.
func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	var aux struct {
		alias
		RTNumberAlt rwportal.ID `json:"rtNumber"`
		PhoneAlt    string      `json:"phone_number"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.alias)
	if u.RTNumber == "" {
		u.RTNumber = aux.RTNumberAlt
	}
	if u.Phone == "" {
		u.Phone = aux.PhoneAlt
	}
	return nil
}

// Input returns the edit form prefilled from u.
func (u User) Input() UserInput {
	return UserInput{
		Username: u.Username,
		Name:     u.Name,
		Email:    u.Email,
		Role:     string(u.Role),
		RTNumber: u.RTNumber.String(),
		Phone:    u.Phone,
		Editing:  true,
	}
}

// UserInput is the create and edit user form. The password is required
// only when creating.
type UserInput struct {
	Username string `form:"username" json:"username"`
	Name     string `form:"name" json:"name"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
	Role     string `form:"role" json:"role"`
	RTNumber string `form:"rt_number" json:"rt_number"`
	Phone    string `form:"phone" json:"phone"`

	Editing bool `form:"-" json:"-"`
}

func (in UserInput) Validate() error {
	roles := make([]interface{}, 0, 5)
	for _, r := range rwportal.GetAllRoles() {
		roles = append(roles, string(r))
	}

	return validation.ValidateStruct(&in,
		validation.Field(&in.Username,
			validation.Required.Error("Username wajib diisi"),
			validation.Length(3, 50),
		),
		validation.Field(&in.Name,
			validation.Required.Error("Nama wajib diisi"),
			validation.Length(1, 200),
		),
		validation.Field(&in.Email,
			validation.Required.Error("Email wajib diisi"),
			is.Email.Error("Format email tidak valid"),
		),
		validation.Field(&in.Password,
			validation.By(requiredUnless(in.Editing, "Password wajib diisi")),
			validation.Length(6, 100),
		),
		validation.Field(&in.Role,
			validation.Required.Error("Role wajib dipilih"),
			validation.In(roles...).Error("Role tidak valid"),
		),
		validation.Field(&in.RTNumber, is.Digit.Error("Nomor RT harus berupa angka")),
		validation.Field(&in.Phone, validation.By(validPhone)),
	)
}

func requiredUnless(skip bool, msg string) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(string); !skip && s == "" {
			return errors.New(msg)
		}
		return nil
	}
}

func validPhone(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := NormalizePhone(s); err != nil {
		return errors.New("Nomor telepon tidak valid")
	}
	return nil
}

// NormalizePhone parses a number typed in local or international form and
// returns it in E.164, "0812 3456 7890" -> "+6281234567890".
func NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), PhoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Payload is the request body. Empty optional fields are omitted, and on
// edit an empty password keeps the current one.
func (in UserInput) Payload() map[string]any {
	payload := map[string]any{
		"username": strings.TrimSpace(in.Username),
		"name":     strings.TrimSpace(in.Name),
		"email":    strings.TrimSpace(in.Email),
		"role":     in.Role,
	}
	if in.Password != "" {
		payload["password"] = in.Password
	}
	if rt := strings.TrimSpace(in.RTNumber); rt != "" {
		payload["rt_number"] = rt
	}
	if phone, err := NormalizePhone(in.Phone); err == nil {
		payload["phone"] = phone
	}
	return payload
}

func (s *Service) Users(ctx context.Context, params rwportal.ListParams) (rwportal.Page[User], error) {
	return fetchPage[User](ctx, s, s.paths.Users, params)
}

func (s *Service) User(ctx context.Context, id rwportal.ID) (*User, error) {
	u := &User{}
	if err := s.getData(ctx, expand(s.paths.User, id), nil, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) CreateUser(ctx context.Context, in UserInput) (*User, error) {
	in.Editing = false
	if err := rwportal.ValidateForm(in); err != nil {
		return nil, err
	}
	u := &User{}
	if err := s.sendData(ctx, http.MethodPost, s.paths.UserCreate, in.Payload(), u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) UpdateUser(ctx context.Context, id rwportal.ID, in UserInput) (*User, error) {
	in.Editing = true
	if err := rwportal.ValidateForm(in); err != nil {
		return nil, err
	}
	u := &User{}
	if err := s.sendData(ctx, http.MethodPut, expand(s.paths.User, id), in.Payload(), u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, id rwportal.ID) error {
	_, err := s.client.Do(ctx, rwportal.Request{
		Method: http.MethodDelete,
		Path:   expand(s.paths.User, id),
	})
	return err
}

// ExportUsers downloads the users spreadsheet as the API produced it.
func (s *Service) ExportUsers(ctx context.Context) (*rwportal.Response, error) {
	return s.client.Download(ctx, s.paths.UsersExport, XLSXContentType)
}

// Ping reports whether the API answers.
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, s.paths.Health)
}
