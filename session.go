package rwportal

import (
	"bytes"
	"encoding/json"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Status is where a session is in its lifecycle.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusVerifying       Status = "verifying"
	StatusAuthenticated   Status = "authenticated"
)

// Session is the portal's belief about who is logged in.
// User is set only when Status is StatusAuthenticated.
type Session struct {
	Token  string       `json:"-"`
	User   *UserProfile `json:"user,omitempty"`
	Status Status       `json:"status"`
}

func (s Session) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

func unauthenticatedSession(token string) Session {
	return Session{Token: token, Status: StatusUnauthenticated}
}

func verifyingSession(token string) Session {
	return Session{Token: token, Status: StatusVerifying}
}

func authenticatedSession(token string, user *UserProfile) Session {
	return Session{Token: token, User: user, Status: StatusAuthenticated}
}

// ID is a record identifier that the API sends either as a number or a string.
type ID string

func (id ID) String() string { return string(id) }

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// UserProfile is the resolved identity behind a token.
type UserProfile struct {
	ID          ID       `json:"id"`
	Username    string   `json:"username,omitempty"`
	DisplayName string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	Role        UserRole `json:"role"`
	RTNumber    ID       `json:"rt_number,omitempty"`
	AvatarURL   string   `json:"image_url,omitempty"`
}

func (u *UserProfile) UnmarshalJSON(data []byte) error {
	type profileAlias UserProfile
	var raw struct {
		profileAlias
		DisplayNameAlt string `json:"display_name"`
		Avatar         string `json:"avatar"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = UserProfile(raw.profileAlias)
	if u.DisplayName == "" {
		u.DisplayName = raw.DisplayNameAlt
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Username
	}
	if u.AvatarURL == "" {
		u.AvatarURL = raw.Avatar
	}
	return nil
}

// HasRT reports whether the profile is bound to an RT unit.
func (u *UserProfile) HasRT() bool {
	return u != nil && u.RTNumber != ""
}

// Credentials is the username/password pair sent to the login endpoint.
type Credentials struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&c.Password, validation.Required, validation.Length(1, 200)),
	)
}

// Normalized trims the username. Passwords are sent as typed.
func (c Credentials) Normalized() Credentials {
	c.Username = strings.TrimSpace(c.Username)
	return c
}
