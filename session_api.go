package rwportal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultLoginEndpoint   = "/api/auth/login"
	DefaultProfileEndpoint = "/api/auth/profile"
	DefaultVerifyEndpoint  = "/api/auth/verify"
	DefaultGoogleEndpoint  = "/api/auth/google"
)

type clientAuthAPI struct {
	client      *Client
	loginPath   string
	profilePath string
	verifyPath  string
}

// NewAuthAPI implements AuthAPI on top of the API client.
func NewAuthAPI(client *Client, cfg Config) AuthAPI {
	api := &clientAuthAPI{
		client:      client,
		loginPath:   DefaultLoginEndpoint,
		profilePath: DefaultProfileEndpoint,
		verifyPath:  DefaultVerifyEndpoint,
	}
	if cfg != nil {
		api.loginPath = orDefault(cfg.GetLoginEndpoint(), api.loginPath)
		api.profilePath = orDefault(cfg.GetProfileEndpoint(), api.profilePath)
		api.verifyPath = orDefault(cfg.GetVerifyEndpoint(), api.verifyPath)
	}
	return api
}

func (a *clientAuthAPI) Login(ctx context.Context, creds Credentials) (string, *UserProfile, error) {
	var raw json.RawMessage
	err := a.client.WithToken("").SendJSON(ctx, http.MethodPost, a.loginPath, creds, &raw)
	if err != nil {
		switch KindOf(err) {
		case KindUnauthorized, KindBadRequest, KindNotFound:
			return "", nil, NewInvalidCredentialsError()
		}
		return "", nil, err
	}

	var payload struct {
		Token       string          `json:"token"`
		AccessToken string          `json:"access_token"`
		User        json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(UnwrapData(raw), &payload); err != nil {
		return "", nil, malformedResponse(err)
	}

	token := payload.Token
	if token == "" {
		token = payload.AccessToken
	}
	if token == "" {
		return "", nil, goerrors.New(MsgServer, goerrors.CategoryInternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeServer).
			WithMetadata(map[string]any{"reason": "login response without token"})
	}

	if len(bytes.TrimSpace(payload.User)) == 0 || bytes.Equal(bytes.TrimSpace(payload.User), []byte("null")) {
		return token, nil, nil
	}

	user, err := decodeProfile(payload.User)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (a *clientAuthAPI) Profile(ctx context.Context, token string) (*UserProfile, error) {
	return a.fetchProfile(ctx, a.profilePath, token)
}

func (a *clientAuthAPI) Verify(ctx context.Context, token string) (*UserProfile, error) {
	return a.fetchProfile(ctx, a.verifyPath, token)
}

func (a *clientAuthAPI) fetchProfile(ctx context.Context, path, token string) (*UserProfile, error) {
	var raw json.RawMessage
	if err := a.client.WithToken(token).GetJSON(ctx, path, nil, &raw); err != nil {
		return nil, err
	}
	return decodeProfile(raw)
}

func decodeProfile(raw json.RawMessage) (*UserProfile, error) {
	raw = UnwrapData(raw)

	var wrapped struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.User) > 0 && wrapped.User[0] == '{' {
		raw = wrapped.User
	}

	user := &UserProfile{}
	if err := json.Unmarshal(raw, user); err != nil {
		return nil, malformedResponse(err)
	}
	if user.ID == "" && user.Username == "" {
		return nil, malformedResponse(nil)
	}
	return user, nil
}

// UnwrapData returns the value under "data" when the body is an envelope.
func UnwrapData(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return trimmed
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return data
	}
	return trimmed
}

func malformedResponse(cause error) error {
	if cause == nil {
		return goerrors.New(MsgServer, goerrors.CategoryInternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeServer)
	}
	return goerrors.Wrap(cause, goerrors.CategoryInternal, MsgServer).
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeServer)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
