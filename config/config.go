// Package config loads the portal configuration: compiled defaults, then a
// JSON-with-comments file, then RWPORTAL_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	rwportal "github.com/goliatone/go-rwportal"
	"github.com/goliatone/go-rwportal/api"
	"github.com/tidwall/jsonc"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RWPORTAL_"

// BoardPageSize is how many officers the board page shows at once.
const BoardPageSize = 6

type Config struct {
	Server  Server        `json:"server"`
	API     API           `json:"api"`
	Session Session       `json:"session"`
	Views   Views         `json:"views"`
	Log     Log           `json:"log"`
	CSRF    CSRF          `json:"csrf"`
	Board   []BoardMember `json:"board"`
}

type Server struct {
	Address                   string `json:"address"`
	ShutdownTimeoutExpression string `json:"shutdown_timeout"`
	Debug                     bool   `json:"debug"`
}

type API struct {
	BaseURL           string    `json:"base_url"`
	TimeoutExpression string    `json:"timeout"`
	RetryAttempts     int       `json:"retry_attempts"`
	LoginEndpoint     string    `json:"login_endpoint"`
	ProfileEndpoint   string    `json:"profile_endpoint"`
	VerifyEndpoint    string    `json:"verify_endpoint"`
	GoogleEndpoint    string    `json:"google_endpoint"`
	Paths             api.Paths `json:"paths"`
}

type Session struct {
	CookieName                string `json:"cookie_name"`
	CookieMaxAgeExpression    string `json:"cookie_max_age"`
	CookieSecure              bool   `json:"cookie_secure"`
	ProfileCacheSize          int    `json:"profile_cache_size"`
	ProfileCacheTTLExpression string `json:"profile_cache_ttl"`
	LoginRoute                string `json:"login_route"`
	HomeRoute                 string `json:"home_route"`
}

// Views configures the per session list view registry and where the
// templates come from. An empty Dir uses the embedded set.
type Views struct {
	RegistrySize          int    `json:"registry_size"`
	RegistryTTLExpression string `json:"registry_ttl"`
	Dir                   string `json:"dir"`
	Reload                bool   `json:"reload"`
}

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type CSRF struct {
	Secret               string `json:"secret"`
	ExpirationExpression string `json:"expiration"`
}

// BoardMember is one officer shown on the board page.
type BoardMember struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	Photo    string `json:"photo,omitempty"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: Server{
			Address:                   ":8080",
			ShutdownTimeoutExpression: "10s",
		},
		API: API{
			BaseURL:           "http://localhost:3000",
			TimeoutExpression: "20s",
			RetryAttempts:     2,
			LoginEndpoint:     rwportal.DefaultLoginEndpoint,
			ProfileEndpoint:   rwportal.DefaultProfileEndpoint,
			VerifyEndpoint:    rwportal.DefaultVerifyEndpoint,
			GoogleEndpoint:    rwportal.DefaultGoogleEndpoint,
			Paths:             api.DefaultPaths(),
		},
		Session: Session{
			CookieName:                rwportal.DefaultCookieName,
			CookieMaxAgeExpression:    "168h",
			ProfileCacheSize:          rwportal.DefaultProfileCacheSize,
			ProfileCacheTTLExpression: "1m",
			LoginRoute:                rwportal.DefaultLoginRoute,
			HomeRoute:                 rwportal.DefaultHomeRoute,
		},
		Views: Views{
			RegistrySize:          rwportal.DefaultViewRegistrySize,
			RegistryTTLExpression: "30m",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		CSRF: CSRF{
			ExpirationExpression: "24h",
		},
		Board: DefaultBoard(),
	}
}

// DefaultBoard is the officer roster used when the file does not list one.
func DefaultBoard() []BoardMember {
	return []BoardMember{
		{Name: "Budi Santoso", Position: "Ketua RT"},
		{Name: "Siti Aisyah", Position: "Sekretaris RT"},
		{Name: "Rahmat Hidayat", Position: "Bendahara RT"},
		{Name: "Agus Suryanto", Position: "Ketua RW"},
		{Name: "Lia Marlina", Position: "Anggota RT"},
		{Name: "Hendra Saputra", Position: "Anggota RT"},
		{Name: "Dewi Lestari", Position: "Anggota RT"},
		{Name: "Wawan Setiawan", Position: "Anggota RW"},
		{Name: "Fitria Prasetya", Position: "Anggota RW"},
		{Name: "Bayu Firmansyah", Position: "Anggota RW"},
		{Name: "Ahmad Zaki", Position: "Ketua Bidang Kebersihan"},
		{Name: "Teguh Wibowo", Position: "Sekretaris RW"},
		{Name: "Ayu Puspa", Position: "Bendahara RW"},
		{Name: "Rina Kurnia", Position: "Anggota Bidang Keamanan"},
		{Name: "Eka Hartati", Position: "Anggota Bidang Keamanan"},
		{Name: "Rizal Fauzan", Position: "Anggota Bidang Pendidikan"},
		{Name: "Linda Wahyuni", Position: "Anggota Bidang Sosial"},
		{Name: "Putri Permata", Position: "Anggota Bidang Kesehatan"},
		{Name: "Anton Sugiarto", Position: "Anggota Bidang Kesejahteraan"},
		{Name: "Dian Firmansyah", Position: "Anggota Bidang Pembangunan"},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "read config file").
				WithMetadata(map[string]any{"path": path})
		}
		if err := cfg.Merge(data); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "parse config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge decodes JSONC data over the current values. Keys the document
// does not set keep their value.
func (c *Config) Merge(data []byte) error {
	board := c.Board
	c.Board = nil
	if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
		c.Board = board
		return err
	}
	if len(c.Board) == 0 {
		c.Board = board
	}
	c.API.Paths = c.API.Paths.WithDefaults()
	return nil
}

// LookupFunc finds an environment variable, as os.LookupEnv does.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies RWPORTAL_* overrides found through lookup.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := map[string]*string{
		"ADDRESS":          &c.Server.Address,
		"SHUTDOWN_TIMEOUT": &c.Server.ShutdownTimeoutExpression,
		"API_BASE_URL":     &c.API.BaseURL,
		"API_TIMEOUT":      &c.API.TimeoutExpression,
		"COOKIE_NAME":      &c.Session.CookieName,
		"COOKIE_MAX_AGE":   &c.Session.CookieMaxAgeExpression,
		"LOG_LEVEL":        &c.Log.Level,
		"LOG_FORMAT":       &c.Log.Format,
		"CSRF_SECRET":      &c.CSRF.Secret,
		"VIEWS_DIR":        &c.Views.Dir,
	}
	for key, dst := range str {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"API_RETRY_ATTEMPTS": &c.API.RetryAttempts,
		"PROFILE_CACHE_SIZE": &c.Session.ProfileCacheSize,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError(key, v, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"COOKIE_SECURE": &c.Session.CookieSecure,
		"DEBUG":         &c.Server.Debug,
		"VIEWS_RELOAD":  &c.Views.Reload,
	}
	for key, dst := range bools {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return envError(key, v, err)
		}
		*dst = b
	}
	return nil
}

func envError(key, value string, cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryValidation, "invalid environment override").
		WithMetadata(map[string]any{"key": EnvPrefix + key, "value": value})
}

// Validate checks values the getters would otherwise have to guess at.
func (c *Config) Validate() error {
	fields := map[string]string{}

	if strings.TrimSpace(c.API.BaseURL) == "" {
		fields["api.base_url"] = "required"
	}

	durations := map[string]string{
		"server.shutdown_timeout":   c.Server.ShutdownTimeoutExpression,
		"api.timeout":               c.API.TimeoutExpression,
		"session.cookie_max_age":    c.Session.CookieMaxAgeExpression,
		"session.profile_cache_ttl": c.Session.ProfileCacheTTLExpression,
		"views.registry_ttl":        c.Views.RegistryTTLExpression,
		"csrf.expiration":           c.CSRF.ExpirationExpression,
	}
	for key, expr := range durations {
		if expr == "" {
			continue
		}
		if _, err := time.ParseDuration(expr); err != nil {
			fields[key] = fmt.Sprintf("invalid duration %q", expr)
		}
	}

	if c.CSRF.Secret != "" && len(c.CSRF.Secret) < 32 {
		fields["csrf.secret"] = "must be at least 32 bytes"
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		fields["log.format"] = "must be text or json"
	}

	if len(fields) == 0 {
		return nil
	}
	return goerrors.New("invalid configuration", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode("INVALID_CONFIG").
		WithMetadata(map[string]any{"fields": fields})
}

// duration parses expr, falling back to def for empty or broken values.
// Validate reports broken values before the getters run.
func duration(expr string, def time.Duration) time.Duration {
	if expr == "" {
		return def
	}
	d, err := time.ParseDuration(expr)
	if err != nil {
		return def
	}
	return d
}

func (c *Config) GetAPIBaseURL() string { return strings.TrimRight(c.API.BaseURL, "/") }

func (c *Config) GetRequestTimeout() time.Duration {
	return rwportal.ClampTimeout(duration(c.API.TimeoutExpression, rwportal.DefaultRequestTimeout))
}

func (c *Config) GetRetryAttempts() int         { return c.API.RetryAttempts }
func (c *Config) GetCookieName() string         { return c.Session.CookieName }
func (c *Config) GetCookieSecure() bool         { return c.Session.CookieSecure }
func (c *Config) GetProfileCacheSize() int      { return c.Session.ProfileCacheSize }
func (c *Config) GetLoginRoute() string         { return c.Session.LoginRoute }
func (c *Config) GetHomeRoute() string          { return c.Session.HomeRoute }
func (c *Config) GetLoginEndpoint() string      { return c.API.LoginEndpoint }
func (c *Config) GetProfileEndpoint() string    { return c.API.ProfileEndpoint }
func (c *Config) GetVerifyEndpoint() string     { return c.API.VerifyEndpoint }
func (c *Config) GetGoogleAuthEndpoint() string { return c.API.GoogleEndpoint }

func (c *Config) GetCookieMaxAge() time.Duration {
	return duration(c.Session.CookieMaxAgeExpression, rwportal.DefaultCookieMaxAge)
}

func (c *Config) GetProfileCacheTTL() time.Duration {
	return duration(c.Session.ProfileCacheTTLExpression, rwportal.DefaultProfileCacheTTL)
}

func (c *Config) GetShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeoutExpression, 10*time.Second)
}

func (c *Config) GetViewRegistryTTL() time.Duration {
	return duration(c.Views.RegistryTTLExpression, rwportal.DefaultViewRegistryTTL)
}

func (c *Config) GetCSRFExpiration() time.Duration {
	return duration(c.CSRF.ExpirationExpression, 24*time.Hour)
}

// GetLogLevel maps the configured level name to a slog level.
func (c *Config) GetLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// BoardPages returns the number of pages board spans.
func BoardPages(board []BoardMember) int {
	return max(1, (len(board)+BoardPageSize-1)/BoardPageSize)
}

// BoardPage returns the officers on page n, counting from 1, and the page
// actually served. Out of range pages are clamped.
func BoardPage(board []BoardMember, n int) ([]BoardMember, int) {
	n = min(max(n, 1), BoardPages(board))
	start := (n - 1) * BoardPageSize
	end := min(start+BoardPageSize, len(board))
	if start >= end {
		return []BoardMember{}, n
	}
	return board[start:end], n
}

var _ rwportal.Config = (*Config)(nil)
