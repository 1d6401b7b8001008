// Package settings holds the read-only configuration snapshot of one node
// execution and resolves the web service base URL.
package settings

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/ws-nodes/pkg/auth"
)

const (
	// DefaultConnectTimeout is the connection timeout when none is configured.
	DefaultConnectTimeout = 600 * time.Second

	// DefaultSocketTimeout is the socket read timeout when none is configured.
	DefaultSocketTimeout = 600 * time.Second

	// DefaultMaxChildElements bounds the number of elements read from one response.
	DefaultMaxChildElements = 1_000_000
)

var (
	// ErrMissingURL indicates neither an override nor a preference provides the base URL.
	ErrMissingURL = errors.New("web service URL is not configured")

	// ErrInvalidURL indicates the configured base URL cannot be used.
	ErrInvalidURL = errors.New("invalid web service URL")
)

// Preferences is the shared preference store of the workbench.
type Preferences interface {
	// BaseURL returns the shared default web service URL, or "".
	BaseURL() string
}

// StaticPreferences is a fixed Preferences value.
type StaticPreferences string

// BaseURL implements Preferences.
func (p StaticPreferences) BaseURL() string {
	return string(p)
}

// ServiceSettings is the configuration of one node execution.
type ServiceSettings struct {
	// URLOverride replaces the shared preference when UseURLOverride is set.
	URLOverride    string
	UseURLOverride bool

	ConnectTimeout time.Duration
	SocketTimeout  time.Duration

	// MaxChildElements bounds the number of elements accepted in one response.
	MaxChildElements int

	Auth auth.Config
}

// Default returns settings with default timeouts and guards.
func Default() ServiceSettings {
	return ServiceSettings{
		ConnectTimeout:   DefaultConnectTimeout,
		SocketTimeout:    DefaultSocketTimeout,
		MaxChildElements: DefaultMaxChildElements,
		Auth:             auth.Config{Scheme: auth.SchemeNone},
	}
}

// ResolveBaseURL returns the effective base URL, always ending in a slash so
// relative method paths resolve beneath it.
func (s ServiceSettings) ResolveBaseURL(prefs Preferences) (*url.URL, error) {
	raw := ""
	if s.UseURLOverride {
		raw = s.URLOverride
	} else if prefs != nil {
		raw = prefs.BaseURL()
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		if s.UseURLOverride {
			return nil, fmt.Errorf("%w: URL override is enabled but empty", ErrMissingURL)
		}
		return nil, fmt.Errorf("%w: set the web service URL preference", ErrMissingURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host is empty", ErrInvalidURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// Viper keys.
const (
	KeyBaseURLPreference = "preferences.base_url"
	KeyURLOverride       = "service.url"
	KeyUseURLOverride    = "service.use_url_override"
	KeyConnectTimeout    = "service.connect_timeout"
	KeySocketTimeout     = "service.socket_timeout"
	KeyMaxChildElements  = "service.max_child_elements"
	KeyAuthScheme        = "service.auth.scheme"
	KeyAuthUsername      = "service.auth.username"
	KeyAuthPassword      = "service.auth.password"
	KeyAuthDomain        = "service.auth.domain"
	KeyAuthToken         = "service.auth.token"
	KeyAuthCredential    = "service.auth.credential"
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyUseURLOverride, false)
	v.SetDefault(KeyConnectTimeout, DefaultConnectTimeout)
	v.SetDefault(KeySocketTimeout, DefaultSocketTimeout)
	v.SetDefault(KeyMaxChildElements, DefaultMaxChildElements)
	v.SetDefault(KeyAuthScheme, string(auth.SchemeNone))
}

// Load builds a settings snapshot from v. Timeouts accept durations ("90s")
// or plain numbers of seconds.
func Load(v *viper.Viper) (ServiceSettings, error) {
	SetDefaults(v)

	scheme, err := auth.ParseScheme(v.GetString(KeyAuthScheme))
	if err != nil {
		return ServiceSettings{}, err
	}

	connect, err := seconds(v, KeyConnectTimeout)
	if err != nil {
		return ServiceSettings{}, err
	}
	socket, err := seconds(v, KeySocketTimeout)
	if err != nil {
		return ServiceSettings{}, err
	}

	maxChildren := v.GetInt(KeyMaxChildElements)
	if maxChildren <= 0 {
		return ServiceSettings{}, fmt.Errorf("%s must be > 0 (got %d)", KeyMaxChildElements, maxChildren)
	}

	return ServiceSettings{
		URLOverride:      v.GetString(KeyURLOverride),
		UseURLOverride:   v.GetBool(KeyUseURLOverride),
		ConnectTimeout:   connect,
		SocketTimeout:    socket,
		MaxChildElements: maxChildren,
		Auth: auth.Config{
			Scheme:         scheme,
			Username:       v.GetString(KeyAuthUsername),
			Password:       v.GetString(KeyAuthPassword),
			Domain:         v.GetString(KeyAuthDomain),
			Token:          v.GetString(KeyAuthToken),
			CredentialName: v.GetString(KeyAuthCredential),
		},
	}, nil
}

func seconds(v *viper.Viper, key string) (time.Duration, error) {
	var d time.Duration
	switch raw := v.Get(key).(type) {
	case time.Duration:
		d = raw
	case int:
		d = time.Duration(raw) * time.Second
	case int64:
		d = time.Duration(raw) * time.Second
	case float64:
		d = time.Duration(raw * float64(time.Second))
	case string:
		s := strings.TrimSpace(raw)
		if s != "" && strings.Trim(s, "0123456789") == "" {
			s += "s"
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		d = parsed
	default:
		d = v.GetDuration(key)
	}

	if d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration (got %v)", key, v.Get(key))
	}
	return d, nil
}

// ViperPreferences reads the shared preferences from a viper instance.
type ViperPreferences struct {
	V *viper.Viper
}

// BaseURL implements Preferences.
func (p ViperPreferences) BaseURL() string {
	if p.V == nil {
		return ""
	}
	return p.V.GetString(KeyBaseURLPreference)
}

// NewViper returns a viper instance reading the optional config file at path
// and WSNODES_* environment overrides.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("WSNODES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}
