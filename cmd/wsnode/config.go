package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/Sternrassler/ws-nodes/pkg/auth"
	"github.com/Sternrassler/ws-nodes/pkg/client"
	"github.com/Sternrassler/ws-nodes/pkg/credstore"
	"github.com/Sternrassler/ws-nodes/pkg/node"
	"github.com/Sternrassler/ws-nodes/pkg/pagination"
	"github.com/Sternrassler/ws-nodes/pkg/settings"
)

// paramSpec is a typed constant parameter in the config file.
type paramSpec struct {
	Name  string `mapstructure:"name"`
	Kind  string `mapstructure:"kind"`
	Value string `mapstructure:"value"`
}

type methodSpec struct {
	Path        string      `mapstructure:"path"`
	CountPath   string      `mapstructure:"count_path"`
	HTTPMethod  string      `mapstructure:"http_method"`
	Params      []paramSpec `mapstructure:"params"`
	PageSize    string      `mapstructure:"page_size"`
	OffsetParam string      `mapstructure:"offset_param"`
	SizeParam   string      `mapstructure:"size_param"`
	RowsPath    string      `mapstructure:"rows_path"`
	CountField  string      `mapstructure:"count_field"`
	Limit       int         `mapstructure:"limit"`
	MaxPages    int         `mapstructure:"max_pages"`
}

type bindingSpec struct {
	Param  string `mapstructure:"param"`
	Column string `mapstructure:"column"`
	Kind   string `mapstructure:"kind"`
	Value  string `mapstructure:"value"`
}

type nodeSpec struct {
	Method      methodSpec    `mapstructure:"method"`
	Bindings    []bindingSpec `mapstructure:"bindings"`
	Parallelism int           `mapstructure:"parallelism"`
	SkipMissing bool          `mapstructure:"skip_missing"`
}

// loadNodeConfig decodes the node section of v.
func loadNodeConfig(v *viper.Viper) (node.Config, error) {
	var spec nodeSpec
	if err := v.UnmarshalKey("node", &spec); err != nil {
		return node.Config{}, fmt.Errorf("decode node config: %w", err)
	}

	pageSize, err := parsePageSize(spec.Method.PageSize)
	if err != nil {
		return node.Config{}, err
	}

	params := make(client.Params, 0, len(spec.Method.Params))
	for _, p := range spec.Method.Params {
		param, err := client.ParseParam(p.Name, client.ParseKind(p.Kind), p.Value)
		if err != nil {
			return node.Config{}, err
		}
		params = append(params, param)
	}

	bindings := make([]node.Binding, 0, len(spec.Bindings))
	for _, b := range spec.Bindings {
		bindings = append(bindings, node.Binding{
			Param:  b.Param,
			Column: b.Column,
			Kind:   client.ParseKind(b.Kind),
			Value:  b.Value,
		})
	}

	return node.Config{
		Method: pagination.Method{
			Path:        spec.Method.Path,
			CountPath:   spec.Method.CountPath,
			HTTPMethod:  spec.Method.HTTPMethod,
			Params:      params,
			PageSize:    pageSize,
			OffsetParam: spec.Method.OffsetParam,
			SizeParam:   spec.Method.SizeParam,
			RowsPath:    spec.Method.RowsPath,
			CountField:  spec.Method.CountField,
			Limit:       spec.Method.Limit,
			MaxPages:    spec.Method.MaxPages,
		},
		Bindings:    bindings,
		Parallelism: spec.Parallelism,
		SkipMissing: spec.SkipMissing,
	}, nil
}

func parsePageSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "all":
		return pagination.PageSizeAll, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("page_size must be a positive number or \"all\" (got %q)", s)
	}
	return n, nil
}

// parseParamFlags parses name=value flags. A name may carry a kind suffix,
// e.g. "threshold:double=0.9".
func parseParamFlags(flags []string) (client.Params, error) {
	params := make(client.Params, 0, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, want name=value", f)
		}
		name, kind, _ := strings.Cut(key, ":")
		p, err := client.ParseParam(name, client.ParseKind(kind), value)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

// environment is what every command needs to reach the web service.
type environment struct {
	settings    settings.ServiceSettings
	client      *client.Client
	credentials auth.Provider
	redis       *redis.Client
	viper       *viper.Viper
}

// newEnvironment loads settings from configPath and connects the credential
// store when redisAddr is set.
func newEnvironment(ctx context.Context, configPath, redisAddr string) (*environment, error) {
	v, err := settings.NewViper(configPath)
	if err != nil {
		return nil, err
	}

	s, err := settings.Load(v)
	if err != nil {
		return nil, err
	}

	env := &environment{settings: s, viper: v}

	if redisAddr != "" {
		env.redis = redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := env.redis.Ping(ctx).Err(); err != nil {
			env.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", redisAddr, err)
		}
		env.credentials = credstore.NewStore(env.redis)
	}

	env.client, err = client.New(client.Config{
		Settings:    s,
		Preferences: settings.ViperPreferences{V: v},
		Credentials: env.credentials,
		UserAgent:   userAgent,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// node builds the node configured in the environment's config file.
func (e *environment) node() (*node.Node, error) {
	cfg, err := loadNodeConfig(e.viper)
	if err != nil {
		return nil, err
	}

	orchCfg := pagination.DefaultConfig()
	orchCfg.MaxChildElements = e.settings.MaxChildElements
	return node.New(pagination.NewOrchestrator(e.client, orchCfg), cfg), nil
}

// Close releases connections.
func (e *environment) Close() {
	if e.client != nil {
		e.client.Close()
	}
	if e.redis != nil {
		e.redis.Close()
	}
}
