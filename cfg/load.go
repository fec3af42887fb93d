package cfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/fatih/camelcase"
	"github.com/mcuadros/go-defaults"
	"github.com/peterbourgon/mergemap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes the environment variables overriding file settings.
const EnvPrefix = "SIGNAL_WEB_"

// EnvJSON holds a JSON object merged over everything else.
const EnvJSON = EnvPrefix + "CONFIG_JSON"

// EnvName is the environment variable overriding the setting with the
// given JSON name: upstreamRPCPath is read from SIGNAL_WEB_UPSTREAM_RPC_PATH.
func EnvName(setting string) string {
	words := camelcase.Split(setting)
	for i, w := range words {
		words[i] = strings.ToUpper(w)
	}
	return EnvPrefix + strings.Join(words, "_")
}

// Load reads the configuration: defaults, then the YAML file at path (the
// default path when empty, where a missing file is not an error), then
// SIGNAL_WEB_* environment variables, then the JSON in
// SIGNAL_WEB_CONFIG_JSON.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with a custom environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	c := new(Config)
	defaults.SetDefaults(c)

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("read config file %s, but failed to parse YAML: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
	}

	overrides, err := envOverrides(lookup)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		data, err := json.Marshal(overrides)
		if err != nil {
			return nil, err
		}
		if err := c.MergeInJSON(data, identity); err != nil {
			return nil, fmt.Errorf("applying environment overrides: %w", err)
		}
	}
	if raw, ok := lookup(EnvJSON); ok && strings.TrimSpace(raw) != "" {
		if err := c.MergeInJSON(json.RawMessage(raw), identity); err != nil {
			return nil, fmt.Errorf("applying %s: %w", EnvJSON, err)
		}
	}

	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir()
	}
	return c, c.Validate()
}

func identity(m map[string]any) map[string]any {
	return m
}

// envOverrides collects the settings given in the environment, typed
// after the Config fields they override. Lists are comma separated.
func envOverrides(lookup func(string) (string, bool)) (map[string]any, error) {
	overrides := map[string]any{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		setting, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if setting == "" || setting == "-" {
			continue
		}
		env := EnvName(setting)
		val, ok := lookup(env)
		if !ok || val == "" {
			continue
		}
		switch field.Type.Kind() {
		case reflect.Int:
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("environment variable %s must be an integer: %w", env, err)
			}
			overrides[setting] = n
		case reflect.Slice:
			items := []any{}
			for _, item := range strings.Split(val, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			overrides[setting] = items
		default:
			overrides[setting] = val
		}
	}
	return overrides, nil
}

// MergeInJSON merges config embedded inside a json.RawMessage into c.
//
// c is round-tripped through a map[string]any so that mergemap can merge
// the two objects recursively; the result is unmarshaled back into c.
// extract selects the config portion of data.
func (c *Config) MergeInJSON(data json.RawMessage, extract func(map[string]any) map[string]any) error {
	m1 := make(map[string]any)
	m2 := make(map[string]any)
	m1bytes, err := json.Marshal(c)
	if err != nil {
		return err
	}
	err = json.Unmarshal(m1bytes, &m1)
	if err != nil {
		return err
	}
	err = json.Unmarshal(data, &m2)
	if err != nil {
		return err
	}
	merged := mergemap.Merge(m1, extract(m2))
	mergedBytes, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	return json.Unmarshal(mergedBytes, c)
}
