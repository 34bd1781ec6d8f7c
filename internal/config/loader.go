package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Keys every [[block]] entry may carry regardless of its type.
const (
	keyType      = "block"
	keySignal    = "signal"
	keyOnClick   = "on_click"
	keyIfCommand = "if_command"
)

// fileConfig is the on-disk shape: top-level settings plus the raw block list.
type fileConfig struct {
	Config `yaml:",inline"`
	Block  []map[string]any `yaml:"block"`
}

// Load reads and parses configuration from a TOML or YAML file. The format is
// chosen by extension; anything that is not .yaml or .yml is read as TOML.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data, formatOf(absPath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.Path = absPath

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Parse decodes raw config bytes in the given format ("toml" or "yaml") over
// the defaults. It does not validate.
func Parse(data []byte, format string) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	raw := map[string]any{}
	switch format {
	case "yaml":
		if err := yaml.Unmarshal([]byte(interpolated), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(interpolated, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	// Both formats funnel through one YAML decode so the struct tags and
	// unknown-key checks are shared.
	normalized, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}

	fc := fileConfig{Config: *Defaults()}
	if err := decodeStrict(normalized, &fc); err != nil {
		return nil, err
	}

	cfg := fc.Config
	cfg.Blocks = make([]BlockConfig, 0, len(fc.Block))
	for i, entry := range fc.Block {
		bc, err := splitBlock(entry)
		if err != nil {
			return nil, fmt.Errorf("block[%d]: %w", i, err)
		}
		cfg.Blocks = append(cfg.Blocks, bc)
	}
	return &cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

func splitBlock(entry map[string]any) (BlockConfig, error) {
	var bc BlockConfig
	params := make(Params, len(entry))
	for k, v := range entry {
		params[k] = v
	}

	typ, ok := params[keyType].(string)
	if !ok || typ == "" {
		return bc, fmt.Errorf("%q is required and must be a string", keyType)
	}
	bc.Type = typ
	delete(params, keyType)

	if v, ok := params[keySignal]; ok {
		n, err := toInt(v)
		if err != nil {
			return bc, fmt.Errorf("%s: %w", keySignal, err)
		}
		bc.Signal = &n
		delete(params, keySignal)
	}

	for key, dst := range map[string]*string{keyOnClick: &bc.OnClick, keyIfCommand: &bc.IfCommand} {
		v, ok := params[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return bc, fmt.Errorf("%s must be a string", key)
		}
		*dst = s
		delete(params, key)
	}

	bc.Params = params
	return bc, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("must be an integer (got %v)", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("must be an integer (got %T)", v)
	}
}

// Discover finds the config file. An explicit path always wins.
// Priority: flag, $BARLINE_CONFIG, $XDG_CONFIG_HOME/barline, ~/.config/barline.
// TOML is preferred over YAML in each directory.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv("BARLINE_CONFIG"); p != "" {
		return p, nil
	}

	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "barline"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "barline"))
	}

	var checked []string
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		for _, dir := range dirs {
			candidate := filepath.Join(dir, name)
			checked = append(checked, candidate)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("no config found (checked: $BARLINE_CONFIG, %s)", strings.Join(checked, ", "))
}

// interpolateEnv replaces ${VAR} with the environment value. Unset variables
// are left in place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error (got %q)", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text (got %q)", cfg.LogFormat)
	}

	switch cfg.Scrolling {
	case "reverse", "natural":
	default:
		return fmt.Errorf("scrolling must be reverse or natural (got %q)", cfg.Scrolling)
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if err := checkUnresolved("api.token", cfg.API.Token); err != nil {
			return err
		}
		for i, tok := range cfg.API.Tokens {
			field := fmt.Sprintf("api.tokens[%d].token", i)
			if tok.Token == "" {
				return fmt.Errorf("%s is required", field)
			}
			if err := checkUnresolved(field, tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	for i, b := range cfg.Blocks {
		if b.Signal != nil && *b.Signal < 0 {
			return fmt.Errorf("block[%d] (%s): signal must be >= 0 (got %d)", i, b.Type, *b.Signal)
		}
	}

	return nil
}

func checkUnresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

// InvertScroll reports whether wheel buttons should be swapped before they
// reach blocks.
func (c *Config) InvertScroll() bool {
	return c.Scrolling == "natural"
}
