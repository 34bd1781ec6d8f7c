package config

// Config represents the complete barline configuration.
type Config struct {
	LogLevel    string      `yaml:"log_level"`
	LogFormat   string      `yaml:"log_format"`
	Scrolling   string      `yaml:"scrolling"` // reverse | natural
	NeverPause  bool        `yaml:"never_pause"`
	WatchConfig bool        `yaml:"watch_config"`
	PIDFile     string      `yaml:"pid_file,omitempty"`
	Theme       ThemeConfig `yaml:"theme"`
	API         APIConfig   `yaml:"api,omitempty"`
	State       StateConfig `yaml:"state,omitempty"`

	// Blocks are the [[block]] entries in file order. The index of an entry
	// is the block id for the lifetime of the process.
	Blocks []BlockConfig `yaml:"-"`

	// Path is the absolute path the config was loaded from.
	Path string `yaml:"-"`
}

// ThemeConfig maps widget states to bar colors.
type ThemeConfig struct {
	IdleFg              string `yaml:"idle_fg,omitempty"`
	IdleBg              string `yaml:"idle_bg,omitempty"`
	InfoFg              string `yaml:"info_fg,omitempty"`
	InfoBg              string `yaml:"info_bg,omitempty"`
	GoodFg              string `yaml:"good_fg,omitempty"`
	GoodBg              string `yaml:"good_bg,omitempty"`
	WarningFg           string `yaml:"warning_fg,omitempty"`
	WarningBg           string `yaml:"warning_bg,omitempty"`
	CriticalFg          string `yaml:"critical_fg,omitempty"`
	CriticalBg          string `yaml:"critical_bg,omitempty"`
	Separator           *bool  `yaml:"separator,omitempty"`
	SeparatorBlockWidth int    `yaml:"separator_block_width,omitempty"`
}

// APIConfig defines the optional local control API.
type APIConfig struct {
	Enabled bool       `yaml:"enabled"`
	Listen  string     `yaml:"listen"`
	Token   string     `yaml:"token,omitempty"` // admin/full access
	Tokens  []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// StateConfig defines where blocks persist their view state. An empty path
// disables persistence.
type StateConfig struct {
	Path string `yaml:"path"`
}

// BlockConfig is one [[block]] entry. The common keys are split out; the
// rest stay in Params for the block's own decoder.
type BlockConfig struct {
	Type      string
	Signal    *int
	OnClick   string
	IfCommand string
	Params    Params
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Scrolling: "reverse",
		Theme: ThemeConfig{
			InfoFg:     "#89b4fa",
			GoodFg:     "#a6e3a1",
			WarningFg:  "#f9e2af",
			CriticalFg: "#f38ba8",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9713",
		},
	}
}
