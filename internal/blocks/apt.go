package blocks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

// aptConf points apt at a private state and cache directory so the block can
// refresh package lists without root.
const aptConf = `Dir::State "%[1]s";
Dir::State::lists "lists";
Dir::Cache "%[1]s";
Dir::Cache::srcpkgcache "srcpkgcache.bin";
Dir::Cache::pkgcache "pkgcache.bin";
`

type aptConfig struct {
	Interval             config.Duration `yaml:"interval"`
	Format               string          `yaml:"format"`
	FormatSingular       string          `yaml:"format_singular"`
	FormatUpToDate       string          `yaml:"format_up_to_date"`
	WarningUpdatesRegex  string          `yaml:"warning_updates_regex"`
	CriticalUpdatesRegex string          `yaml:"critical_updates_regex"`
	Timeout              config.Duration `yaml:"timeout"`
}

type aptSettings struct {
	interval       time.Duration
	timeout        time.Duration
	format         *block.Template
	formatSingular *block.Template
	formatUpToDate *block.Template
	warning        *regexp.Regexp
	critical       *regexp.Regexp
}

func parseApt(p config.Params) (aptSettings, error) {
	var cfg aptConfig
	if err := p.Decode(&cfg); err != nil {
		return aptSettings{}, err
	}
	var s aptSettings
	var err error
	if s.interval, err = intervalOr(cfg.Interval, 10*time.Minute); err != nil {
		return s, err
	}
	if s.timeout, err = intervalOr(cfg.Timeout, 5*time.Minute); err != nil {
		return s, fmt.Errorf("timeout: %w", err)
	}
	if s.format, err = template(cfg.Format, "{count}", "count"); err != nil {
		return s, err
	}
	if s.formatSingular, err = template(cfg.FormatSingular, "{count}", "count"); err != nil {
		return s, err
	}
	if s.formatUpToDate, err = template(cfg.FormatUpToDate, "{count}", "count"); err != nil {
		return s, err
	}
	if cfg.WarningUpdatesRegex != "" {
		if s.warning, err = regexp.Compile(cfg.WarningUpdatesRegex); err != nil {
			return s, fmt.Errorf("warning_updates_regex: %w", err)
		}
	}
	if cfg.CriticalUpdatesRegex != "" {
		if s.critical, err = regexp.Compile(cfg.CriticalUpdatesRegex); err != nil {
			return s, fmt.Errorf("critical_updates_regex: %w", err)
		}
	}
	return s, nil
}

type aptBlock struct {
	textWidget
	settings   aptSettings
	configPath string
	logger     *slog.Logger

	run func(ctx context.Context, script string, timeout time.Duration) (string, error)
}

func newApt(_ context.Context, env block.Env, p config.Params) (block.Block, error) {
	s, err := parseApt(p)
	if err != nil {
		return nil, err
	}
	cacheDir := filepath.Join(os.TempDir(), "barline-apt")
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create apt cache dir: %w", err)
	}
	configPath := filepath.Join(cacheDir, "apt.conf")
	if err := os.WriteFile(configPath, []byte(fmt.Sprintf(aptConf, cacheDir)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write apt config: %w", err)
	}

	logger := env.Logger()
	return &aptBlock{
		textWidget: textWidget{interval: s.interval},
		settings:   s,
		configPath: configPath,
		logger:     logger,
		run:        shellRunner(logger),
	}, nil
}

func (b *aptBlock) Update(ctx context.Context) error {
	prefix := "APT_CONFIG=" + shellQuote(b.configPath) + " "
	if _, err := b.run(ctx, prefix+"apt update", b.settings.timeout); err != nil {
		b.logger.Warn("apt update failed, counting from the existing lists", "error", err)
	}
	out, err := b.run(ctx, prefix+"apt list --upgradable", b.settings.timeout)
	if err != nil {
		return fmt.Errorf("apt list: %w", err)
	}

	var count int
	var warning, critical bool
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "[upgradable") {
			continue
		}
		count++
		if b.settings.warning != nil && b.settings.warning.MatchString(line) {
			warning = true
		}
		if b.settings.critical != nil && b.settings.critical.MatchString(line) {
			critical = true
		}
	}

	format := b.settings.format
	switch count {
	case 0:
		format = b.settings.formatUpToDate
	case 1:
		format = b.settings.formatSingular
	}
	text, err := format.Render(block.Values{"count": block.Number(float64(count), 0)})
	if err != nil {
		return err
	}

	b.widget = block.Widget{Text: text, State: block.StateInfo}
	switch {
	case count == 0:
		b.widget.State = block.StateIdle
	case critical:
		b.widget.State = block.StateCritical
	case warning:
		b.widget.State = block.StateWarning
	}
	return nil
}

func (b *aptBlock) Click(_ context.Context, c block.Click) (bool, error) {
	return c.Button == block.ButtonLeft, nil
}

// shellQuote wraps s in single quotes for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
