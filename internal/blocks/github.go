package blocks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

// GithubTokenEnv is consulted when the block config has no token.
const GithubTokenEnv = "BARLINE_GITHUB_TOKEN"

const githubPageSize = 100

// githubMaxPages bounds pagination against a misbehaving server.
const githubMaxPages = 50

var githubReasons = []string{
	"assign", "author", "comment", "invitation", "manual", "mention",
	"review_requested", "security_alert", "state_change", "subscribed", "team_mention",
}

type githubConfig struct {
	Interval          config.Duration `yaml:"interval"`
	APIServer         string          `yaml:"api_server"`
	Format            string          `yaml:"format"`
	HideIfTotalIsZero bool            `yaml:"hide_if_total_is_zero"`
	Token             string          `yaml:"token"`
	Good              []string        `yaml:"good"`
	Info              []string        `yaml:"info"`
	Warning           []string        `yaml:"warning"`
	Critical          []string        `yaml:"critical"`
}

type githubSettings struct {
	interval  time.Duration
	apiServer string
	format    *block.Template
	hideZero  bool
	token     string
	// checked in order; the first list with a non-zero reason wins
	levels []githubLevel
}

type githubLevel struct {
	state   block.State
	reasons []string
}

func parseGithub(p config.Params) (githubSettings, error) {
	var cfg githubConfig
	if err := p.Decode(&cfg); err != nil {
		return githubSettings{}, err
	}
	s := githubSettings{
		apiServer: strings.TrimRight(cfg.APIServer, "/"),
		hideZero:  cfg.HideIfTotalIsZero,
		token:     cfg.Token,
		levels: []githubLevel{
			{block.StateCritical, cfg.Critical},
			{block.StateWarning, cfg.Warning},
			{block.StateInfo, cfg.Info},
			{block.StateGood, cfg.Good},
		},
	}
	if s.apiServer == "" {
		s.apiServer = "https://api.github.com"
	}
	if s.token == "" {
		s.token = os.Getenv(GithubTokenEnv)
	}
	if s.token == "" {
		return s, fmt.Errorf("missing token (set token or %s)", GithubTokenEnv)
	}

	var err error
	if s.format, err = template(cfg.Format, "{total}", append([]string{"total"}, githubReasons...)...); err != nil {
		return s, err
	}
	s.interval, err = intervalOr(cfg.Interval, 30*time.Second)
	return s, err
}

type githubBlock struct {
	textWidget
	noClick
	settings githubSettings
	client   *http.Client
}

func newGithub(_ context.Context, env block.Env, p config.Params) (block.Block, error) {
	s, err := parseGithub(p)
	if err != nil {
		return nil, err
	}
	client := http.DefaultClient
	if env.Shared != nil && env.Shared.HTTP != nil {
		client = env.Shared.HTTP
	}
	return &githubBlock{
		textWidget: textWidget{interval: s.interval, hidden: true, widget: block.Widget{Text: "x"}},
		settings:   s,
		client:     client,
	}, nil
}

func (b *githubBlock) fetchPage(ctx context.Context, page int) (gjson.Result, error) {
	url := fmt.Sprintf("%s/notifications?per_page=%d&page=%d", b.settings.apiServer, githubPageSize, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Authorization", "token "+b.settings.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := b.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "message").String()
		return gjson.Result{}, fmt.Errorf("github returned %s: %s", resp.Status, msg)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("failed to get JSON")
	}
	return gjson.ParseBytes(body), nil
}

func (b *githubBlock) Update(ctx context.Context) error {
	counts := make(map[string]int)
	total := 0
	for page := 1; page <= githubMaxPages; page++ {
		doc, err := b.fetchPage(ctx, page)
		if err != nil {
			return err
		}
		reasons := doc.Get("#.reason").Array()
		if len(reasons) == 0 {
			break
		}
		for _, r := range reasons {
			counts[r.String()]++
			total++
		}
	}

	if total == 0 && b.settings.hideZero {
		b.hidden = true
		return nil
	}
	b.hidden = false

	values := block.Values{"total": block.Number(float64(total), 0)}
	for _, reason := range githubReasons {
		values[reason] = block.Number(float64(counts[reason]), 0)
	}
	text, err := b.settings.format.Render(values)
	if err != nil {
		return err
	}
	b.widget.Text = text
	b.widget.State = githubState(b.settings.levels, counts)
	return nil
}

func githubState(levels []githubLevel, counts map[string]int) block.State {
	for _, lvl := range levels {
		for _, reason := range lvl.reasons {
			if counts[reason] > 0 {
				return lvl.state
			}
		}
	}
	return block.StateIdle
}
