// Package doctor validates a barline configuration without starting the bar.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mattjoyce/barline/internal/auth"
	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
	"github.com/mattjoyce/barline/internal/signals"
	"github.com/mattjoyce/barline/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Hash     string  `json:"config_hash,omitempty"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against the registered block types.
type Doctor struct {
	cfg      *config.Config
	registry *block.Registry
}

// New creates a Doctor from a loaded config and block registry.
func New(cfg *config.Config, registry *block.Registry) *Doctor {
	return &Doctor{cfg: cfg, registry: registry}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	if d.cfg.Path != "" {
		if h, err := config.Hash(d.cfg.Path); err == nil {
			r.Hash = h
		}
	}

	d.validateBlocks(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.validateState(r)
	d.warnEmptyBar(r)
	d.warnSharedSignals(r)
	d.warnOverriddenClicks(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func blockField(i int, bc config.BlockConfig) string {
	return fmt.Sprintf("block[%d] (%s)", i, bc.Type)
}

// validateBlocks dry-runs every block's param decoding.
func (d *Doctor) validateBlocks(r *Result) {
	maxSignal := signals.MaxNumbered()
	for i, bc := range d.cfg.Blocks {
		field := blockField(i, bc)

		if bc.Signal != nil {
			switch {
			case *bc.Signal < 0:
				d.addError(r, "signals", field+".signal",
					fmt.Sprintf("signal must be >= 0 (got %d)", *bc.Signal))
			case maxSignal < 0:
				d.addWarning(r, "signals", field+".signal",
					"real-time signals are unavailable on this platform; the signal filter never fires")
			case *bc.Signal > maxSignal:
				d.addError(r, "signals", field+".signal",
					fmt.Sprintf("signal %d reaches SIGRTMAX (max %d)", *bc.Signal, maxSignal))
			}
		}

		if bc.Type == "custom" && strings.TrimSpace(bc.Params.String("command")) == "" && bc.Params["cycle"] == nil {
			d.addError(r, "blocks", field+".command", "custom block needs a non-empty command")
			continue
		}

		if err := d.registry.Check(bc); err != nil {
			category := "blocks"
			if errors.Is(err, block.ErrUnknownType) {
				category = "block_types"
			}
			d.addError(r, category, field, err.Error())
		}
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if auth.Open(d.cfg.API) {
		d.addWarning(r, "api", "api.token", "API enabled but no authentication configured")
	}
}

// validateTokenScopes checks scopes name something the API enforces.
func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Tokens {
		if token.Token == "" {
			d.addWarning(r, "env_vars", fmt.Sprintf("api.tokens[%d].token", i),
				"token value is empty (possibly unresolved environment variable)")
		}
		for j, scope := range token.Scopes {
			if !auth.KnownScope(scope) {
				d.addError(r, "token_scopes", fmt.Sprintf("api.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q (expected blocks:ro, blocks:rw, events:ro or *)", scope))
			}
		}
	}
}

func (d *Doctor) validateState(r *Result) {
	if d.cfg.State.Path == "" {
		return
	}
	if err := storage.CheckLocalFilesystem(d.cfg.State.Path); err != nil {
		d.addError(r, "state", "state.path", err.Error())
	}
}

func (d *Doctor) warnEmptyBar(r *Result) {
	if len(d.cfg.Blocks) == 0 {
		d.addWarning(r, "blocks", "block", "no blocks configured; the bar will be empty")
	}
}

// warnSharedSignals notes signal numbers that refresh several blocks at once.
func (d *Doctor) warnSharedSignals(r *Result) {
	users := make(map[int][]string)
	for i, bc := range d.cfg.Blocks {
		if bc.Signal != nil && *bc.Signal >= 0 {
			users[*bc.Signal] = append(users[*bc.Signal], blockField(i, bc))
		}
	}
	nums := make([]int, 0, len(users))
	for n, fields := range users {
		if len(fields) > 1 {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	for _, n := range nums {
		d.addWarning(r, "signals", "",
			fmt.Sprintf("signal %d is shared by %s; all of them refresh together", n, strings.Join(users[n], ", ")))
	}
}

// warnOverriddenClicks flags on_click on block types that run it themselves.
func (d *Doctor) warnOverriddenClicks(r *Result) {
	for i, bc := range d.cfg.Blocks {
		if bc.OnClick == "" {
			continue
		}
		def, ok := d.registry.Lookup(bc.Type)
		if !ok || !def.OverridesClick {
			continue
		}
		d.addWarning(r, "click", blockField(i, bc)+".on_click",
			fmt.Sprintf("%s blocks run on_click themselves and refresh afterwards; it is not spawned detached", bc.Type))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}
	if r.Hash != "" {
		fmt.Fprintf(&b, "Fingerprint: %s\n", config.ShortHash(r.Hash))
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
