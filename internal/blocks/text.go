package blocks

import (
	"context"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

type textConfig struct {
	Text      string `yaml:"text"`
	ShortText string `yaml:"short_text"`
	Icon      string `yaml:"icon"`
	State     string `yaml:"state"`
}

func parseText(p config.Params) (block.Widget, error) {
	var cfg textConfig
	if err := p.Decode(&cfg); err != nil {
		return block.Widget{}, err
	}
	w := block.Widget{Text: cfg.Text, ShortText: cfg.ShortText, Icon: cfg.Icon}
	if cfg.State != "" {
		st, err := block.ParseState(cfg.State)
		if err != nil {
			return w, err
		}
		w.State = st
	}
	return w, nil
}

// textBlock never polls. It is mostly useful with on_click.
type textBlock struct {
	textWidget
	noClick
}

func newText(_ context.Context, _ block.Env, p config.Params) (block.Block, error) {
	w, err := parseText(p)
	if err != nil {
		return nil, err
	}
	return &textBlock{textWidget: textWidget{widget: w}}, nil
}

func (b *textBlock) Update(context.Context) error { return nil }
