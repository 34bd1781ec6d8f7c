package restart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithNoInit(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"adds flag", []string{"barline"}, []string{"barline", "--no-init"}},
		{"keeps args", []string{"barline", "--config", "x.toml"}, []string{"barline", "--config", "x.toml", "--no-init"}},
		{"added once", []string{"barline", "--no-init"}, []string{"barline", "--no-init"}},
		{"empty", nil, []string{"--no-init"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WithNoInit(tt.in))
		})
	}
}

func TestWithNoInitDoesNotAlias(t *testing.T) {
	in := make([]string, 1, 4)
	in[0] = "barline"
	out := WithNoInit(in)
	out[0] = "changed"
	assert.Equal(t, "barline", in[0])
}
