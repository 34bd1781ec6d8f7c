package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

func TestWriterHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, config.ThemeConfig{}, true)

	require.NoError(t, w.Emit([][]block.Widget{{{Text: "a"}}}))
	require.NoError(t, w.Emit([][]block.Widget{{{Text: "b"}}}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"version":1,"click_events":true}`, lines[0])
	assert.Equal(t, "[", lines[1])
	assert.True(t, strings.HasSuffix(lines[2], ","))
	assert.Contains(t, lines[3], `"full_text":"b"`)
}

func TestWriterNoInit(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, config.ThemeConfig{}, false)
	require.NoError(t, w.Emit([][]block.Widget{{{Text: "x"}}}))

	out := buf.String()
	assert.NotContains(t, out, "version")
	assert.True(t, strings.HasPrefix(out, "[{"))
}

func TestWriterOrderAndTheme(t *testing.T) {
	sep := false
	theme := config.ThemeConfig{CriticalFg: "#ff0000", GoodBg: "#003300", Separator: &sep, SeparatorBlockWidth: 9}
	var buf bytes.Buffer
	w := NewWriter(&buf, theme, false)

	snapshot := [][]block.Widget{
		{{Text: "first", State: block.StateCritical}},
		nil, // failed or skipped slots render nothing
		{{Text: "a", Instance: "0", State: block.StateGood}, {Text: "b", Icon: "ico", Instance: "1"}},
	}
	require.NoError(t, w.Emit(snapshot))

	line := strings.TrimSuffix(strings.TrimSpace(buf.String()), ",")
	var frags []Fragment
	require.NoError(t, json.Unmarshal([]byte(line), &frags))
	require.Len(t, frags, 3)

	assert.Equal(t, "first", frags[0].FullText)
	assert.Equal(t, "0", frags[0].Name)
	assert.Equal(t, "#ff0000", frags[0].Color)

	assert.Equal(t, "2", frags[1].Name)
	assert.Equal(t, "#003300", frags[1].Background)
	assert.Equal(t, "ico b", frags[2].FullText)
	assert.Equal(t, "1", frags[2].Instance)
	require.NotNil(t, frags[2].Separator)
	assert.False(t, *frags[2].Separator)
	assert.Equal(t, 9, frags[2].SeparatorBlockWidth)
}

func TestParseClick(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   block.Click
		wantOK bool
		errors bool
	}{
		{"array open", "[", block.Click{}, false, false},
		{"empty", "", block.Click{}, false, false},
		{"first event", `{"name":"2","instance":"1","button":1}`, block.Click{ID: 2, Button: block.ButtonLeft, Instance: "1"}, true, false},
		{"later event", `,{"name":"0","button":4}`, block.Click{ID: 0, Button: block.ButtonWheelUp}, true, false},
		{"trailing comma", `{"name":"1","instance":"","button":1},`, block.Click{ID: 1, Button: block.ButtonLeft}, true, false},
		{"array close after event", `{"name":"3","button":3}]`, block.Click{ID: 3, Button: block.ButtonRight}, true, false},
		{"foreign name", `{"name":"clock","button":1}`, block.Click{}, false, false},
		{"garbage", `{nope`, block.Click{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := parseClick([]byte(tt.line))
			if tt.errors {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadClicks(t *testing.T) {
	input := "[\n" +
		`{"name":"1","button":1}` + "\n" +
		`,{"name":"bad` + "\n" +
		`,{"name":"0","button":5}` + "\n"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clicks := ReadClicks(ctx, strings.NewReader(input), true)

	var got []block.Click
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case c, ok := <-clicks:
			if !ok {
				done = true
				break
			}
			got = append(got, c)
		case <-timeout:
			t.Fatal("timed out reading clicks")
		}
	}

	assert.Equal(t, []block.Click{
		{ID: 1, Button: block.ButtonLeft},
		{ID: 0, Button: block.ButtonWheelUp}, // inverted from wheel down
	}, got)
}
