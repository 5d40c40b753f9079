package tui_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/troupe/internal/presentation/tui"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/dsl"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	b := dsl.Machine("player").Version("2.0.0")
	on := b.State("on").On("OFF", "off")
	on.State("paused").On("PLAY", "playing").Describe("Waiting for the user")
	on.State("playing").On("PAUSE", "paused").On("TICK", "").Tags("busy")
	b.State("off").On("ON", "on")

	m, err := b.Compile(machine.Implementations{})
	require.NoError(t, err)

	md := tui.Describe(m)
	assert.Contains(t, md, "# player `v2.0.0`")
	assert.Contains(t, md, "**Events:** `OFF`, `ON`, `PAUSE`, `PLAY`, `TICK`")
	assert.Contains(t, md, "## `player.on` _compound_ (initial: `paused`)")
	assert.Contains(t, md, "### `player.on.paused` _atomic_")
	assert.Contains(t, md, "Waiting for the user")
	assert.Contains(t, md, "| `PLAY` | `player.on.playing` |")
	assert.Contains(t, md, "| `TICK` | _(stay)_ |")
	assert.Contains(t, md, "Tags: busy")
}

func TestRenderer_PassThroughWithoutTerminal(t *testing.T) {
	render := tui.NewRenderer(false)
	out, err := render("# title")
	require.NoError(t, err)
	assert.Equal(t, "# title", out)
}

func TestBannerAndStatus(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf, "1.2.3")
	assert.Contains(t, buf.String(), "1.2.3")

	assert.Contains(t, tui.Status(domain.StatusDone), "done")
	assert.Contains(t, tui.Check(true), "✓")
}
