package widgets

import (
	"strings"

	"github.com/go-go-golems/deployctl/pkg/tui/styles"
)

type Keybind struct {
	Key   string
	Label string
}

func RenderKeybinds(kbs []Keybind, theme styles.Theme) string {
	parts := make([]string, 0, len(kbs))
	for _, kb := range kbs {
		parts = append(parts, theme.KeybindKey.Render("["+kb.Key+"]")+" "+theme.KeybindDesc.Render(kb.Label))
	}
	return strings.Join(parts, "  ")
}
