package driver

import (
	"fmt"
	"strings"
)

// Key is one unit of a key sequence: either literal text or a named key.
type Key struct {
	Text string // literal characters, typed one keystroke at a time
	Name string // named key such as "Enter"; empty for literal text
}

// IsNamed reports whether the key is a named key press.
func (k Key) IsNamed() bool {
	return k.Name != ""
}

var namedKeys = map[string]string{
	"enter":      "Enter",
	"end":        "End",
	"home":       "Home",
	"tab":        "Tab",
	"esc":        "Escape",
	"backspace":  "Backspace",
	"del":        "Delete",
	"selectall":  "ControlOrMeta+a",
	"leftarrow":  "ArrowLeft",
	"rightarrow": "ArrowRight",
	"uparrow":    "ArrowUp",
	"downarrow":  "ArrowDown",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",
}

// ParseKeys splits text into literal runs and named keys written as
// {enter}, {end}, {tab} and so on. A literal "{" is written as "{{}".
func ParseKeys(text string) ([]Key, error) {
	var keys []Key
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			keys = append(keys, Key{Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); {
		if text[i] != '{' {
			lit.WriteByte(text[i])
			i++
			continue
		}
		end := strings.IndexByte(text[i+1:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated key token at offset %d", i)
		}
		token := text[i+1 : i+1+end]
		i += end + 2
		if token == "{" {
			lit.WriteByte('{')
			continue
		}
		name, ok := namedKeys[strings.ToLower(token)]
		if !ok {
			return nil, fmt.Errorf("unknown key token {%s}", token)
		}
		flush()
		keys = append(keys, Key{Name: name})
	}
	flush()
	return keys, nil
}

// EscapeKeys makes arbitrary text safe to pass as literal key input.
func EscapeKeys(text string) string {
	return strings.ReplaceAll(text, "{", "{{}")
}
