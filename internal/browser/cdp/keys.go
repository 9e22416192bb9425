// File: internal/browser/cdp/keys.go
package cdp

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
)

// keyDef describes one key for Input.dispatchKeyEvent.
type keyDef struct {
	Key  string
	Code string
	VK   int64
	Text string
}

// namedKeys covers the non-printable keys the engine sends.
var namedKeys = map[string]keyDef{
	"Escape":     {Key: "Escape", Code: "Escape", VK: 27},
	"Enter":      {Key: "Enter", Code: "Enter", VK: 13, Text: "\r"},
	"Tab":        {Key: "Tab", Code: "Tab", VK: 9},
	"Backspace":  {Key: "Backspace", Code: "Backspace", VK: 8},
	"Delete":     {Key: "Delete", Code: "Delete", VK: 46},
	"ArrowDown":  {Key: "ArrowDown", Code: "ArrowDown", VK: 40},
	"ArrowUp":    {Key: "ArrowUp", Code: "ArrowUp", VK: 38},
	"ArrowLeft":  {Key: "ArrowLeft", Code: "ArrowLeft", VK: 37},
	"ArrowRight": {Key: "ArrowRight", Code: "ArrowRight", VK: 39},
	"Home":       {Key: "Home", Code: "Home", VK: 36},
	"End":        {Key: "End", Code: "End", VK: 35},
	"PageUp":     {Key: "PageUp", Code: "PageUp", VK: 33},
	"PageDown":   {Key: "PageDown", Code: "PageDown", VK: 34},
	"Space":      {Key: " ", Code: "Space", VK: 32, Text: " "},
}

var modifierNames = map[string]input.Modifier{
	"alt":     input.ModifierAlt,
	"control": input.ModifierCtrl,
	"ctrl":    input.ModifierCtrl,
	"meta":    input.ModifierMeta,
	"shift":   input.ModifierShift,
}

// chord is a parsed key combination such as "Alt+ArrowDown".
type chord struct {
	Modifiers input.Modifier
	Key       keyDef
}

// parseChord splits "Mod+Mod+Key". The last segment is the key; a lone "+"
// is the plus key itself.
func parseChord(s string) (chord, error) {
	if s == "" {
		return chord{}, fmt.Errorf("empty key chord")
	}
	var parts []string
	if s == "+" {
		parts = []string{"+"}
	} else if strings.HasSuffix(s, "++") {
		parts = append(strings.Split(strings.TrimSuffix(s, "++"), "+"), "+")
	} else {
		parts = strings.Split(s, "+")
	}

	var c chord
	for _, m := range parts[:len(parts)-1] {
		mod, ok := modifierNames[strings.ToLower(strings.TrimSpace(m))]
		if !ok {
			return chord{}, fmt.Errorf("unknown modifier %q in chord %q", m, s)
		}
		c.Modifiers |= mod
	}

	key := parts[len(parts)-1]
	if def, ok := namedKeys[key]; ok {
		c.Key = def
		return c, nil
	}
	if utf8.RuneCountInString(key) != 1 {
		return chord{}, fmt.Errorf("unknown key %q in chord %q", key, s)
	}
	r, _ := utf8.DecodeRuneInString(key)
	c.Key = keyDef{Key: key, Text: key}
	upper := strings.ToUpper(key)
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		c.Key.Code = "Key" + upper
		c.Key.VK = int64(upper[0])
	case r >= '0' && r <= '9':
		c.Key.Code = "Digit" + key
		c.Key.VK = int64(r)
	}
	// Modified printable keys are shortcuts and must not insert text.
	if c.Modifiers&(input.ModifierAlt|input.ModifierCtrl|input.ModifierMeta) != 0 {
		c.Key.Text = ""
	}
	return c, nil
}

// events returns the keyDown/keyUp pair for the chord.
func (c chord) events() []*input.DispatchKeyEventParams {
	downType := input.KeyRawDown
	if c.Key.Text != "" {
		downType = input.KeyDown
	}
	down := input.DispatchKeyEvent(downType).
		WithModifiers(c.Modifiers).
		WithKey(c.Key.Key).
		WithCode(c.Key.Code).
		WithWindowsVirtualKeyCode(c.Key.VK)
	if c.Key.Text != "" {
		down = down.WithText(c.Key.Text)
	}
	up := input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(c.Modifiers).
		WithKey(c.Key.Key).
		WithCode(c.Key.Code).
		WithWindowsVirtualKeyCode(c.Key.VK)
	return []*input.DispatchKeyEventParams{down, up}
}
