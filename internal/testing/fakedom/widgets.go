// File: internal/testing/fakedom/widgets.go
package fakedom

import (
	"fmt"
	"html"
	"strings"
	"sync"

	xhtml "golang.org/x/net/html"
)

// DropdownConfig describes a dropdown widget in the markup style of the
// target application's component library.
type DropdownConfig struct {
	TestID  string
	InputID string
	Options []string
	Multi   bool
	// Search adds a filter input to the popup that narrows the options.
	Search bool
	// Virtual renders the options through a VirtualList.
	Virtual      bool
	RowHeight    float64
	ClientHeight float64
	// IgnoreClicks makes trigger clicks do nothing, so only the keyboard opens the popup.
	IgnoreClicks bool
	// NoAssociation drops the id link between input and popup.
	NoAssociation bool
	// Selected pre-selects options.
	Selected []string
}

// DropdownWidget is a mounted, scripted dropdown.
type DropdownWidget struct {
	mu       sync.Mutex
	d        *Document
	cfg      DropdownConfig
	Block    *xhtml.Node
	Input    *xhtml.Node
	Popup    *xhtml.Node
	List     *xhtml.Node
	Virtual  *VirtualList
	selected map[string]bool
	filter   string
	opens    int
}

const (
	selectAllText = "Hepsini seç"
	clearAllText  = "Tümünün seçimini kaldır"
)

// MountDropdown appends a dropdown to the body and wires its behaviour.
func (d *Document) MountDropdown(cfg DropdownConfig) *DropdownWidget {
	if cfg.RowHeight == 0 {
		cfg.RowHeight = 30
	}
	if cfg.ClientHeight == 0 {
		cfg.ClientHeight = 150
	}
	w := &DropdownWidget{d: d, cfg: cfg, selected: make(map[string]bool)}
	for _, s := range cfg.Selected {
		w.selected[s] = true
	}

	popupID := cfg.InputID + "_popup"
	if cfg.NoAssociation {
		popupID = cfg.InputID + "_overlay"
	}
	var search, selectAll string
	if cfg.Search {
		search = `<span class="e-filter-parent"><input class="e-input-filter" value=""></span>`
	}
	if cfg.Multi {
		selectAll = `<div class="e-selectall-parent"><span class="e-all-text"></span></div>`
	}
	body := d.MustFind("body")
	nodes := d.AppendHTML(body, fmt.Sprintf(`
<div data-testid="%[1]s" class="e-ddl e-input-group" aria-expanded="false">
  <input id="%[2]s" class="e-input" value="" aria-expanded="false">
  <span class="e-input-group-icon e-ddl-icon"></span>
</div>
<div id="%[3]s" class="e-popup" hidden>%[4]s%[5]s<div class="e-content"><ul role="listbox" class="e-list-parent"></ul></div></div>`,
		cfg.TestID, cfg.InputID, popupID, search, selectAll))
	for _, n := range nodes {
		if n.Type != xhtml.ElementNode {
			continue
		}
		if attr(n, "data-testid") == cfg.TestID {
			w.Block = n
		} else if attr(n, "id") == popupID {
			w.Popup = n
		}
	}
	w.Input = d.FindIn(w.Block, "input")[0]
	w.List = d.FindIn(w.Popup, "ul")[0]

	if cfg.Virtual {
		w.Virtual = d.MountVirtualList(fmt.Sprintf("#%s ul", popupID), cfg.Options, cfg.RowHeight, cfg.ClientHeight, nil)
	}
	w.render()

	blockSel := fmt.Sprintf(`[data-testid="%s"]`, cfg.TestID)
	popupSel := "#" + popupID
	if !cfg.IgnoreClicks {
		d.OnClick(blockSel, func(d *Document, n *xhtml.Node) { w.Toggle() })
	}
	d.OnKey(blockSel+" input", "Alt+ArrowDown", func(d *Document, n *xhtml.Node) { w.Open() })
	d.OnKey(blockSel+" input", "Escape", func(d *Document, n *xhtml.Node) { w.Close() })
	d.OnKey(popupSel, "Escape", func(d *Document, n *xhtml.Node) { w.Close() })
	d.OnClick(popupSel+" li", func(d *Document, n *xhtml.Node) {
		w.choose(strings.TrimSpace(d.TextOf(n)))
	})
	d.OnClick(popupSel+" .e-selectall-parent", func(d *Document, n *xhtml.Node) { w.toggleAll() })
	d.OnInput(popupSel+" .e-input-filter", func(d *Document, n *xhtml.Node) {
		w.mu.Lock()
		w.filter = d.Attr(n, "value")
		w.mu.Unlock()
		w.render()
	})
	return w
}

// IsOpen reports whether the popup is shown.
func (w *DropdownWidget) IsOpen() bool {
	return !w.d.hiddenNode(w.Popup)
}

// Opens counts how often the popup was opened.
func (w *DropdownWidget) Opens() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opens
}

// Value is the committed input value.
func (w *DropdownWidget) Value() string {
	return w.d.Attr(w.Input, "value")
}

// Selected lists selected options in option order.
func (w *DropdownWidget) Selected() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, o := range w.cfg.Options {
		if w.selected[o] {
			out = append(out, o)
		}
	}
	return out
}

func (w *DropdownWidget) Open() {
	w.mu.Lock()
	w.opens++
	w.mu.Unlock()
	w.d.Show(w.Popup)
	w.d.SetAttr(w.Block, "aria-expanded", "true")
	w.d.SetAttr(w.Input, "aria-expanded", "true")
	w.render()
}

func (w *DropdownWidget) Close() {
	w.d.Hide(w.Popup)
	w.d.SetAttr(w.Block, "aria-expanded", "false")
	w.d.SetAttr(w.Input, "aria-expanded", "false")
}

func (w *DropdownWidget) Toggle() {
	if w.IsOpen() {
		w.Close()
		return
	}
	w.Open()
}

func (w *DropdownWidget) choose(label string) {
	if !w.cfg.Multi {
		w.mu.Lock()
		w.selected = map[string]bool{label: true}
		w.mu.Unlock()
		w.Close()
		w.d.SetAttr(w.Input, "value", label)
		return
	}
	w.mu.Lock()
	w.selected[label] = !w.selected[label]
	w.mu.Unlock()
	w.render()
}

func (w *DropdownWidget) toggleAll() {
	w.mu.Lock()
	all := w.allSelectedLocked()
	for _, o := range w.cfg.Options {
		w.selected[o] = !all
	}
	w.mu.Unlock()
	w.render()
}

func (w *DropdownWidget) allSelectedLocked() bool {
	for _, o := range w.cfg.Options {
		if !w.selected[o] {
			return false
		}
	}
	return len(w.cfg.Options) > 0
}

// render redraws options, the select-all caption and the committed value of
// multi-selects from the widget state.
func (w *DropdownWidget) render() {
	w.mu.Lock()
	filter := strings.ToLower(w.filter)
	var visible []string
	for _, o := range w.cfg.Options {
		if filter == "" || strings.Contains(strings.ToLower(o), filter) {
			visible = append(visible, o)
		}
	}
	selected := make(map[string]bool, len(w.selected))
	for k, v := range w.selected {
		selected[k] = v
	}
	all := w.allSelectedLocked()
	multi := w.cfg.Multi
	w.mu.Unlock()

	if w.Virtual != nil {
		for _, o := range w.cfg.Options {
			w.Virtual.SetSelected(o, selected[o])
		}
		w.Virtual.Rerender()
	} else {
		var b strings.Builder
		for i, o := range visible {
			b.WriteString(DefaultRow(i, o, selected[o]))
		}
		w.d.ReplaceChildren(w.List, b.String())
	}

	if multi {
		caption := selectAllText
		if all {
			caption = clearAllText
		}
		if nodes := w.d.FindIn(w.Popup, ".e-all-text"); len(nodes) > 0 {
			w.d.SetText(nodes[0], caption)
		}
		var chosen []string
		for _, o := range w.cfg.Options {
			if selected[o] {
				chosen = append(chosen, o)
			}
		}
		w.d.SetAttr(w.Input, "value", strings.Join(chosen, ", "))
	}
}

func (d *Document) hiddenNode(n *xhtml.Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return hidden(n) || !d.attachedLocked(n)
}

// ChipsWidget is a chip collection whose close buttons remove chips.
type ChipsWidget struct {
	d     *Document
	Block *xhtml.Node
}

// MountChips appends a chip collection with the given labels.
func (d *Document) MountChips(testID string, labels []string) *ChipsWidget {
	var b strings.Builder
	for _, l := range labels {
		esc := html.EscapeString(l)
		fmt.Fprintf(&b, `<span class="e-chips" title="%s"><span class="e-chipcontent">%s</span><span class="e-chips-close"></span></span>`, esc, esc)
	}
	nodes := d.AppendHTML(d.MustFind("body"), fmt.Sprintf(
		`<div data-testid="%s" class="e-multiselect"><div class="e-chips-collection">%s</div></div>`, testID, b.String()))
	w := &ChipsWidget{d: d, Block: nodes[0]}
	d.OnClick(fmt.Sprintf(`[data-testid="%s"] .e-chips-close`, testID), func(d *Document, n *xhtml.Node) {
		if n.Parent != nil {
			d.Remove(n.Parent)
		}
	})
	return w
}

// Labels lists the remaining chip labels.
func (w *ChipsWidget) Labels() []string {
	var out []string
	for _, n := range w.d.FindIn(w.Block, ".e-chips") {
		out = append(out, w.d.Attr(n, "title"))
	}
	return out
}
