// File: internal/testing/fakedom/virtual.go
package fakedom

import (
	"fmt"
	"html"
	"math"
	"sync"

	xhtml "golang.org/x/net/html"
)

// RowFunc renders the markup of one row of a virtual list.
type RowFunc func(index int, label string, selected bool) string

// DefaultRow renders a list option the way the dropdown widgets do.
func DefaultRow(index int, label string, selected bool) string {
	class := "e-list-item"
	if selected {
		class += " e-active"
	}
	return fmt.Sprintf(`<li role="option" class="%s" data-value="%s">%s</li>`,
		class, html.EscapeString(label), html.EscapeString(label))
}

// VirtualList renders only the rows inside the container's viewport, the way
// virtualization libraries do. Every scroll re-renders the window, so handles
// to previously rendered rows go stale.
type VirtualList struct {
	mu        sync.Mutex
	doc       *Document
	container *xhtml.Node
	labels    []string
	selected  map[string]bool
	rowHeight float64
	client    float64
	row       RowFunc
	renders   int
	top       float64
}

// MountVirtualList turns the first node matching containerCSS into a
// virtualized container over labels.
func (d *Document) MountVirtualList(containerCSS string, labels []string, rowHeight, clientHeight float64, row RowFunc) *VirtualList {
	if row == nil {
		row = DefaultRow
	}
	v := &VirtualList{
		doc:       d,
		container: d.MustFind(containerCSS),
		labels:    append([]string(nil), labels...),
		selected:  make(map[string]bool),
		rowHeight: rowHeight,
		client:    clientHeight,
		row:       row,
	}
	d.SetScrollable(v.container, float64(len(labels))*rowHeight, clientHeight, func(d *Document, top float64) {
		v.Render(top)
	})
	v.Render(0)
	return v
}

// Render re-renders the rows visible at scroll offset top.
func (v *VirtualList) Render(top float64) {
	v.mu.Lock()
	v.top = top
	first := int(math.Floor(top / v.rowHeight))
	last := int(math.Ceil((top+v.client)/v.rowHeight)) - 1
	if last >= len(v.labels) {
		last = len(v.labels) - 1
	}
	markup := ""
	for i := first; i <= last && i >= 0; i++ {
		markup += v.row(i, v.labels[i], v.selected[v.labels[i]])
	}
	v.renders++
	v.mu.Unlock()

	nodes := v.doc.ReplaceChildren(v.container, markup)
	i := first
	for _, n := range nodes {
		if n.Type != xhtml.ElementNode {
			continue
		}
		v.doc.SetAttr(n, "data-y", fmt.Sprintf("%.0f", float64(i)*v.rowHeight-top))
		i++
	}
}

// Rerender renders the current window again, e.g. after a selection change.
func (v *VirtualList) Rerender() {
	v.mu.Lock()
	top := v.top
	v.mu.Unlock()
	v.Render(top)
}

// Labels returns every logical row label.
func (v *VirtualList) Labels() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.labels...)
}

// SetSelected marks label as selected; it survives re-renders.
func (v *VirtualList) SetSelected(label string, on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected[label] = on
}

// Selected lists the selected labels in list order.
func (v *VirtualList) Selected() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for _, l := range v.labels {
		if v.selected[l] {
			out = append(out, l)
		}
	}
	return out
}

// Renders counts how often the window was rendered.
func (v *VirtualList) Renders() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renders
}
