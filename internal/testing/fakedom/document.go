// File: internal/testing/fakedom/document.go

// Package fakedom is a deterministic in-memory DOM implementing the browser
// capability interface. Markup is parsed with x/net/html, CSS is matched with
// goquery/cascadia and XPath with htmlquery. Behaviour is scripted through
// click, key, input and scroll handlers, so protocol tests can simulate
// re-renders, popups and virtualized lists without a browser.
package fakedom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

// ErrScriptUnsupported is returned by Eval for scripts the fake does not emulate.
var ErrScriptUnsupported = errors.New("fakedom: script evaluation is not emulated")

// ClickKind distinguishes the three click levels of the capability.
type ClickKind string

const (
	NativeClick    ClickKind = "native"
	SyntheticClick ClickKind = "synthetic"
	PointerClick   ClickKind = "pointer"
)

// ClickRecord is one delivered click.
type ClickRecord struct {
	Kind   ClickKind
	Target string
}

// Handler reacts to an event on the node matched by its selector.
type Handler func(d *Document, n *html.Node)

type handler struct {
	event    string
	selector string
	fn       Handler
}

type scrollState struct {
	top, height, client float64
	onScroll            func(d *Document, top float64)
}

// Document is the fake page. It is safe for concurrent use; handlers run
// without the document lock held so they may mutate the tree freely.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	url      string
	history  []string
	handlers []handler
	blocked  map[ClickKind][]string
	scroll   map[*html.Node]*scrollState
	clicks   []ClickRecord
	keys     []string
	closed   bool
}

// New parses markup into a document. It panics on malformed input, which
// only happens on programming errors in test fixtures.
func New(markup string) *Document {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		panic(fmt.Sprintf("fakedom: parse fixture: %v", err))
	}
	return &Document{
		root:    root,
		url:     "about:blank",
		blocked: make(map[ClickKind][]string),
		scroll:  make(map[*html.Node]*scrollState),
	}
}

var _ driver.Driver = (*Document)(nil)

// -- driver.Driver --

func (d *Document) FindAll(ctx context.Context, sel driver.Selector) ([]driver.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findLocked(d.root, sel)
}

func (d *Document) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	d.url = url
	d.history = append(d.history, url)
	d.mu.Unlock()
	d.fire("navigate", d.root)
	return nil
}

func (d *Document) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

// Eval understands document.readyState; anything else is unsupported.
func (d *Document) Eval(ctx context.Context, expr string) (any, error) {
	if strings.Contains(expr, "document.readyState") {
		return "complete", nil
	}
	return nil, ErrScriptUnsupported
}

// Screenshot returns the PNG signature so callers can persist something recognisable.
func (d *Document) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (d *Document) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// -- Scripting API --

// SetURL changes the current URL without firing navigate handlers.
func (d *Document) SetURL(url string) {
	d.mu.Lock()
	d.url = url
	d.mu.Unlock()
}

// Closed reports whether Close was called.
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// History lists navigated URLs.
func (d *Document) History() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.history...)
}

// OnClick registers fn for clicks on nodes matching css (delegated: clicks on
// descendants bubble up to the matching ancestor).
func (d *Document) OnClick(css string, fn Handler) { d.on("click", css, fn) }

// OnKey registers fn for a key chord pressed on nodes matching css.
func (d *Document) OnKey(css, chord string, fn Handler) { d.on("key:"+chord, css, fn) }

// OnInput registers fn for input events on nodes matching css.
func (d *Document) OnInput(css string, fn Handler) { d.on("input", css, fn) }

// OnNavigate registers fn for Navigate calls.
func (d *Document) OnNavigate(fn Handler) { d.on("navigate", "", fn) }

func (d *Document) on(event, css string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, handler{event: event, selector: css, fn: fn})
}

// BlockClick makes the given click level fail with ErrNotInteractable on
// nodes matching css, as an overlay or animation would.
func (d *Document) BlockClick(kind ClickKind, css string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blocked[kind] = append(d.blocked[kind], css)
}

// Unblock removes every block for kind.
func (d *Document) Unblock(kind ClickKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.blocked, kind)
}

// Clicks returns the delivered clicks in order.
func (d *Document) Clicks() []ClickRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ClickRecord(nil), d.clicks...)
}

// Keys returns the pressed chords in order.
func (d *Document) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.keys...)
}

// Find returns every attached node matching css.
func (d *Document) Find(css string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return goquery.NewDocumentFromNode(d.root).Find(css).Nodes
}

// MustFind returns the first node matching css or panics.
func (d *Document) MustFind(css string) *html.Node {
	nodes := d.Find(css)
	if len(nodes) == 0 {
		panic("fakedom: nothing matches " + css)
	}
	return nodes[0]
}

// FindIn returns nodes matching css below n.
func (d *Document) FindIn(n *html.Node, css string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return goquery.NewDocumentFromNode(n).Find(css).Nodes
}

// Attr reads an attribute.
func (d *Document) Attr(n *html.Node, key string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return attr(n, key)
}

// SetAttr writes an attribute.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	setAttr(n, key, val)
}

// RemoveAttr deletes an attribute.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	removeAttr(n, key)
}

// HasClass reports whether the class list contains c.
func (d *Document) HasClass(n *html.Node, c string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return hasClass(n, c)
}

// AddClass appends c to the class list.
func (d *Document) AddClass(n *html.Node, c string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !hasClass(n, c) {
		setAttr(n, "class", strings.TrimSpace(attr(n, "class")+" "+c))
	}
}

// RemoveClass drops c from the class list.
func (d *Document) RemoveClass(n *html.Node, c string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var keep []string
	for _, f := range strings.Fields(attr(n, "class")) {
		if f != c {
			keep = append(keep, f)
		}
	}
	setAttr(n, "class", strings.Join(keep, " "))
}

// Show clears the hidden attribute.
func (d *Document) Show(n *html.Node) { d.RemoveAttr(n, "hidden") }

// Hide sets the hidden attribute.
func (d *Document) Hide(n *html.Node) { d.SetAttr(n, "hidden", "") }

// SetText replaces the children of n with a single text node.
func (d *Document) SetText(n *html.Node, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// TextOf returns the text content of n.
func (d *Document) TextOf(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return textContent(n)
}

// Remove detaches n; existing handles to it become stale.
func (d *Document) Remove(n *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// AppendHTML parses markup in the context of parent and appends the result.
func (d *Document) AppendHTML(parent *html.Node, markup string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return appendHTML(parent, markup)
}

// ReplaceChildren swaps every child of parent for the parsed markup. Handles
// to the old children become stale, as after a framework re-render.
func (d *Document) ReplaceChildren(parent *html.Node, markup string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		c = next
	}
	return appendHTML(parent, markup)
}

// Rerender replaces n by a fresh copy of itself, invalidating handles to n.
func (d *Document) Rerender(n *html.Node) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	parent := n.Parent
	if parent == nil {
		return n
	}
	nodes, err := html.ParseFragment(&buf, parent)
	if err != nil || len(nodes) == 0 {
		return n
	}
	parent.InsertBefore(nodes[0], n)
	parent.RemoveChild(n)
	return nodes[0]
}

// SetScrollable gives n scroll metrics; onScroll runs after every ScrollTo.
func (d *Document) SetScrollable(n *html.Node, scrollHeight, clientHeight float64, onScroll func(d *Document, top float64)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scroll[n] = &scrollState{height: scrollHeight, client: clientHeight, onScroll: onScroll}
}

// -- internals --

func (d *Document) findLocked(root *html.Node, sel driver.Selector) ([]driver.Element, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	var nodes []*html.Node
	if css, ok := sel.AsCSS(); ok {
		// goquery matches nothing for an invalid selector, like a page with no hits.
		nodes = goquery.NewDocumentFromNode(root).Find(css).Nodes
	} else {
		found, err := htmlquery.QueryAll(root, sel.Expr)
		if err != nil {
			return nil, fmt.Errorf("fakedom: xpath %q: %w", sel.Expr, err)
		}
		for _, n := range found {
			if n.Type == html.ElementNode {
				nodes = append(nodes, n)
			}
		}
	}
	out := make([]driver.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{d: d, n: n})
	}
	return out, nil
}

// fire runs every handler for event whose selector matches n or one of its
// ancestors, innermost first.
func (d *Document) fire(event string, n *html.Node) {
	type call struct {
		fn     Handler
		target *html.Node
	}
	d.mu.Lock()
	var calls []call
	for cur := n; cur != nil; cur = cur.Parent {
		for _, h := range d.handlers {
			if h.event != event {
				continue
			}
			if h.selector == "" {
				if cur == n {
					calls = append(calls, call{h.fn, cur})
				}
				continue
			}
			if cur.Type == html.ElementNode && matches(cur, h.selector) {
				calls = append(calls, call{h.fn, cur})
			}
		}
	}
	d.mu.Unlock()
	for _, c := range calls {
		c.fn(d, c.target)
	}
}

func (d *Document) attachedLocked(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}
	return false
}

func (d *Document) blockedLocked(kind ClickKind, n *html.Node) bool {
	for _, css := range d.blocked[kind] {
		if matches(n, css) {
			return true
		}
	}
	return false
}

func appendHTML(parent *html.Node, markup string) []*html.Node {
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		panic(fmt.Sprintf("fakedom: parse fragment: %v", err))
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nodes
}

func matches(n *html.Node, css string) bool {
	return goquery.NewDocumentFromNode(n).Is(css)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

func hasClass(n *html.Node, c string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == c {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	return goquery.NewDocumentFromNode(n).Text()
}

// hidden reports whether n or an ancestor is hidden via the hidden attribute
// or an inline display:none.
func hidden(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if hasAttr(cur, "hidden") {
			return true
		}
		style := strings.ReplaceAll(attr(cur, "style"), " ", "")
		if strings.Contains(style, "display:none") {
			return true
		}
	}
	return false
}

func floatAttr(n *html.Node, key string, def float64) float64 {
	if v := attr(n, key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
