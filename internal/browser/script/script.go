// File: internal/browser/script/script.go

// Package script holds the in-page functions both browser drivers run
// against element handles, so staleness and actionability read the same on
// either protocol.
package script

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Exception messages thrown by the functions below. Drivers map them back
// to driver sentinels.
const (
	StaleMarker           = "scalpel:stale"
	NotInteractableMarker = "scalpel:not-interactable"
)

// Classify maps a marker exception onto the matching driver sentinel.
// Anything else is returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, driver.ErrStale) || errors.Is(err, driver.ErrNotInteractable) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, StaleMarker) {
		return fmt.Errorf("%w: %s", driver.ErrStale, msg)
	}
	if i := strings.Index(msg, NotInteractableMarker); i >= 0 {
		reason := strings.TrimPrefix(msg[i+len(NotInteractableMarker):], ": ")
		return fmt.Errorf("%w: %s", driver.ErrNotInteractable, reason)
	}
	return err
}

// guard opens every element script. A detached node is a stale handle.
const guard = `if (!this || !this.isConnected) { throw new Error("` + StaleMarker + `"); }`

// Bind wraps a function body so it runs with `this` bound to the receiver
// and the JSON-encoded args spread as parameters. Arguments are embedded in
// the source, which keeps every call a single round trip.
func Bind(params, body string, args ...any) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode script argument %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	call := "this"
	for _, e := range encoded {
		call += ", " + e
	}
	return fmt.Sprintf("function() { return (function(%s) { %s\n%s }).call(%s); }", params, guard, body, call), nil
}

// FindBody returns the search body for sel, rooted at `this`.
func FindBody(sel driver.Selector) (string, []any, error) {
	if err := sel.Validate(); err != nil {
		return "", nil, err
	}
	if expr, ok := sel.AsCSS(); ok {
		return `return Array.from(this.querySelectorAll(expr));`, []any{expr}, nil
	}
	return `const doc = this.ownerDocument || this;
const r = doc.evaluate(expr, this, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
const out = [];
for (let i = 0; i < r.snapshotLength; i++) {
	const n = r.snapshotItem(i);
	if (n.nodeType === Node.ELEMENT_NODE) out.push(n);
}
return out;`, []any{sel.Expr}, nil
}

const (
	Visible = `const s = window.getComputedStyle(this);
const r = this.getBoundingClientRect();
return s.display !== "none" && s.visibility !== "hidden" && r.height > 0;`

	Attribute    = `const v = this.getAttribute(name); return v === null ? "" : v;`
	HasAttribute = `return this.hasAttribute(name);`
	Text         = `return (this.innerText !== undefined ? this.innerText : this.textContent) || "";`
	Value        = `return this.value === undefined || this.value === null ? "" : String(this.value);`
	OuterHTML    = `return this.outerHTML;`
	Rect         = `const r = this.getBoundingClientRect();
return {X: r.x, Y: r.y, Width: r.width, Height: r.height};`

	// ClickPoint scrolls the element into view and hit-tests its centre.
	// A point owned by another node means the element is covered.
	ClickPoint = `this.scrollIntoView({block: "center", inline: "center"});
const r = this.getBoundingClientRect();
if (r.width === 0 || r.height === 0) { throw new Error("` + NotInteractableMarker + `: zero-sized"); }
const x = r.x + r.width / 2, y = r.y + r.height / 2;
if (hitTest) {
	const hit = document.elementFromPoint(x, y);
	if (!hit || (hit !== this && !this.contains(hit))) {
		throw new Error("` + NotInteractableMarker + `: covered by " + (hit ? hit.tagName.toLowerCase() + (hit.id ? "#" + hit.id : "") : "nothing"));
	}
}
return {X: x, Y: y};`

	DispatchClick = `const opts = {bubbles: true, cancelable: true, view: window};
this.dispatchEvent(new MouseEvent("mouseover", opts));
this.click();
return true;`

	ScrollIntoView = `this.scrollIntoView({block: "center", inline: "nearest"}); return true;`

	// SetValue goes through the prototype setter so framework-tracked
	// inputs notice the change.
	SetValue = `this.focus();
const proto = Object.getPrototypeOf(this);
const desc = Object.getOwnPropertyDescriptor(proto, "value");
if (desc && desc.set) { desc.set.call(this, text); } else { this.value = text; }
this.dispatchEvent(new Event("input", {bubbles: true}));
this.dispatchEvent(new Event("change", {bubbles: true}));
return true;`

	Focus = `this.focus(); return true;`

	ScrollState = `return {top: this.scrollTop, height: this.scrollHeight, clientHeight: this.clientHeight};`
	ScrollTo    = `this.scrollTop = top;
return {top: this.scrollTop, height: this.scrollHeight, clientHeight: this.clientHeight};`
)
