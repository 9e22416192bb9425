// File: internal/popup/snapshot.go
package popup

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// snapshot summarises what the popup showed when a lookup failed: the option
// texts when there are any, the collapsed popup text otherwise.
func (s *Session) snapshot(ctx context.Context) string {
	if s.Root == nil {
		return ""
	}
	markup, err := s.Root.OuterHTML(ctx)
	if err != nil {
		return ""
	}
	return summarise(markup, s.p.cfg.SnapshotLength)
}

func summarise(markup string, limit int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	var opts []string
	doc.Find("li[role='option'], .e-list-item").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.Join(strings.Fields(sel.Text()), " "); t != "" {
			opts = append(opts, t)
		}
	})
	out := strings.Join(opts, " | ")
	if out == "" {
		out = strings.Join(strings.Fields(doc.Text()), " ")
	}
	if r := []rune(out); len(r) > limit {
		out = string(r[:limit]) + "…"
	}
	return out
}
