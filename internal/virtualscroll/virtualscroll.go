// File: internal/virtualscroll/virtualscroll.go

// Package virtualscroll finds items in containers that only render the rows
// inside their viewport. The container is scanned incrementally: query the
// rendered items, return a match, otherwise advance the scroll by a bounded
// step until the offset stops moving.
package virtualscroll

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/textmatch"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

const (
	DefaultMaxSteps  = 60
	DefaultMinStep   = 100.0
	DefaultStepRatio = 0.8
	DefaultSettle    = 40 * time.Millisecond
)

// Resolver returns the current handle of the scroll container. It is called
// again after every step so a re-rendered container is picked up.
type Resolver func(ctx context.Context) (driver.Element, error)

// Fixed resolves to a handle the caller already holds.
func Fixed(el driver.Element) Resolver {
	return func(context.Context) (driver.Element, error) { return el, nil }
}

// Locate resolves the first visible match of loc below root.
func Locate(root driver.Finder, loc locator.Locator) Resolver {
	return func(ctx context.Context) (driver.Element, error) {
		return loc.FirstVisible(ctx, root)
	}
}

// Matcher decides whether a rendered item is the one searched for.
type Matcher func(ctx context.Context, el driver.Element) (bool, error)

// TextEquals matches items whose normalized text equals want.
func TextEquals(want string) Matcher {
	return func(ctx context.Context, el driver.Element) (bool, error) {
		text, err := el.Text(ctx)
		if err != nil {
			return false, err
		}
		return textmatch.Equal(text, want), nil
	}
}

// AnyTextContains matches items whose text or one of the given attributes
// contains any of needles after normalization.
func AnyTextContains(attrs []string, needles ...string) Matcher {
	return func(ctx context.Context, el driver.Element) (bool, error) {
		text, err := el.Text(ctx)
		if err != nil {
			return false, err
		}
		if textmatch.ContainsAny(text, needles...) {
			return true, nil
		}
		for _, a := range attrs {
			v, err := el.Attribute(ctx, a)
			if err != nil {
				return false, err
			}
			if textmatch.ContainsAny(v, needles...) {
				return true, nil
			}
		}
		return false, nil
	}
}

type options struct {
	maxSteps   int
	minStep    float64
	stepRatio  float64
	settle     time.Duration
	byPosition bool
	fromTop    bool
	itemRoot   driver.Finder
	logger     *zap.Logger
}

// Option tunes a search.
type Option func(*options)

func WithMaxSteps(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithStep sets the minimum advance in pixels and the fraction of the
// visible height advanced per step.
func WithStep(min, ratio float64) Option {
	return func(o *options) {
		if min > 0 {
			o.minStep = min
		}
		if ratio > 0 {
			o.stepRatio = ratio
		}
	}
}

// WithSettle sets the pause after each scroll for the list to re-render.
func WithSettle(d time.Duration) Option {
	return func(o *options) { o.settle = d }
}

// ByVerticalPosition picks the top-most match instead of the first in render order.
func ByVerticalPosition() Option {
	return func(o *options) { o.byPosition = true }
}

// FromTop resets the container to offset 0 before scanning.
func FromTop() Option {
	return func(o *options) { o.fromTop = true }
}

// WithItemRoot searches items below root instead of below the container.
func WithItemRoot(root driver.Finder) Option {
	return func(o *options) { o.itemRoot = root }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// cursor remembers the last observed offset to detect the fixed point.
type cursor struct {
	top   float64
	valid bool
}

// FindInScrollable scans container for the first item matched by match.
// found is false when the scroll reached its end, or maxSteps ran out,
// without a match. Stale handles met while scanning restart the current step.
func FindInScrollable(ctx context.Context, container Resolver, items locator.Locator, match Matcher, opts ...Option) (driver.Element, bool, error) {
	o := options{
		maxSteps:  DefaultMaxSteps,
		minStep:   DefaultMinStep,
		stepRatio: DefaultStepRatio,
		settle:    DefaultSettle,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger.With(zap.String("items", items.String()))

	if o.fromTop {
		if err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
			c, err := container(ctx)
			if err != nil {
				return err
			}
			_, err = c.ScrollTo(ctx, 0)
			return err
		}, wait.Named("reset scroll")); err != nil {
			return nil, false, fmt.Errorf("virtual search %s: %w", items.Name(), err)
		}
	}

	var cur cursor
	for step := 0; ; step++ {
		el, err := wait.RetryOnStale(ctx, func(ctx context.Context) (driver.Element, error) {
			return scan(ctx, container, items, match, o)
		}, wait.Named("scan "+items.Name()))
		if err != nil {
			return nil, false, fmt.Errorf("virtual search %s: %w", items.Name(), err)
		}
		if el != nil {
			log.Debug("Virtual search matched.", zap.Int("step", step))
			return el, true, nil
		}
		if step >= o.maxSteps {
			log.Debug("Virtual search exhausted its step budget.", zap.Int("steps", step))
			return nil, false, nil
		}

		type move struct{ from, to float64 }
		mv, err := wait.RetryOnStale(ctx, func(ctx context.Context) (move, error) {
			c, err := container(ctx)
			if err != nil {
				return move{}, err
			}
			before, err := c.ScrollState(ctx)
			if err != nil {
				return move{}, err
			}
			if before.AtEnd() {
				return move{before.Top, before.Top}, nil
			}
			after, err := c.ScrollTo(ctx, nextOffset(before, o))
			return move{before.Top, after.Top}, err
		}, wait.Named("scroll "+items.Name()))
		if err != nil {
			return nil, false, fmt.Errorf("virtual search %s: %w", items.Name(), err)
		}

		if mv.to == mv.from || (cur.valid && mv.to == cur.top) {
			log.Debug("Virtual search reached a fixed point.", zap.Float64("top", mv.to), zap.Int("step", step))
			return nil, false, nil
		}
		cur = cursor{top: mv.to, valid: true}

		if err := wait.Sleep(ctx, o.settle); err != nil {
			return nil, false, err
		}
	}
}

// nextOffset advances by max(minStep, clientHeight*ratio), capped at the scroll extent.
func nextOffset(st driver.ScrollState, o options) float64 {
	step := math.Max(o.minStep, st.ClientHeight*o.stepRatio)
	return math.Min(st.Top+step, st.Max())
}

func scan(ctx context.Context, container Resolver, items locator.Locator, match Matcher, o options) (driver.Element, error) {
	root := o.itemRoot
	if root == nil {
		c, err := container(ctx)
		if err != nil {
			return nil, err
		}
		root = c
	}
	els, err := items.ResolveAll(ctx, root)
	if err != nil {
		return nil, err
	}

	var best driver.Element
	bestY := math.Inf(1)
	for _, el := range els {
		vis, err := el.Visible(ctx)
		if err != nil {
			return nil, err
		}
		if !vis {
			continue
		}
		ok, err := match(ctx, el)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !o.byPosition {
			return el, nil
		}
		r, err := el.Rect(ctx)
		if err != nil {
			return nil, err
		}
		if r.Y < bestY {
			best, bestY = el, r.Y
		}
	}
	return best, nil
}
