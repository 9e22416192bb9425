// File: internal/interact/interact.go

// Package interact implements the interaction primitives every page routine
// builds on: a safe click with an ordered fallback chain, a safe type with
// optional value verification, scrolling, visibility probes and switches.
package interact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/textmatch"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// ClickLevel names one step of the fallback chain.
type ClickLevel string

const (
	LevelNative    ClickLevel = "native"
	LevelSynthetic ClickLevel = "synthetic"
	LevelPointer   ClickLevel = "pointer"
)

var clickChain = []ClickLevel{LevelNative, LevelSynthetic, LevelPointer}

// Interactor executes interactions against one browser session. It keeps no
// element handles between calls.
type Interactor struct {
	logger   *zap.Logger
	timeouts wait.Timeouts
	retry    []wait.RetryOption
	onClick  func(ClickLevel)
}

// Option configures an Interactor.
type Option func(*Interactor)

// WithRetry overrides the stale-retry policy used around each interaction.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(i *Interactor) {
		i.retry = []wait.RetryOption{wait.WithAttempts(attempts), wait.WithBackoff(backoff)}
	}
}

// WithClickObserver registers fn to be told which level landed every
// successful click.
func WithClickObserver(fn func(ClickLevel)) Option {
	return func(i *Interactor) { i.onClick = fn }
}

// New creates an Interactor. A nil logger is replaced by a no-op logger.
func New(logger *zap.Logger, timeouts wait.Timeouts, opts ...Option) *Interactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Interactor{
		logger:   logger.Named("interact"),
		timeouts: timeouts.WithDefaults(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Timeouts exposes the configured budgets to composing protocols.
func (i *Interactor) Timeouts() wait.Timeouts { return i.timeouts }

// Logger returns the interactor's logger.
func (i *Interactor) Logger() *zap.Logger { return i.logger }

func (i *Interactor) retryOpts(op string) []wait.RetryOption {
	return append(append([]wait.RetryOption(nil), i.retry...), wait.Named(op))
}

// SafeClick resolves loc below root and clicks it. Levels run in order:
// a native click once the element is visible, then scroll plus a synthetic
// click, then a pointer move-and-click. A level runs only after the previous
// one failed. The element is re-resolved for every level because a failed
// attempt may have triggered a re-render.
func (i *Interactor) SafeClick(ctx context.Context, root driver.Finder, loc locator.Locator) error {
	// Absence is final. The fallbacks only address interactability.
	if _, err := i.awaitPresent(ctx, root, loc, i.timeouts.Default); err != nil {
		return fmt.Errorf("safe click %s: %w", loc, err)
	}

	var failures []error
	for _, level := range clickChain {
		err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
			el, err := i.resolveForLevel(ctx, root, loc, level)
			if err != nil {
				return err
			}
			return i.clickAt(ctx, el, level)
		}, i.retryOpts("click "+loc.Name())...)
		if err == nil {
			i.clicked(level, zap.String("locator", loc.String()))
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("safe click %s: %w", loc, ctx.Err())
		}
		failures = append(failures, fmt.Errorf("%s click: %w", level, err))
		i.logger.Debug("Click level failed.",
			zap.String("locator", loc.String()),
			zap.String("level", string(level)),
			zap.Error(err))
	}
	return fmt.Errorf("safe click %s: every click level failed: %w", loc, errors.Join(failures...))
}

// ClickElement runs the same fallback chain against a handle the caller
// already owns. Staleness is returned to the caller, who knows how to
// re-resolve.
func (i *Interactor) ClickElement(ctx context.Context, el driver.Element) error {
	var failures []error
	for _, level := range clickChain {
		if level == LevelNative {
			if err := i.waitInteractable(ctx, el); err != nil {
				if driver.IsStale(err) {
					return err
				}
				failures = append(failures, fmt.Errorf("%s click: %w", level, err))
				continue
			}
		}
		err := i.clickAt(ctx, el, level)
		if err == nil {
			i.clicked(level, zap.String("element", el.Describe()))
			return nil
		}
		if driver.IsStale(err) || ctx.Err() != nil {
			return err
		}
		failures = append(failures, fmt.Errorf("%s click: %w", level, err))
	}
	return fmt.Errorf("click %s: every click level failed: %w", el.Describe(), errors.Join(failures...))
}

func (i *Interactor) clicked(level ClickLevel, target zap.Field) {
	if i.onClick != nil {
		i.onClick(level)
	}
	if level != LevelNative {
		i.logger.Warn("Click succeeded via fallback.", target, zap.String("level", string(level)))
	}
}

func (i *Interactor) resolveForLevel(ctx context.Context, root driver.Finder, loc locator.Locator, level ClickLevel) (driver.Element, error) {
	if level == LevelNative {
		// Interactable here means displayed; the driver reports covering overlays on click.
		return wait.Await(ctx, "interactable "+loc.String(), func(ctx context.Context) (driver.Element, bool, error) {
			el, err := loc.FirstVisible(ctx, root)
			if err != nil {
				return nil, false, err
			}
			return el, true, nil
		}, i.timeouts.Opts(i.timeouts.Short)...)
	}
	return loc.First(ctx, root)
}

func (i *Interactor) clickAt(ctx context.Context, el driver.Element, level ClickLevel) error {
	switch level {
	case LevelNative:
		return el.Click(ctx)
	case LevelSynthetic:
		if err := el.ScrollIntoView(ctx); err != nil {
			return err
		}
		return el.DispatchClick(ctx)
	case LevelPointer:
		return el.PointerClick(ctx)
	default:
		return fmt.Errorf("unknown click level %q", level)
	}
}

func (i *Interactor) waitInteractable(ctx context.Context, el driver.Element) error {
	var stale error
	err := wait.Until(ctx, "interactable "+el.Describe(), func(ctx context.Context) (bool, error) {
		vis, err := el.Visible(ctx)
		if driver.IsStale(err) {
			// A stale handle never recovers; stop waiting on it.
			stale = err
			return true, nil
		}
		return vis, err
	}, i.timeouts.Opts(i.timeouts.Short)...)
	if stale != nil {
		return stale
	}
	return err
}

func (i *Interactor) awaitPresent(ctx context.Context, root driver.Finder, loc locator.Locator, budget time.Duration) ([]driver.Element, error) {
	return wait.Await(ctx, "presence of "+loc.String(), func(ctx context.Context) ([]driver.Element, bool, error) {
		els, err := loc.Resolve(ctx, root)
		if err != nil {
			return nil, false, err
		}
		return els, true, nil
	}, i.timeouts.Opts(budget)...)
}

// TypeOption tunes SafeType.
type TypeOption func(*typeOptions)

type typeOptions struct {
	verify bool
	budget time.Duration
}

// WithVerify waits until the field's value reflects the typed text, for
// controlled inputs that may re-render asynchronously.
func WithVerify() TypeOption {
	return func(o *typeOptions) { o.verify = true }
}

// WithTypeTimeout overrides the visibility and verification budget.
func WithTypeTimeout(d time.Duration) TypeOption {
	return func(o *typeOptions) { o.budget = d }
}

// SafeType waits for loc to be visible, clears it and inputs text.
func (i *Interactor) SafeType(ctx context.Context, root driver.Finder, loc locator.Locator, text string, opts ...TypeOption) error {
	o := typeOptions{budget: i.timeouts.Default}
	for _, opt := range opts {
		opt(&o)
	}

	err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		el, err := i.WaitVisible(ctx, root, loc, o.budget)
		if err != nil {
			return err
		}
		if err := el.Clear(ctx); err != nil {
			return err
		}
		return el.Input(ctx, text)
	}, i.retryOpts("type into "+loc.Name())...)
	if err != nil {
		return fmt.Errorf("safe type %s: %w", loc, err)
	}
	if !o.verify {
		return nil
	}

	var last string
	err = wait.Until(ctx, fmt.Sprintf("value of %s to be %q", loc, text), func(ctx context.Context) (bool, error) {
		el, err := loc.First(ctx, root)
		if err != nil {
			return false, err
		}
		v, err := el.Value(ctx)
		if err != nil {
			return false, err
		}
		last = v
		return strings.TrimSpace(v) == strings.TrimSpace(text), nil
	}, i.timeouts.Opts(o.budget)...)
	if err != nil {
		var te *driver.TimeoutError
		if errors.As(err, &te) {
			te.LastObserved = last
		}
		return fmt.Errorf("safe type %s: %w", loc, err)
	}
	return nil
}

// ScrollIntoView centres el in its nearest scrollable ancestor. It does not
// wait for the scroll to settle; callers wait on the UI condition they need.
func (i *Interactor) ScrollIntoView(ctx context.Context, el driver.Element) error {
	if err := el.ScrollIntoView(ctx); err != nil {
		return fmt.Errorf("scroll %s into view: %w", el.Describe(), err)
	}
	return nil
}

// WaitVisible waits up to budget for a visible match of loc.
func (i *Interactor) WaitVisible(ctx context.Context, root driver.Finder, loc locator.Locator, budget time.Duration) (driver.Element, error) {
	return wait.Await(ctx, "visibility of "+loc.String(), func(ctx context.Context) (driver.Element, bool, error) {
		el, err := loc.FirstVisible(ctx, root)
		if err != nil {
			return nil, false, err
		}
		return el, true, nil
	}, i.timeouts.Opts(budget)...)
}

// WaitInvisible waits up to budget until no match of loc is displayed.
// Detached and missing elements count as invisible.
func (i *Interactor) WaitInvisible(ctx context.Context, root driver.Finder, loc locator.Locator, budget time.Duration) error {
	return wait.Until(ctx, "invisibility of "+loc.String(), func(ctx context.Context) (bool, error) {
		els, err := loc.ResolveAll(ctx, root)
		if err != nil {
			return false, err
		}
		vis, err := locator.Visible(ctx, els)
		if err != nil {
			return false, err
		}
		return len(vis) == 0, nil
	}, i.timeouts.Opts(budget)...)
}

// WaitText waits until a visible match of loc contains want after
// normalization, and returns that element.
func (i *Interactor) WaitText(ctx context.Context, root driver.Finder, loc locator.Locator, want string, budget time.Duration) (driver.Element, error) {
	var last string
	el, err := wait.Await(ctx, fmt.Sprintf("text %q in %s", want, loc), func(ctx context.Context) (driver.Element, bool, error) {
		els, err := loc.ResolveAll(ctx, root)
		if err != nil {
			return nil, false, err
		}
		for _, el := range els {
			vis, err := el.Visible(ctx)
			if err != nil || !vis {
				continue
			}
			text, err := el.Text(ctx)
			if err != nil {
				continue
			}
			last = text
			if textmatch.Contains(text, want) {
				return el, true, nil
			}
		}
		return nil, false, nil
	}, i.timeouts.Opts(budget)...)
	if err != nil {
		var te *driver.TimeoutError
		if errors.As(err, &te) {
			te.LastObserved = last
		}
		return nil, err
	}
	return el, nil
}

// IsPresent reports whether loc matches anything right now, without waiting.
func (i *Interactor) IsPresent(ctx context.Context, root driver.Finder, loc locator.Locator) (bool, error) {
	_, err := loc.Resolve(ctx, root)
	var nf *driver.ElementNotFoundError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &nf):
		return false, nil
	default:
		return false, err
	}
}

// IsDisplayed reports whether some match of loc is visible right now.
func (i *Interactor) IsDisplayed(ctx context.Context, root driver.Finder, loc locator.Locator) (bool, error) {
	_, err := loc.FirstVisible(ctx, root)
	var nf *driver.ElementNotFoundError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &nf):
		return false, nil
	default:
		return false, err
	}
}

var disabledClasses = []string{"disabled", "opacity-60", "cursor-not-allowed"}

// IsDisabled treats the disabled attribute, aria-disabled="true" and the
// utility classes the application uses for inert buttons as disabled.
func (i *Interactor) IsDisabled(ctx context.Context, el driver.Element) (bool, error) {
	return IsDisabled(ctx, el)
}

// IsDisabled is the handle-level check behind Interactor.IsDisabled.
func IsDisabled(ctx context.Context, el driver.Element) (bool, error) {
	if has, err := el.HasAttribute(ctx, "disabled"); err != nil || has {
		return has, err
	}
	aria, err := el.Attribute(ctx, "aria-disabled")
	if err != nil {
		return false, err
	}
	if strings.EqualFold(aria, "true") {
		return true, nil
	}
	class, err := el.Attribute(ctx, "class")
	if err != nil {
		return false, err
	}
	return HasAnyClass(class, disabledClasses...), nil
}

// HasAnyClass reports whether the class attribute value contains one of names.
func HasAnyClass(classAttr string, names ...string) bool {
	for _, f := range strings.Fields(classAttr) {
		for _, n := range names {
			if f == n {
				return true
			}
		}
	}
	return false
}
