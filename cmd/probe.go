// File: cmd/probe.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/observability"
)

type probeOptions struct {
	css     []string
	xpath   []string
	timeout time.Duration
}

// newProbeCmd checks selectors against a live page, which is how locators
// for a new scenario are usually worked out.
func newProbeCmd() *cobra.Command {
	opts := &probeOptions{}
	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Open a page and report what each selector matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(opts.css)+len(opts.xpath) == 0 {
				return errors.New("at least one --css or --xpath selector is required")
			}
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			factory, err := newSessionFactory(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
				defer cancel()
				if serr := factory.Shutdown(sctx); serr != nil {
					logger.Warn("Failed to shut down the browser.", zap.Error(serr))
				}
			}()
			return probe(cmd.Context(), cmd.OutOrStdout(), factory, args[0], opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.css, "css", nil, "CSS selector to probe (repeatable)")
	cmd.Flags().StringSliceVar(&opts.xpath, "xpath", nil, "XPath selector to probe (repeatable)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "How long to wait for a visible match")
	return cmd
}

func probe(ctx context.Context, out io.Writer, factory sessionFactory, target string, opts *probeOptions) error {
	s, err := factory.New(ctx, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Open(ctx, target); err != nil {
		return err
	}

	sels := make([]driver.Selector, 0, len(opts.css)+len(opts.xpath))
	for _, c := range opts.css {
		sels = append(sels, driver.CSS(c))
	}
	for _, x := range opts.xpath {
		sels = append(sels, driver.XPath(x))
	}

	for _, sel := range sels {
		els, err := s.Driver.FindAll(ctx, sel)
		if err != nil {
			fmt.Fprintf(out, "%s\terror: %v\n", sel, err)
			continue
		}
		fmt.Fprintf(out, "%s\t%d match(es)\n", sel, len(els))
	}

	// The combined locator is what a scenario target with these selectors
	// would resolve to.
	loc := locator.Of("probe", sels)
	el, err := s.Interact.WaitVisible(ctx, s.Driver, loc, opts.timeout)
	if err != nil {
		fmt.Fprintf(out, "first visible: none (%s)\n", driver.Kind(err))
		return err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "first visible: %s %q\n", el.Describe(), text)
	return nil
}
