// File: internal/browser/cdp/errors.go
package cdp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/runtime"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser/script"
)

// Protocol messages that mean the remote object is gone.
var staleMessages = []string{
	"Could not find object with given id",
	"Could not find node with given id",
	"No node with given id",
	"Cannot find context with specified id",
	"Node is detached from document",
	"Execution context was destroyed",
	"Inspected target navigated or closed",
}

// classify maps protocol and script failures onto driver sentinels.
func classify(err error) error {
	if err == nil || errors.Is(err, driver.ErrStale) || errors.Is(err, driver.ErrNotInteractable) {
		return err
	}
	msg := err.Error()
	for _, m := range staleMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %s", driver.ErrStale, msg)
		}
	}
	return script.Classify(err)
}

// exceptionError turns script exception details into a classified error.
func exceptionError(exc *runtime.ExceptionDetails) error {
	if exc == nil {
		return nil
	}
	text := exc.Text
	if exc.Exception != nil && exc.Exception.Description != "" {
		text = exc.Exception.Description
	}
	// Descriptions carry a stack; the first line is the message.
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return classify(errors.New(strings.TrimPrefix(text, "Error: ")))
}
