// File: internal/browser/script/script_test.go
package script

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

func TestBind(t *testing.T) {
	fn, err := Bind("name, n", "return name + n;", `a"b`, 3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fn, "function() {"))
	assert.Contains(t, fn, `.call(this, "a\"b", 3)`)
	assert.Contains(t, fn, StaleMarker)

	_, err = Bind("", "", make(chan int))
	assert.Error(t, err)
}

func TestFindBody(t *testing.T) {
	body, args, err := FindBody(driver.ID(`we"ird`))
	require.NoError(t, err)
	assert.Contains(t, body, "querySelectorAll")
	assert.Equal(t, []any{`[id="we\"ird"]`}, args)

	body, args, err = FindBody(driver.XPath("//li[@role='option']"))
	require.NoError(t, err)
	assert.Contains(t, body, "ORDERED_NODE_SNAPSHOT_TYPE")
	assert.Equal(t, []any{"//li[@role='option']"}, args)

	_, _, err = FindBody(driver.Selector{Strategy: "regex", Expr: "x"})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))

	err := Classify(errors.New("Error: " + StaleMarker))
	assert.ErrorIs(t, err, driver.ErrStale)

	err = Classify(errors.New("page.evaluate: Error: " + NotInteractableMarker + ": covered by div.mask"))
	require.ErrorIs(t, err, driver.ErrNotInteractable)
	assert.Contains(t, err.Error(), "covered by div.mask")
	assert.NotContains(t, err.Error(), NotInteractableMarker)

	already := fmt.Errorf("ctx: %w", driver.ErrStale)
	assert.Same(t, already, Classify(already))

	plain := errors.New("SyntaxError: unexpected token")
	assert.Same(t, plain, Classify(plain))
}
