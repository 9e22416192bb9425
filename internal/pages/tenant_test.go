// File: internal/pages/tenant_test.go
package pages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-e2e/internal/testing/fakedom"
)

const tenantPage = `<html><body>
<span>Kiracı: yok</span> <a id="AppTenantSwitchLink" href="#">değiştir</a>
<form action="/Abp/MultiTenancy/TenantSwitchModal" hidden>
  <input id="Input_Name" value="">
  <button type="submit">Kaydet</button>
</form>
</body></html>`

func TestSelectTenant(t *testing.T) {
	d := fakedom.New(tenantPage)
	d.OnClick("#AppTenantSwitchLink", func(d *fakedom.Document, n *html.Node) { d.Show(d.MustFind("form")) })
	var saved string
	d.OnClick("form button", func(d *fakedom.Document, n *html.Node) {
		saved = d.Attr(d.MustFind("#Input_Name"), "value")
		d.Hide(d.MustFind("form"))
	})

	require.NoError(t, NewTenantPage(newSession(t, d)).SelectTenant(context.Background(), "Merkez Hastanesi"))
	assert.Equal(t, "Merkez Hastanesi", saved)
	assert.Len(t, d.Find("form[hidden]"), 1)
}

func TestSelectTenantFormThatStaysOpen(t *testing.T) {
	d := fakedom.New(tenantPage)
	d.Show(d.MustFind("form"))

	err := NewTenantPage(newSession(t, d)).SelectTenant(context.Background(), "Merkez Hastanesi")
	require.Error(t, err)
	assert.ErrorContains(t, err, "Merkez Hastanesi")
	require.NotEmpty(t, d.Clicks())
	assert.NotContains(t, d.Clicks()[0].Target, "AppTenantSwitchLink", "an open form needs no switch click")
}

func TestSelectTenantNeedsName(t *testing.T) {
	d := fakedom.New(tenantPage)
	assert.Error(t, NewTenantPage(newSession(t, d)).SelectTenant(context.Background(), ""))
	assert.Empty(t, d.Clicks())
}
