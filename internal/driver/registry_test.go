package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teklif/internal/types"
)

const sampleProfile = `
id: sompo
base_url: https://esube.example.com/
requires_totp: false
login:
  username_field:
    - {by: css, value: 'input[name="username"]'}
    - {by: css, value: '#username'}
  password_field:
    - {by: css, value: 'input[type="password"]'}
  submit_button:
    - {by: css, value: 'button[type="submit"]'}
  authenticated_marker:
    - {by: css, value: '.dashboard-menu'}
  login_marker:
    - {by: css, value: 'form.login'}
transient_dialogs:
  - {by: css, value: 'button.popup-close'}
timeouts:
  authenticate: 1m
  fill_form: 90s
branches:
  trafik:
    menu_path:
      - [{by: css, value: 'a[href*="trafik"]'}]
    entry_marker:
      - {by: css, value: 'form#teklif'}
    fields:
      - name: plate
        source: plate
        candidates:
          - {by: css, value: 'input[name*="plaka"]'}
      - name: plate_region
        source: plate
        derive: plate_region
        candidates:
          - {by: css, value: 'input[name*="il_kodu"]'}
    submit:
      - {by: css, value: 'button.calculate'}
    result_marker:
      - {by: css, value: 'table.prices'}
    result_fields:
      price:
        - {by: css, value: 'td.cash-price'}
    shape:
      price_path: price
      currency: TRY
    await_timeout: 25s
`

func writeProfile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestRegistry_LoadsProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "sompo.yaml", sampleProfile)

	reg, err := NewRegistry(dir)
	require.NoError(t, err)
	defer reg.Close()

	assert.Equal(t, []types.ProviderID{"sompo"}, reg.Providers())

	drv, ok := reg.Driver("sompo")
	require.True(t, ok)
	assert.Equal(t, types.ProviderID("sompo"), drv.Provider())
	assert.False(t, drv.RequiresTOTP())

	assert.Equal(t, "1m0s", drv.Timeouts().Authenticate.String())
	assert.Equal(t, "1m30s", drv.Timeouts().FillForm.String())

	spec, ok := drv.Branch(types.BranchTrafik)
	require.True(t, ok)
	assert.Len(t, spec.Fields, 2)
	assert.Equal(t, "price", spec.Shape.PricePath)
	assert.Equal(t, "25s", spec.AwaitTimeout.String())

	_, ok = drv.Branch(types.BranchDask)
	assert.False(t, ok)
}

func TestRegistry_HotReload(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "sompo.yaml", sampleProfile)

	reg, err := NewRegistry(dir)
	require.NoError(t, err)
	defer reg.Close()

	notified := make(chan Snapshot, 8)
	reg.Subscribe(func(s Snapshot) { notified <- s })
	before := reg.Snapshot().Version

	updated := strings.Replace(sampleProfile, "button.calculate", "button.hesapla", 1)
	writeProfile(t, dir, "sompo.yaml", updated)

	// the watcher may see several events for one save; wait until the new
	// selector is actually served
	require.Eventually(t, func() bool {
		drv, ok := reg.Driver("sompo")
		if !ok {
			return false
		}
		spec, ok := drv.Branch(types.BranchTrafik)
		return ok && spec.Submit[0].Value == "button.hesapla"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Greater(t, reg.Snapshot().Version, before)

	select {
	case snap := <-notified:
		assert.Contains(t, snap.Profiles, types.ProviderID("sompo"))
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber not notified after reload")
	}
}

func TestRegistry_BadReloadKeepsLastSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "sompo.yaml", sampleProfile)

	reg, err := NewRegistry(dir)
	require.NoError(t, err)
	defer reg.Close()
	before := reg.Snapshot().Version

	notified := make(chan Snapshot, 8)
	reg.Subscribe(func(s Snapshot) { notified <- s })

	writeProfile(t, dir, "sompo.yaml", "id: [unclosed\n")
	time.Sleep(500 * time.Millisecond)

	// the broken file is rejected and the last good profile set stays live
	assert.Equal(t, before, reg.Snapshot().Version)
	drv, ok := reg.Driver("sompo")
	require.True(t, ok)
	spec, ok := drv.Branch(types.BranchTrafik)
	require.True(t, ok)
	assert.Equal(t, "button.calculate", spec.Submit[0].Value)
	assert.Empty(t, notified)
}

func TestRegistry_RejectsInvalidProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "broken.yaml", "id: broken\n")
	_, err := NewRegistry(dir)
	require.Error(t, err)
}

func TestProfile_Validate(t *testing.T) {
	p := &Profile{ID: "x", URL: "https://x"}
	assert.Error(t, p.Validate(), "missing login spec")
}
