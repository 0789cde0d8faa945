package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	svc, ok := c.Service("whois")
	require.True(t, ok)
	assert.Equal(t, "domain", svc.Key)

	cost, ok := c.Cost("DOMAIN")
	require.True(t, ok)
	assert.Equal(t, "2", cost.String())

	item, ok := c.Item(10)
	require.True(t, ok)
	assert.Equal(t, ItemExclusionSlot, item.Type)
	assert.Len(t, c.Items(), 10)
}

func TestCatalog_DisabledServiceHasNoCost(t *testing.T) {
	c := New([]Service{
		{Key: "on", Cost: 0.5, Enabled: true},
		{Key: "off", Cost: 1, Enabled: false},
	}, nil)

	_, ok := c.Cost("off")
	assert.False(t, ok)
	_, ok = c.Service("off")
	assert.True(t, ok)

	services := c.Services()
	require.Len(t, services, 1)
	assert.Equal(t, "on", services[0].Key)
	assert.Equal(t, "0.5", services[0].Price().String())
}

func TestLoad_YAMLOverridesServices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	yaml := `services:
  - key: breach
    name: Breach Check
    cost: 1.25
    api_url: https://breach.example.com/check
    method: POST
    input_field: email
    alias: leak
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	svc, ok := c.Service("leak")
	require.True(t, ok)
	assert.Equal(t, "breach", svc.Key)
	assert.Equal(t, "email", svc.InputField)
	assert.Equal(t, "1.25", svc.Price().String())

	_, ok = c.Service("phone")
	assert.False(t, ok)
	assert.Len(t, c.Items(), len(DefaultShopItems()))
}

func TestLoad_RejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	negative := filepath.Join(dir, "negative.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("services:\n  - key: x\n    cost: -1\n"), 0o600))
	_, err = Load(negative)
	assert.ErrorContains(t, err, "negative cost")

	keyless := filepath.Join(dir, "keyless.yaml")
	require.NoError(t, os.WriteFile(keyless, []byte("services:\n  - name: nameless\n"), 0o600))
	_, err = Load(keyless)
	assert.ErrorContains(t, err, "without key")
}
