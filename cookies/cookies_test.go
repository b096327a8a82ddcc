package cookies

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadCookies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.json")
	c := NewLoadCookie(path)

	_, err := c.LoadCookies()
	assert.Error(t, err)

	require.NoError(t, c.SaveCookies([]byte(`[{"name":"sid","value":"1"}]`)))

	data, err := c.LoadCookies()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"sid","value":"1"}]`, string(data))
}

func TestGetCookiesFilePathFromEnv(t *testing.T) {
	t.Setenv("COOKIES_PATH", "/data/erp.json")
	assert.Equal(t, "/data/erp.json", GetCookiesFilePath())
}
