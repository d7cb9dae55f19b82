package client

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTempConfig points the global config at a temp file for one test.
func useTempConfig(t *testing.T) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "nested", "config.json")

	oldGetConfigPath := getConfigPathFunc
	getConfigPathFunc = func() (string, error) {
		return configPath, nil
	}
	t.Cleanup(func() { getConfigPathFunc = oldGetConfigPath })
	return configPath
}

func TestGetConfigDir(t *testing.T) {
	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
	assert.True(t, strings.HasSuffix(dir, ".docchat"))
}

func TestGetConfigPath(t *testing.T) {
	path, err := GetConfigPath()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join(".docchat", "config.json")))
}

func TestLoadGlobalConfig_FileNotExists(t *testing.T) {
	useTempConfig(t)

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestLoadGlobalConfig_InvalidJSON(t *testing.T) {
	configPath := useTempConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte("{invalid json}"), 0600))

	config, err := LoadGlobalConfig()
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestSaveGlobalConfig_RoundTrip(t *testing.T) {
	configPath := useTempConfig(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://docs:8080", SessionID: "s-1"}))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Equal(t, "http://docs:8080", config.APIURL)
	assert.Equal(t, "s-1", config.SessionID)
}

func TestSaveGlobalConfig_NilConfig(t *testing.T) {
	useTempConfig(t)
	assert.Error(t, SaveGlobalConfig(nil))
}

func TestUpdateGlobalConfig_KeepsOtherFields(t *testing.T) {
	useTempConfig(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://docs:8080"}))

	require.NoError(t, updateGlobalConfig(func(c *GlobalConfig) { c.SessionID = "s-2" }))

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://docs:8080", config.APIURL)
	assert.Equal(t, "s-2", config.SessionID)
}

func TestDeleteGlobalConfig(t *testing.T) {
	configPath := useTempConfig(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{SessionID: "s"}))

	require.NoError(t, DeleteGlobalConfig())
	_, err := os.Stat(configPath)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, DeleteGlobalConfig())
}

func TestResolveAPIURL_Cascade(t *testing.T) {
	useTempConfig(t)
	t.Setenv(envAPIURL, "")

	source, url := ResolveAPIURL("")
	assert.Equal(t, SourceDefault, source)
	assert.Equal(t, defaultAPIURL, url)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://from-config"}))
	source, url = ResolveAPIURL("")
	assert.Equal(t, SourceGlobalConfig, source)
	assert.Equal(t, "http://from-config", url)

	t.Setenv(envAPIURL, "http://from-env")
	source, url = ResolveAPIURL("")
	assert.Equal(t, SourceEnv, source)
	assert.Equal(t, "http://from-env", url)

	source, url = ResolveAPIURL("http://from-flag")
	assert.Equal(t, SourceFlag, source)
	assert.Equal(t, "http://from-flag", url)
}
