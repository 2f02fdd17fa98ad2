/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package sprout_test

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codeallergy/sprout"
	"github.com/stretchr/testify/require"
)

const propertiesContent = `
# database settings
db.host = localhost
db.port = 5432

! legacy comment marker
app.name: sprout
app.motd = hello world
flags = a,\
        b
empty.key
`

func TestPropertiesParse(t *testing.T) {

	props := sprout.NewProperties()
	require.NoError(t, props.Parse(propertiesContent))

	require.Equal(t, "localhost", props.GetString("db.host", ""))
	require.Equal(t, "5432", props.GetString("db.port", ""))
	require.Equal(t, "sprout", props.GetString("app.name", ""))
	require.Equal(t, "hello world", props.GetString("app.motd", ""))
	require.Equal(t, "a,b", props.GetString("flags", ""))

	value, ok := props.Get("empty.key")
	require.True(t, ok)
	require.Equal(t, "", value)

	require.False(t, props.Contains("# database settings"))
}

func TestPropertiesLoadReader(t *testing.T) {

	props := sprout.NewProperties()
	require.NoError(t, props.Load(strings.NewReader("greeting = hi\n")))
	require.Equal(t, "hi", props.GetString("greeting", ""))
}

func TestPropertiesSetRemove(t *testing.T) {

	props := sprout.NewProperties()
	props.Set("key", "one")
	require.Equal(t, "one", props.GetString("key", ""))
	require.Equal(t, 1, props.Len())

	props.Set("key", "two")
	require.Equal(t, "two", props.GetString("key", ""))

	require.True(t, props.Remove("key"))
	require.False(t, props.Remove("key"))
	require.Equal(t, "fallback", props.GetString("key", "fallback"))
}

func TestPropertiesLoadMap(t *testing.T) {

	props := sprout.NewProperties()
	props.LoadMap(map[string]interface{}{
		"server": map[string]interface{}{
			"host": "example.org",
			"port": 8443,
		},
		"debug": true,
	})

	require.Equal(t, "example.org", props.GetString("server.host", ""))
	require.Equal(t, "8443", props.GetString("server.port", ""))
	require.Equal(t, "true", props.GetString("debug", ""))
}

type fixedResolver struct {
	priority int
	values   map[string]string
}

func (t *fixedResolver) Priority() int {
	return t.priority
}

func (t *fixedResolver) GetProperty(key string) (string, bool) {
	value, ok := t.values[key]
	return value, ok
}

func TestPropertiesResolverPriority(t *testing.T) {

	props := sprout.NewProperties()
	props.Set("shared", "store")
	props.Set("store.only", "base")

	props.Register(&fixedResolver{
		priority: 1000,
		values:   map[string]string{"shared": "override", "extra": "added"},
	})

	require.Equal(t, "override", props.GetString("shared", ""))
	require.Equal(t, "added", props.GetString("extra", ""))
	require.Equal(t, "base", props.GetString("store.only", ""))
}

func TestLoadYamlProperties(t *testing.T) {

	content := `
server:
  host: yaml.example.org
  port: 9443
limits:
  max: 10
`

	props := sprout.NewProperties()
	require.NoError(t, sprout.LoadYamlProperties(strings.NewReader(content), props))

	require.Equal(t, "yaml.example.org", props.GetString("server.host", ""))
	require.Equal(t, "9443", props.GetString("server.port", ""))
	require.Equal(t, "10", props.GetString("limits.max", ""))
}

func TestLoadDotEnv(t *testing.T) {

	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, ioutil.WriteFile(file, []byte("APP_MODE=test\nAPP_PORT=7000\n"), 0600))

	props := sprout.NewProperties()
	require.NoError(t, sprout.LoadDotEnv(props, file))

	require.Equal(t, "test", props.GetString("APP_MODE", ""))
	require.Equal(t, "7000", props.GetString("APP_PORT", ""))
}
