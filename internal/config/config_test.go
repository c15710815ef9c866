package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suggestive.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", config.MPD.Host)
	assert.Equal(t, 6600, config.MPD.Port)
	assert.Equal(t, "localhost:6600", config.MPD.Addr())
	assert.Equal(t, "https://ws.audioscrobbler.com/2.0/", config.LastFM.URL)
	assert.Equal(t, "loved min=0.0 max=1.0", config.Library.DefaultOrderers)
	assert.True(t, config.Library.IgnoreArtistThe)
	assert.Equal(t, "horizontal", config.Library.Orientation)
	assert.Equal(t, 0.8, config.Library.FuzzyCutoff)
	assert.Equal(t, 20, config.Library.FuzzyTop)
	assert.Equal(t, 180, config.Scrobbles.RetentionDays)
	assert.Equal(t, "white", config.Appearance.StatusFg)
	assert.Equal(t, "red", config.Appearance.ErrorBg)
	assert.False(t, config.General.UpdateOnStartup)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[mpd]
host = music.local
port = 6601
password = hunter2

[lastfm]
user = alice
api_key = deadbeef

[library]
default_orderers = playcount; loved min=0.2 max=0.9
show_score = true
orientation = vertical

[custom_orderers]
fresh = modified; playcount reverse=true
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "music.local:6601", config.MPD.Addr())
	assert.Equal(t, "hunter2", config.MPD.Password)
	assert.Equal(t, "alice", config.LastFM.User)
	assert.Equal(t, "deadbeef", config.LastFM.APIKey)
	assert.Equal(t, "playcount; loved min=0.2 max=0.9", config.Library.DefaultOrderers)
	assert.True(t, config.Library.ShowScore)
	assert.Equal(t, "vertical", config.Library.Orientation)
	assert.Equal(t, map[string]string{"fresh": "modified; playcount reverse=true"}, config.CustomOrderers)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	config, err := Load(filepath.Join(t.TempDir(), "nope.conf"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", config.MPD.Host)
}

func TestInterpolation(t *testing.T) {
	t.Run("brace references", func(t *testing.T) {
		path := writeConfig(t, `
[general]
basedir = /var/lib/suggestive
database = {basedir}/music.db
log = {basedir}/log
`)
		config, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/suggestive/music.db", config.General.Database)
		assert.Equal(t, "/var/lib/suggestive/log", config.General.Log)
	})

	t.Run("percent references", func(t *testing.T) {
		path := writeConfig(t, `
[general]
basedir = /srv/music
database = %(basedir)s/music.db
`)
		config, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/srv/music/music.db", config.General.Database)
	})

	t.Run("chained references", func(t *testing.T) {
		path := writeConfig(t, `
[general]
root = /data
basedir = {root}/suggestive
database = {basedir}/music.db
`)
		config, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/data/suggestive/music.db", config.General.Database)
	})

	t.Run("unknown reference left intact", func(t *testing.T) {
		path := writeConfig(t, `
[general]
database = {missing}/music.db
`)
		config, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "{missing}/music.db", config.General.Database)
	})

	t.Run("reference cycle terminates", func(t *testing.T) {
		path := writeConfig(t, `
[general]
a = {b}
b = {a}
database = /tmp/music.db
`)
		_, err := Load(path)
		assert.NoError(t, err)
	})
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".suggestive", "music.db"), expandPath("~/.suggestive/music.db"))
	assert.Equal(t, home, expandPath("~"))
	assert.Equal(t, "/absolute/path", expandPath("/absolute/path"))
	assert.Equal(t, "", expandPath(""))

	t.Setenv("SUGGESTIVE_TEST_DIR", "/opt/music")
	assert.Equal(t, "/opt/music/db", expandPath("$SUGGESTIVE_TEST_DIR/db"))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty mpd host",
			content: "[mpd]\nhost =\n",
			wantErr: "mpd host",
		},
		{
			name:    "bad port",
			content: "[mpd]\nport = 70000\n",
			wantErr: "invalid mpd port",
		},
		{
			name:    "bad orientation",
			content: "[library]\norientation = diagonal\n",
			wantErr: "invalid orientation",
		},
		{
			name:    "cutoff out of range",
			content: "[library]\nfuzzy_cutoff = 1.5\n",
			wantErr: "fuzzy_cutoff",
		},
		{
			name:    "non-positive retention",
			content: "[scrobbles]\nretention_days = 0\n",
			wantErr: "retention_days",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
