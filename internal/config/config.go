package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	inicodec "github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"
)

// AppConfig represents the main application configuration
type AppConfig struct {
	General    GeneralConfig    `mapstructure:"general"`
	MPD        MPDConfig        `mapstructure:"mpd"`
	LastFM     LastFMConfig     `mapstructure:"lastfm"`
	Appearance AppearanceConfig `mapstructure:"appearance"`
	Playlist   PlaylistConfig   `mapstructure:"playlist"`
	Library    LibraryConfig    `mapstructure:"library"`
	Scrobbles  ScrobblesConfig  `mapstructure:"scrobbles"`

	// CustomOrderers maps a user-chosen name to a semicolon-separated
	// list of orderer command lines.
	CustomOrderers map[string]string `mapstructure:"custom_orderers"`
}

// GeneralConfig represents the general section
type GeneralConfig struct {
	Log             string `mapstructure:"log"`
	Database        string `mapstructure:"database"`
	UpdateOnStartup bool   `mapstructure:"update_on_startup"`
	Verbose         bool   `mapstructure:"verbose"`
}

// MPDConfig represents the mpd section
type MPDConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

// Addr returns the daemon address in host:port form.
func (c MPDConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LastFMConfig represents the lastfm section
type LastFMConfig struct {
	User        string `mapstructure:"user"`
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	SessionFile string `mapstructure:"session_file"`
	URL         string `mapstructure:"url"`
}

// AppearanceConfig represents the appearance section
type AppearanceConfig struct {
	StatusFg string `mapstructure:"status_fg"`
	StatusBg string `mapstructure:"status_bg"`
	ErrorFg  string `mapstructure:"error_fg"`
	ErrorBg  string `mapstructure:"error_bg"`
}

// PlaylistConfig represents the playlist section
type PlaylistConfig struct {
	SaveOnClose bool   `mapstructure:"save_playlist_on_close"`
	SaveName    string `mapstructure:"playlist_save_name"`
}

// LibraryConfig represents the library section
type LibraryConfig struct {
	DefaultOrderers string  `mapstructure:"default_orderers"`
	IgnoreArtistThe bool    `mapstructure:"ignore_artist_the"`
	ShowScore       bool    `mapstructure:"show_score"`
	Orientation     string  `mapstructure:"orientation"`
	FuzzyCutoff     float64 `mapstructure:"fuzzy_cutoff"`
	FuzzyTop        int     `mapstructure:"fuzzy_top"`
}

// ScrobblesConfig represents the scrobbles section
type ScrobblesConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// sections that participate in value interpolation
var interpolatedSections = []string{
	"general", "mpd", "lastfm", "appearance",
	"playlist", "library", "scrobbles", "custom_orderers",
}

// Load reads the INI configuration at path (optional; empty path loads
// defaults only) and returns the resolved configuration.
func Load(path string) (*AppConfig, error) {
	// viper no longer bundles an INI codec; register one explicitly.
	registry := viper.NewCodecRegistry()
	if err := registry.RegisterCodec("ini", inicodec.Codec{}); err != nil {
		return nil, fmt.Errorf("error registering ini codec: %w", err)
	}
	v := viper.NewWithOptions(viper.WithCodecRegistry(registry))
	v.SetConfigType("ini")

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(expandPath(path))
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	interpolate(v)

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.General.Log = expandPath(config.General.Log)
	config.General.Database = expandPath(config.General.Database)
	config.LastFM.SessionFile = expandPath(config.LastFM.SessionFile)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log", "~/.suggestive/log")
	v.SetDefault("general.database", "~/.suggestive/music.db")
	v.SetDefault("general.update_on_startup", false)
	v.SetDefault("general.verbose", false)

	v.SetDefault("mpd.host", "localhost")
	v.SetDefault("mpd.port", 6600)
	v.SetDefault("mpd.password", "")

	v.SetDefault("lastfm.user", "")
	v.SetDefault("lastfm.api_key", "")
	v.SetDefault("lastfm.api_secret", "")
	v.SetDefault("lastfm.session_file", "~/.suggestive/session")
	v.SetDefault("lastfm.url", "https://ws.audioscrobbler.com/2.0/")

	v.SetDefault("appearance.status_fg", "white")
	v.SetDefault("appearance.status_bg", "blue")
	v.SetDefault("appearance.error_fg", "white")
	v.SetDefault("appearance.error_bg", "red")

	v.SetDefault("playlist.save_playlist_on_close", false)
	v.SetDefault("playlist.playlist_save_name", "suggestive")

	v.SetDefault("library.default_orderers", "loved min=0.0 max=1.0")
	v.SetDefault("library.ignore_artist_the", true)
	v.SetDefault("library.show_score", false)
	v.SetDefault("library.orientation", "horizontal")
	v.SetDefault("library.fuzzy_cutoff", 0.8)
	v.SetDefault("library.fuzzy_top", 20)

	v.SetDefault("scrobbles.retention_days", 180)
}

var (
	braceRef   = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	percentRef = regexp.MustCompile(`%\(([A-Za-z_][A-Za-z0-9_]*)\)s`)
)

// interpolate resolves {name} and %(name)s references against other
// keys in the same section, bounded to avoid reference cycles.
func interpolate(v *viper.Viper) {
	for _, section := range interpolatedSections {
		values := v.GetStringMapString(section)
		if len(values) == 0 {
			continue
		}
		for pass := 0; pass < 10; pass++ {
			changed := false
			for key, value := range values {
				resolved := replaceRefs(value, values)
				if resolved != value {
					values[key] = resolved
					changed = true
				}
			}
			if !changed {
				break
			}
		}
		for key, value := range values {
			v.Set(section+"."+key, value)
		}
	}
}

func replaceRefs(value string, section map[string]string) string {
	expand := func(match, name string) string {
		if repl, ok := section[strings.ToLower(name)]; ok {
			return repl
		}
		return match
	}
	value = braceRef.ReplaceAllStringFunc(value, func(m string) string {
		return expand(m, braceRef.FindStringSubmatch(m)[1])
	})
	return percentRef.ReplaceAllStringFunc(value, func(m string) string {
		return expand(m, percentRef.FindStringSubmatch(m)[1])
	})
}

// expandPath resolves a leading ~ and any $HOME-style variables.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

func validate(config *AppConfig) error {
	if config.MPD.Host == "" {
		return fmt.Errorf("mpd host must not be empty")
	}
	if config.MPD.Port <= 0 || config.MPD.Port > 65535 {
		return fmt.Errorf("invalid mpd port: %d", config.MPD.Port)
	}
	switch config.Library.Orientation {
	case "horizontal", "vertical":
	default:
		return fmt.Errorf("invalid orientation: %q", config.Library.Orientation)
	}
	if config.Library.FuzzyCutoff < 0 || config.Library.FuzzyCutoff > 1 {
		return fmt.Errorf("fuzzy_cutoff must be within [0, 1]")
	}
	if config.Library.FuzzyTop <= 0 {
		return fmt.Errorf("fuzzy_top must be positive")
	}
	if config.Scrobbles.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive")
	}
	return nil
}
