// Package config resolves the widget settings from a viper instance layered
// over defaults, a YAML config file, CHAT_WIDGET_* variables and bound flags.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/chatwidget/pkg/chatapi"
	"github.com/go-go-golems/chatwidget/pkg/conversation"
	"github.com/go-go-golems/chatwidget/pkg/eventbus"
	"github.com/go-go-golems/chatwidget/pkg/persistence/journal"
)

const (
	AppName         = "chat-widget"
	DefaultBaseURL  = "http://localhost:8000"
	DefaultUserID   = "anonymous"
	envPrefix       = "CHAT_WIDGET_"
	defaultFileName = "config.yaml"
)

// Keys of the settings in the config file. Flags are bound onto these.
const (
	KeyBaseURL           = "base-url"
	KeyUserID            = "user-id"
	KeyRequestTimeout    = "request-timeout"
	KeyGreeting          = "greeting"
	KeyJournalBackend    = "journal.backend"
	KeyJournalDSN        = "journal.dsn"
	KeyJournalMaxEntries = "journal.max-entries"
	KeyEventsTopic       = "events.topic"
	KeyRedisEnabled      = "events.redis.enabled"
	KeyRedisAddr         = "events.redis.addr"
	KeyRedisGroup        = "events.redis.group"
	KeyRedisConsumer     = "events.redis.consumer"
	// KeyRedisOverride enables redis at the given address. It comes from
	// --redis-addr or CHAT_WIDGET_REDIS_ADDR.
	KeyRedisOverride = "redis-addr"
)

var envKeys = map[string]string{
	KeyBaseURL:        "BASE_URL",
	KeyUserID:         "USER_ID",
	KeyRequestTimeout: "REQUEST_TIMEOUT",
	KeyJournalBackend: "JOURNAL",
	KeyJournalDSN:     "JOURNAL_DSN",
	KeyRedisOverride:  "REDIS_ADDR",
}

type Settings struct {
	BaseURL        string            `yaml:"base-url"`
	UserID         string            `yaml:"user-id"`
	RequestTimeout time.Duration     `yaml:"request-timeout"`
	Greeting       string            `yaml:"greeting"`
	Journal        journal.Settings  `yaml:"journal"`
	Events         eventbus.Settings `yaml:"events"`
}

func Default() Settings {
	return Settings{
		BaseURL:        DefaultBaseURL,
		UserID:         DefaultUserID,
		RequestTimeout: chatapi.DefaultTimeout,
		Greeting:       conversation.DefaultGreeting,
		Journal:        journal.DefaultSettings(),
		Events:         eventbus.DefaultSettings(),
	}
}

// DefaultPath is $XDG_CONFIG_HOME/chat-widget/config.yaml (or the platform equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "could not get config dir")
	}
	return filepath.Join(dir, AppName, defaultFileName), nil
}

// SetDefaults registers the defaults and the CHAT_WIDGET_* variables on v.
func SetDefaults(v *viper.Viper) error {
	d := Default()
	v.SetDefault(KeyBaseURL, d.BaseURL)
	v.SetDefault(KeyUserID, d.UserID)
	v.SetDefault(KeyRequestTimeout, d.RequestTimeout)
	v.SetDefault(KeyGreeting, d.Greeting)
	v.SetDefault(KeyJournalBackend, d.Journal.Backend)
	v.SetDefault(KeyJournalDSN, d.Journal.DSN)
	v.SetDefault(KeyJournalMaxEntries, d.Journal.MaxEntries)
	v.SetDefault(KeyEventsTopic, d.Events.Topic)
	v.SetDefault(KeyRedisEnabled, d.Events.Redis.Enabled)
	v.SetDefault(KeyRedisAddr, d.Events.Redis.Addr)
	v.SetDefault(KeyRedisGroup, d.Events.Redis.Group)
	v.SetDefault(KeyRedisConsumer, d.Events.Redis.Consumer)
	for key, name := range envKeys {
		if err := v.BindEnv(key, envPrefix+name); err != nil {
			return errors.Wrapf(err, "bind %s%s", envPrefix, name)
		}
	}
	return nil
}

// Load reads path into v and resolves the settings. An empty path falls back
// to DefaultPath, which is allowed to be missing; an explicit path must exist.
// Flags bound onto v before the call take precedence over the environment,
// which takes precedence over the file.
func Load(v *viper.Viper, path string) (Settings, error) {
	if err := SetDefaults(v); err != nil {
		return Settings{}, err
	}
	if err := readConfig(v, path); err != nil {
		return Settings{}, err
	}

	s := Settings{
		BaseURL:        strings.TrimSpace(v.GetString(KeyBaseURL)),
		UserID:         strings.TrimSpace(v.GetString(KeyUserID)),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		Greeting:       v.GetString(KeyGreeting),
		Journal: journal.Settings{
			Backend:    strings.TrimSpace(v.GetString(KeyJournalBackend)),
			DSN:        strings.TrimSpace(v.GetString(KeyJournalDSN)),
			MaxEntries: v.GetInt(KeyJournalMaxEntries),
		},
		Events: eventbus.Settings{
			Topic: v.GetString(KeyEventsTopic),
			Redis: eventbus.RedisSettings{
				Enabled:  v.GetBool(KeyRedisEnabled),
				Addr:     v.GetString(KeyRedisAddr),
				Group:    v.GetString(KeyRedisGroup),
				Consumer: v.GetString(KeyRedisConsumer),
			},
		},
	}
	if addr := strings.TrimSpace(v.GetString(KeyRedisOverride)); addr != "" {
		s.Events.Redis.Enabled = true
		s.Events.Redis.Addr = addr
	}

	if s.Journal.DSN != "" {
		dsn, err := homedir.Expand(s.Journal.DSN)
		if err != nil {
			return Settings{}, errors.Wrapf(err, "expand %s", s.Journal.DSN)
		}
		s.Journal.DSN = dsn
	}
	return s, s.Validate()
}

func readConfig(v *viper.Viper, path string) error {
	explicit := path != ""
	if explicit {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return errors.Wrap(err, "expand config path")
		}
		path = expanded
	} else {
		p, err := DefaultPath()
		if err != nil {
			return nil
		}
		path = p
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return errors.Wrapf(err, "read config %s", path)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

func (s Settings) Validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("invalid base-url %q", s.BaseURL)
	}
	if s.RequestTimeout <= 0 {
		return errors.Errorf("request-timeout must be positive, got %s", s.RequestTimeout)
	}
	if err := s.Journal.Validate(); err != nil {
		return err
	}
	if s.Events.Redis.Enabled && strings.TrimSpace(s.Events.Redis.Addr) == "" {
		return errors.New("events.redis.addr is required when redis is enabled")
	}
	return nil
}
