package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`

	Gamdl struct {
		Binary      string   `yaml:"binary"`
		CookiesPath string   `yaml:"cookies_path"`
		LogLevel    string   `yaml:"log_level"`
		ExtraArgs   []string `yaml:"extra_args"`
	} `yaml:"gamdl"`

	OutputRoot       string  `yaml:"output_root"`
	TempDirPrefix    string  `yaml:"temp_dir_prefix"`
	TempTTLHours     float64 `yaml:"temp_ttl_hours"`
	CleanupEveryHrs  float64 `yaml:"cleanup_interval_hours"`
	Concurrency      int     `yaml:"concurrency"`
	MaxFileBytes     int64   `yaml:"max_file_bytes"`
	ProgressInterval float64 `yaml:"progress_interval_sec"`
	LockFile         string  `yaml:"lock_file"`
	LogLevel         string  `yaml:"log_level"`
	LogFormat        string  `yaml:"log_format"`
	Locale           string  `yaml:"locale"`
	LocalesDir       string  `yaml:"locales_dir"`
	CaptionShowURL   bool    `yaml:"caption_show_url"`
	DBPath           string  `yaml:"db_path"`
	HTTPAddr         string  `yaml:"http_addr"`

	Access struct {
		PublicMode *bool   `yaml:"public_mode"`
		Admins     []int64 `yaml:"admins"`
		Allowed    []int64 `yaml:"allowed"`
	} `yaml:"access"`

	ForceSub struct {
		Enabled bool   `yaml:"enabled"`
		Channel string `yaml:"channel"`
		JoinURL string `yaml:"join_url"`
	} `yaml:"force_sub"`

	Presets Presets `yaml:"presets"`
}

// LoadConfig reads the YAML file at path (a missing file is fine), then
// applies .env and environment overrides, then fills defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			dec := yaml.NewDecoder(f)
			if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	setString(&c.Gamdl.CookiesPath, "COOKIES_PATH")
	setString(&c.Gamdl.Binary, "GAMDL_BINARY")
	setString(&c.OutputRoot, "OUTPUT_ROOT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Gamdl.LogLevel, "GAMDL_LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.Locale, "LOCALE")
	setString(&c.LocalesDir, "LOCALES_DIR")
	setString(&c.TempDirPrefix, "TEMP_DIR_PREFIX")
	setString(&c.LockFile, "LOCK_FILE")
	setString(&c.DBPath, "BOT_DB_PATH")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.ForceSub.Channel, "FORCE_SUB_CHANNEL")
	setString(&c.ForceSub.JoinURL, "FORCE_SUB_JOIN_URL")
	setBool(&c.CaptionShowURL, "CAPTION_SHOW_URL")
	setBool(&c.ForceSub.Enabled, "FORCE_SUB_ENABLED")

	if v, ok := lookup("PUBLIC_MODE"); ok {
		b := truthy(v)
		c.Access.PublicMode = &b
	}
	if v, ok := lookup("ADMIN_USER_IDS"); ok {
		c.Access.Admins = ParseIDs(v)
	}
	if v, ok := lookup("ALLOWED_USER_IDS"); ok {
		c.Access.Allowed = ParseIDs(v)
	}
	if v, ok := lookup("GAMDL_EXTRA_ARGS"); ok {
		args, err := shellquote.Split(v)
		if err != nil {
			return fmt.Errorf("GAMDL_EXTRA_ARGS: %w", err)
		}
		c.Gamdl.ExtraArgs = args
	}

	var err error
	if v, ok := lookup("CONCURRENCY"); ok {
		if c.Concurrency, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("CONCURRENCY: %w", err)
		}
	}
	if v, ok := lookup("MAX_FILE_BYTES"); ok {
		if c.MaxFileBytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return fmt.Errorf("MAX_FILE_BYTES: %w", err)
		}
	}
	for key, dst := range map[string]*float64{
		"TEMP_TTL_HOURS":         &c.TempTTLHours,
		"CLEANUP_INTERVAL_HOURS": &c.CleanupEveryHrs,
		"PROGRESS_INTERVAL_SEC":  &c.ProgressInterval,
	} {
		if v, ok := lookup(key); ok {
			if *dst, err = strconv.ParseFloat(v, 64); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Gamdl.CookiesPath == "" {
		c.Gamdl.CookiesPath = "./secrets/cookies.txt"
	}
	if c.OutputRoot == "" {
		c.OutputRoot = "./downloads"
	}
	if c.TempDirPrefix == "" {
		c.TempDirPrefix = "gamdl_"
	}
	if c.TempTTLHours <= 0 {
		c.TempTTLHours = 24
	}
	if c.CleanupEveryHrs <= 0 {
		c.CleanupEveryHrs = 12
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 2 * 1024 * 1024 * 1024
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 2
	}
	if c.LockFile == "" {
		c.LockFile = "/tmp/gamdl_telegram_bot.lock"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	// The downloader follows the bot's level unless configured on its own.
	if c.Gamdl.LogLevel == "" {
		c.Gamdl.LogLevel = c.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Locale == "" {
		c.Locale = "en"
	}
	if c.LocalesDir == "" {
		c.LocalesDir = "locales"
	}
	if c.Access.PublicMode == nil {
		pub := true
		c.Access.PublicMode = &pub
	}
	if len(c.Presets) == 0 {
		c.Presets = DefaultPresets()
	}
}

// Validate reports settings that make serving impossible.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Telegram.Token) == "" {
		problems = append(problems, "TELEGRAM_BOT_TOKEN is not set")
	}
	if c.ForceSub.Enabled && strings.TrimSpace(c.ForceSub.Channel) == "" {
		problems = append(problems, "FORCE_SUB_ENABLED requires FORCE_SUB_CHANNEL")
	}
	if err := c.Presets.validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) PublicMode() bool {
	return c.Access.PublicMode == nil || *c.Access.PublicMode
}

func (c *Config) Retention() time.Duration {
	return hours(c.TempTTLHours)
}

func (c *Config) CleanupInterval() time.Duration {
	return hours(c.CleanupEveryHrs)
}

func (c *Config) ProgressEvery() time.Duration {
	return time.Duration(c.ProgressInterval * float64(time.Second))
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// ParseIDs parses a comma separated list of numeric ids, skipping junk.
func ParseIDs(raw string) []int64 {
	var out []int64
	for _, p := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err == nil && id > 0 {
			out = append(out, id)
		}
	}
	return out
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		*dst = truthy(v)
	}
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
