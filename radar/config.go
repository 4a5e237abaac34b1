package radar

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration. Structure and
// intervals come from YAML; credentials and tokens come only from the
// environment so they never land in a config file.
type Config struct {
	// DataDir is the root for the database, cache, buzz snapshots,
	// and published snapshot files.
	DataDir string `yaml:"data_dir"`

	// CacheTTL bounds reuse of cached scrape results.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	Remote  RemoteConfig  `yaml:"remote"`
	Twitter TwitterConfig `yaml:"twitter"`
	Reddit  RedditConfig  `yaml:"reddit"`
	News    NewsConfig    `yaml:"news"`
	Dex     DexConfig     `yaml:"dex"`
}

// RemoteConfig points at the remote snapshot object store.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"-"` // DEGEN_REMOTE_TOKEN
}

// HourWindow bounds a source to a daily UTC hour range.
type HourWindow struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// TwitterConfig drives the browser source.
type TwitterConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Queries       []string      `yaml:"queries"`
	ItemCap       int           `yaml:"item_cap"`
	MinEngagement int64         `yaml:"min_engagement"`
	Interval      time.Duration `yaml:"interval"`
	JitterPct     float64       `yaml:"jitter_pct"`
	ActiveHours   *HourWindow   `yaml:"active_hours"`
	// Headful runs a visible browser. Debugging only.
	Headful  bool   `yaml:"headful"`
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"-"` // DEGEN_TWITTER_USERNAME
	Password string `yaml:"-"` // DEGEN_TWITTER_PASSWORD
}

// RedditConfig drives the subreddit feed source. Feed entries carry
// no engagement counters, so there is no min_engagement knob here; a
// threshold would silently zero out the source.
type RedditConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Subreddits []string      `yaml:"subreddits"`
	Endpoint   string        `yaml:"endpoint"`
	ItemCap    int           `yaml:"item_cap"`
	Interval   time.Duration `yaml:"interval"`
}

// NewsConfig drives the headline feed source.
type NewsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	ItemCap  int           `yaml:"item_cap"`
	Interval time.Duration `yaml:"interval"`
}

// DexConfig drives the DEX quote feed source.
type DexConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	ItemCap  int           `yaml:"item_cap"`
	Interval time.Duration `yaml:"interval"`
}

// LoadConfig reads a YAML config file, overlays environment
// credentials, and validates. Unknown YAML keys are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("radar: read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("radar: parse config: %w", err)
	}

	cfg.defaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 2 * time.Hour
	}
	if c.Twitter.ItemCap <= 0 {
		c.Twitter.ItemCap = 40
	}
	if c.Twitter.Interval <= 0 {
		c.Twitter.Interval = 45 * time.Minute
	}
	if c.Twitter.JitterPct <= 0 {
		c.Twitter.JitterPct = 0.2
	}
	if c.Twitter.BaseURL == "" {
		c.Twitter.BaseURL = "https://x.com"
	}
	if c.Reddit.Endpoint == "" {
		c.Reddit.Endpoint = "https://www.reddit.com"
	}
	if c.Reddit.ItemCap <= 0 {
		c.Reddit.ItemCap = 100
	}
	if c.Reddit.Interval <= 0 {
		c.Reddit.Interval = 30 * time.Minute
	}
	if c.News.ItemCap <= 0 {
		c.News.ItemCap = 100
	}
	if c.News.Interval <= 0 {
		c.News.Interval = 30 * time.Minute
	}
	if c.Dex.ItemCap <= 0 {
		c.Dex.ItemCap = 100
	}
	if c.Dex.Interval <= 0 {
		c.Dex.Interval = 30 * time.Minute
	}
}

// applyEnv overlays secrets from the environment. A .env file in the
// working directory is honored when present.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("DEGEN_TWITTER_USERNAME"); v != "" {
		c.Twitter.Username = v
	}
	if v := os.Getenv("DEGEN_TWITTER_PASSWORD"); v != "" {
		c.Twitter.Password = v
	}
	if v := os.Getenv("DEGEN_REMOTE_TOKEN"); v != "" {
		c.Remote.Token = v
	}
	if v := os.Getenv("DEGEN_REMOTE_URL"); v != "" {
		c.Remote.BaseURL = v
	}
}

func (c *Config) validate() error {
	if c.Twitter.Enabled {
		if len(c.Twitter.Queries) == 0 {
			return fmt.Errorf("radar: twitter enabled with no queries")
		}
		if c.Twitter.Username == "" || c.Twitter.Password == "" {
			return fmt.Errorf("%w: set DEGEN_TWITTER_USERNAME and DEGEN_TWITTER_PASSWORD", ErrNoSession)
		}
		if w := c.Twitter.ActiveHours; w != nil {
			if w.Start < 0 || w.Start > 23 || w.End < 0 || w.End > 23 {
				return fmt.Errorf("radar: active_hours out of range: %d-%d", w.Start, w.End)
			}
		}
	}
	if c.Reddit.Enabled && len(c.Reddit.Subreddits) == 0 {
		return fmt.Errorf("radar: reddit enabled with no subreddits")
	}
	if c.News.Enabled && c.News.Endpoint == "" {
		return fmt.Errorf("radar: news enabled with no endpoint")
	}
	if c.Dex.Enabled && c.Dex.Endpoint == "" {
		return fmt.Errorf("radar: dex enabled with no endpoint")
	}
	return nil
}

// DBPath is the sqlite database location under DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "radar.db")
}
