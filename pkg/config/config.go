package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App          AppConfig                 `json:"app"`
	Providers    map[string]ProviderConfig `json:"providers"`
	Gateways     map[string]GatewayConfig  `json:"gateways"`
	HTTP         HTTPConfig                `json:"http"`
	Browser      BrowserConfig             `json:"browser"`
	Orchestrator OrchestratorConfig        `json:"orchestrator"`
	Server       ServerConfig              `json:"server"`
	Store        StoreConfig               `json:"store"`
	Jira         JiraConfig                `json:"jira"`
	Prompts      PromptsConfig             `json:"prompts"`
	Governance   GovernanceConfig          `json:"governance"`
}

type AppConfig struct {
	Name   string `json:"name"`
	LogDir string `json:"log_dir"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	Enabled bool   `json:"enabled"`
}

type GatewayConfig struct {
	Token   string `json:"token"`
	Enabled bool   `json:"enabled"`
	// NotifyChat is the Telegram chat that receives scheduled run reports.
	NotifyChat   int64   `json:"notify_chat,omitempty"`
	AllowedChats []int64 `json:"allowed_chats,omitempty"`
	// ChannelID is the Discord channel reports are posted to.
	ChannelID string `json:"channel_id,omitempty"`
}

type HTTPConfig struct {
	Timeout         Duration          `json:"timeout"`
	UserAgent       string            `json:"user_agent"`
	Headers         map[string]string `json:"headers,omitempty"`
	MaxSummaryChars int               `json:"max_summary_chars"`
}

type BrowserConfig struct {
	// SessionScope is "run" (one tab for the whole run) or "step".
	SessionScope  string   `json:"session_scope"`
	Headless      bool     `json:"headless"`
	CDPURL        string   `json:"cdp_url,omitempty"`
	ActionTimeout Duration `json:"action_timeout"`
	ScreenshotDir string   `json:"screenshot_dir"`
}

type OrchestratorConfig struct {
	StepTimeout    Duration `json:"step_timeout"`
	PlannerTimeout Duration `json:"planner_timeout"`
	MaxAttempts    int      `json:"max_attempts"`
	Decompose      bool     `json:"decompose"`
}

type ServerConfig struct {
	Addr      string `json:"addr"`
	AuthToken string `json:"auth_token,omitempty"`
	// MaxUploadBytes caps uploaded feature files.
	MaxUploadBytes int64 `json:"max_upload_bytes"`
}

type StoreConfig struct {
	Path             string   `json:"path"`
	ScheduleInterval Duration `json:"schedule_interval"`
}

type JiraConfig struct {
	BaseURL     string   `json:"base_url"`
	Email       string   `json:"email"`
	APIToken    string   `json:"api_token,omitempty"`
	FeaturesDir string   `json:"features_dir"`
	Timeout     Duration `json:"timeout"`
}

type PromptsConfig struct {
	Dir string `json:"dir"`
}

type GovernanceConfig struct {
	DeniedCapabilities []string `json:"denied_capabilities,omitempty"`
	DeniedKinds        []string `json:"denied_kinds,omitempty"`
	DeniedMethods      []string `json:"denied_methods,omitempty"`
	AllowedHosts       []string `json:"allowed_hosts,omitempty"`
	DeniedPatterns     []string `json:"denied_patterns,omitempty"`
}

// Duration is a time.Duration that reads "30s" style strings or a number of
// seconds from JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		App:       AppConfig{Name: "conductor", LogDir: "logs"},
		Providers: map[string]ProviderConfig{},
		Gateways:  map[string]GatewayConfig{},
		HTTP: HTTPConfig{
			Timeout:         Duration{30 * time.Second},
			UserAgent:       "conductor/1.0",
			MaxSummaryChars: 2000,
		},
		Browser: BrowserConfig{
			SessionScope:  "run",
			Headless:      true,
			ActionTimeout: Duration{15 * time.Second},
			ScreenshotDir: "screenshots",
		},
		Orchestrator: OrchestratorConfig{
			StepTimeout:    Duration{2 * time.Minute},
			PlannerTimeout: Duration{30 * time.Second},
			MaxAttempts:    1,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 1 << 20,
		},
		Store: StoreConfig{
			Path:             "data/conductor.db",
			ScheduleInterval: Duration{30 * time.Second},
		},
		Jira: JiraConfig{
			FeaturesDir: "features",
			Timeout:     Duration{30 * time.Second},
		},
		Prompts: PromptsConfig{Dir: "prompts"},
	}
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
// Secrets left empty in the file are taken from the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer file.Close()
		decoder := json.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if c.Gateways == nil {
		c.Gateways = map[string]GatewayConfig{}
	}

	if key := getenv("OPENAI_API_KEY"); key != "" {
		p, ok := c.Providers["openai"]
		if !ok {
			p = ProviderConfig{Model: getenv("OPENAI_MODEL"), Enabled: true}
			if p.Model == "" {
				p.Model = "gpt-4o-mini"
			}
		}
		if p.APIKey == "" {
			p.APIKey = key
		}
		c.Providers["openai"] = p
	}

	if c.Jira.APIToken == "" {
		c.Jira.APIToken = getenv("JIRA_API_TOKEN")
	}
	if c.Jira.BaseURL == "" {
		c.Jira.BaseURL = getenv("JIRA_BASE_URL")
	}
	if c.Jira.Email == "" {
		c.Jira.Email = getenv("JIRA_EMAIL")
	}
	if c.Server.AuthToken == "" {
		c.Server.AuthToken = getenv("HTTP_AUTH_TOKEN")
	}

	c.gatewayFromEnv("telegram", getenv("TELEGRAM_TOKEN"))
	if chat := getenv("TELEGRAM_CHAT_ID"); chat != "" {
		if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
			g := c.Gateways["telegram"]
			if g.NotifyChat == 0 {
				g.NotifyChat = id
				c.Gateways["telegram"] = g
			}
		}
	}
	c.gatewayFromEnv("discord", getenv("DISCORD_TOKEN"))
	if channel := getenv("DISCORD_CHANNEL_ID"); channel != "" {
		g := c.Gateways["discord"]
		if g.ChannelID == "" {
			g.ChannelID = channel
			c.Gateways["discord"] = g
		}
	}
}

// gatewayFromEnv fills a missing token. A gateway that is not in the file is
// enabled by its token alone.
func (c *Config) gatewayFromEnv(name, token string) {
	if token == "" {
		return
	}
	g, ok := c.Gateways[name]
	if !ok {
		g.Enabled = true
	}
	if g.Token == "" {
		g.Token = token
	}
	c.Gateways[name] = g
}

// Validate rejects settings the components cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Browser.SessionScope) {
	case "", "run", "step":
	default:
		errs = append(errs, fmt.Errorf("browser.session_scope must be \"run\" or \"step\", got %q", c.Browser.SessionScope))
	}
	for _, k := range c.Governance.DeniedKinds {
		if k != "request" && k != "interaction" {
			errs = append(errs, fmt.Errorf("governance.denied_kinds: unknown kind %q", k))
		}
	}
	if c.Orchestrator.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max_attempts must not be negative"))
	}
	for name, d := range map[string]Duration{
		"http.timeout":                 c.HTTP.Timeout,
		"browser.action_timeout":       c.Browser.ActionTimeout,
		"orchestrator.step_timeout":    c.Orchestrator.StepTimeout,
		"orchestrator.planner_timeout": c.Orchestrator.PlannerTimeout,
		"store.schedule_interval":      c.Store.ScheduleInterval,
		"jira.timeout":                 c.Jira.Timeout,
	} {
		if d.Duration < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

// GetDefaultProvider returns the first enabled provider by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

// GetDiscordConfig returns discord config if enabled and it names a channel.
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	g, ok := c.gateway("discord")
	if !ok || g.ChannelID == "" {
		return GatewayConfig{}, false
	}
	return g, true
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
