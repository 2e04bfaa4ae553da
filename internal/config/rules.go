package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Rule types.
const (
	RuleThreshold = "threshold"
	RuleDrop      = "drop"
)

// Severity levels for threshold rules.
const (
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// RulesConfig is the immutable alerting snapshot loaded once at startup.
// There is no hot reload; restart the service to change rules.
type RulesConfig struct {
	Rules    []RuleConfig    `yaml:"rules"`
	Channels []ChannelConfig `yaml:"channels"`
}

// RuleConfig defines one alert rule. Threshold rules fire after coverage
// stays below the threshold for min_duration; drop rules fire on a relative
// decrease bigger than drop_percentage within window.
type RuleConfig struct {
	// Name identifies the rule and keys its per-scope state.
	Name string `yaml:"name"`

	// Type is one of: threshold | drop.
	Type string `yaml:"type"`

	// Level is one of: warning | critical. Threshold rules only.
	Level string `yaml:"level"`

	// Threshold is the coverage percentage a sample must stay above.
	Threshold float64 `yaml:"threshold"`

	// MinDuration is how long coverage must stay continuously below the
	// threshold before the rule fires. Zero fires on the first breach.
	MinDuration time.Duration `yaml:"min_duration"`

	// DropPercentage is the relative decrease (in points) that triggers a
	// drop rule.
	DropPercentage float64 `yaml:"drop_percentage"`

	// Window is the lookback for drop rules, and also the minimum gap
	// between consecutive fires of the same drop rule.
	Window time.Duration `yaml:"window"`
}

// ChannelConfig defines one notification delivery target. Secrets are
// resolved from the environment via *_env indirection, never stored inline.
type ChannelConfig struct {
	// Type is one of: slack | webhook | email | telegram | kafka.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook URL
	// (slack and webhook channels).
	URLEnv string `yaml:"url_env"`

	// SlackChannel optionally overrides the webhook's default channel.
	SlackChannel string `yaml:"slack_channel"`

	// Email settings. Username/password are resolved from the environment.
	SMTPServer  string   `yaml:"smtp_server"`
	SMTPPort    int      `yaml:"smtp_port"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
	UserEnv     string   `yaml:"user_env"`
	PasswordEnv string   `yaml:"password_env"`

	// Telegram settings.
	TokenEnv string `yaml:"token_env"`
	ChatID   int64  `yaml:"chat_id"`

	// Kafka alert-manager push settings.
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// URL returns the webhook URL resolved from the environment.
func (c ChannelConfig) URL() string {
	if c.URLEnv == "" {
		return ""
	}
	return os.Getenv(c.URLEnv)
}

// Token returns the bot token resolved from the environment.
func (c ChannelConfig) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}

// User and Password resolve SMTP credentials from the environment.
func (c ChannelConfig) User() string     { return os.Getenv(c.UserEnv) }
func (c ChannelConfig) Password() string { return os.Getenv(c.PasswordEnv) }

// LoadRules parses the YAML rules file at path. An empty path returns the
// built-in default rule set.
func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return RulesConfig{}, fmt.Errorf("read rules file: %w", err)
	}
	var rc RulesConfig
	if err := yaml.Unmarshal(raw, &rc); err != nil {
		return RulesConfig{}, fmt.Errorf("parse rules file: %w", err)
	}
	if err := rc.validate(); err != nil {
		return RulesConfig{}, err
	}
	return rc, nil
}

func (rc RulesConfig) validate() error {
	seen := make(map[string]bool, len(rc.Rules))
	for _, r := range rc.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule without a name")
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
		switch r.Type {
		case RuleThreshold:
			if r.Level != LevelWarning && r.Level != LevelCritical {
				return fmt.Errorf("rule %q: level must be warning or critical", r.Name)
			}
			if r.Threshold <= 0 || r.Threshold > 100 {
				return fmt.Errorf("rule %q: threshold out of range", r.Name)
			}
			if r.MinDuration < 0 {
				return fmt.Errorf("rule %q: negative min_duration", r.Name)
			}
		case RuleDrop:
			if r.DropPercentage <= 0 {
				return fmt.Errorf("rule %q: drop_percentage must be positive", r.Name)
			}
			if r.Window <= 0 {
				return fmt.Errorf("rule %q: window must be positive", r.Name)
			}
		default:
			return fmt.Errorf("rule %q: unknown type %q", r.Name, r.Type)
		}
	}
	for i, ch := range rc.Channels {
		switch ch.Type {
		case "slack", "webhook", "email", "telegram", "kafka":
		default:
			return fmt.Errorf("channel %d: unknown type %q", i, ch.Type)
		}
	}
	return nil
}

// DefaultRules mirrors the historical 80%-warning / 70%-critical ladder plus
// a sudden-drop rule. Used when no rules file is configured.
func DefaultRules() RulesConfig {
	return RulesConfig{
		Rules: []RuleConfig{
			{
				Name:        "low-coverage",
				Type:        RuleThreshold,
				Level:       LevelWarning,
				Threshold:   80.0,
				MinDuration: 5 * time.Minute,
			},
			{
				Name:        "critical-coverage",
				Type:        RuleThreshold,
				Level:       LevelCritical,
				Threshold:   70.0,
				MinDuration: 2 * time.Minute,
			},
			{
				Name:           "sudden-drop",
				Type:           RuleDrop,
				DropPercentage: 5.0,
				Window:         time.Hour,
			},
		},
	}
}
