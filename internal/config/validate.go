package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var knownModes = map[string]struct{}{
	"fast":   {},
	"forced": {},
	"visual": {},
}

var knownLogFormats = map[string]struct{}{
	"console": {},
	"json":    {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if _, ok := knownModes[c.Processing.DefaultMode]; !ok {
		return fmt.Errorf("processing.default_mode must be one of fast, forced, visual (got %q)", c.Processing.DefaultMode)
	}
	if c.Processing.MaxConcurrentTasks > 64 {
		return errors.New("processing.max_concurrent_tasks must be 64 or fewer")
	}
	if c.Processing.MaxAttempts > 10 {
		return errors.New("processing.max_attempts must be 10 or fewer")
	}
	if len(c.Processing.DefaultLanguages) == 0 {
		return errors.New("processing.default_languages must include at least one language")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.RetentionDays == 0 {
		return errors.New("workflow.retention_days must be positive (jobs would be deleted immediately)")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if trimmed := strings.TrimSpace(c.Notifications.WebhookURL); trimmed != "" {
		parsed, err := url.Parse(trimmed)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("notifications.webhook_url is not a valid URL: %q", trimmed)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, ok := knownLogFormats[c.Logging.Format]; !ok {
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	return nil
}
