package config

import (
	"fmt"
	"strings"

	"docket/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.ArchiveDir != "" {
		if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
			return fmt.Errorf("paths.archive_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeProcessing() {
	if c.Processing.MaxConcurrentTasks <= 0 {
		c.Processing.MaxConcurrentTasks = defaultMaxConcurrentTasks
	}
	if c.Processing.MaxAttempts <= 0 {
		c.Processing.MaxAttempts = defaultMaxAttempts
	}
	if c.Processing.TimeoutPerFile <= 0 {
		c.Processing.TimeoutPerFile = defaultTimeoutPerFile
	}
	if c.Processing.SkipTextChars <= 0 {
		c.Processing.SkipTextChars = defaultSkipTextChars
	}
	if c.Processing.MaxFileSizeMiB <= 0 {
		c.Processing.MaxFileSizeMiB = defaultMaxFileSizeMiB
	}
	if strings.TrimSpace(c.Processing.EngineBinary) == "" {
		c.Processing.EngineBinary = defaultEngineBinary
	}
	c.Processing.DefaultMode = strings.ToLower(strings.TrimSpace(c.Processing.DefaultMode))
	if c.Processing.DefaultMode == "" {
		c.Processing.DefaultMode = defaultMode
	}

	normalized := make([]string, 0, len(c.Processing.AllowedExtensions))
	for _, ext := range c.Processing.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	if len(normalized) == 0 {
		normalized = []string{".pdf"}
	}
	c.Processing.AllowedExtensions = normalized

	if langs := language.NormalizeSet(c.Processing.DefaultLanguages); len(langs) > 0 {
		c.Processing.DefaultLanguages = langs
	} else {
		c.Processing.DefaultLanguages = []string{"heb", "eng"}
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.RetentionDays < 0 {
		c.Workflow.RetentionDays = defaultRetentionDays
	}
	if c.Workflow.CleanupIntervalHours <= 0 {
		c.Workflow.CleanupIntervalHours = defaultCleanupInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
