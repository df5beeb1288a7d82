package config

const (
	defaultOutputDir          = "~/.local/share/docket/output"
	defaultLogDir             = "~/.local/share/docket/logs"
	defaultDataDir            = "~/.local/share/docket"
	defaultAPIBind            = "127.0.0.1:7311"
	defaultMaxConcurrentTasks = 4
	defaultMaxAttempts        = 3
	defaultTimeoutPerFile     = 600
	defaultSkipTextChars      = 50
	defaultMaxFileSizeMiB     = 100
	defaultMode               = "fast"
	defaultEngineBinary       = "ocrmypdf"
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultRetentionDays      = 90
	defaultCleanupInterval    = 24
	defaultNotifyTimeout      = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			DataDir:   defaultDataDir,
			APIBind:   defaultAPIBind,
		},
		Processing: Processing{
			MaxConcurrentTasks: defaultMaxConcurrentTasks,
			MaxAttempts:        defaultMaxAttempts,
			TimeoutPerFile:     defaultTimeoutPerFile,
			SkipTextChars:      defaultSkipTextChars,
			MaxFileSizeMiB:     defaultMaxFileSizeMiB,
			AllowedExtensions:  []string{".pdf"},
			DefaultMode:        defaultMode,
			DefaultLanguages:   []string{"heb", "eng"},
			EngineBinary:       defaultEngineBinary,
		},
		Workflow: Workflow{
			QueuePollInterval:    defaultQueuePollInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
			RetentionDays:        defaultRetentionDays,
			CleanupIntervalHours: defaultCleanupInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			TaskExhausted:  true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
