package config

const (
	defaultDataDir               = "~/.local/share/satchel"
	defaultLogDir                = "~/.local/share/satchel/logs"
	defaultAPIBind               = "127.0.0.1:7519"
	defaultRemoteTimeoutSeconds  = 30
	defaultMinCaptureLength      = 10
	defaultMaxCaptureLength      = 50000
	defaultDedupWindowSeconds    = 10
	defaultMaxQueueSize          = 500
	defaultMaxRetries            = 5
	defaultBaseDelaySeconds      = 2
	defaultMaxDelaySeconds       = 300
	defaultAttemptTimeoutSeconds = 30
	defaultStartupStaggerMillis  = 250
	defaultProbeIntervalSeconds  = 30
	defaultNtfyTimeoutSeconds    = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Remote: Remote{
			TimeoutSeconds: defaultRemoteTimeoutSeconds,
		},
		Capture: Capture{
			MinLength:          defaultMinCaptureLength,
			MaxLength:          defaultMaxCaptureLength,
			DedupWindowSeconds: defaultDedupWindowSeconds,
		},
		Queue: Queue{
			MaxSize: defaultMaxQueueSize,
		},
		Delivery: Delivery{
			MaxRetries:            defaultMaxRetries,
			BaseDelaySeconds:      defaultBaseDelaySeconds,
			MaxDelaySeconds:       defaultMaxDelaySeconds,
			AttemptTimeoutSeconds: defaultAttemptTimeoutSeconds,
			StartupStaggerMillis:  defaultStartupStaggerMillis,
			ProbeIntervalSeconds:  defaultProbeIntervalSeconds,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
