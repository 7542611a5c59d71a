package config

const (
	defaultWorkspaceRoot         = "~/.local/share/audiograb/workspaces"
	defaultLogDir                = "~/.local/share/audiograb/logs"
	defaultBind                  = "127.0.0.1:3000"
	defaultServiceName           = "audiograb"
	defaultMaxBodyBytes          = 1 << 20
	defaultMaxConcurrentJobs     = 4
	defaultJobTimeoutSeconds     = 600
	defaultStaleWorkspaceMinutes = 60
	defaultSweepIntervalMinutes  = 15
	defaultMinFreeMB             = 256
	defaultYtdlpBinary           = "yt-dlp"
	defaultResolveTimeoutSeconds = 60
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultTranscodeTimeout      = 300
	defaultSampleRate            = 44100
	defaultRateLimitRequests     = 100
	defaultRateLimitWindow       = 900
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceRoot: defaultWorkspaceRoot,
			LogDir:        defaultLogDir,
		},
		Server: Server{
			Bind:           defaultBind,
			ServiceName:    defaultServiceName,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   defaultMaxBodyBytes,
		},
		Jobs: Jobs{
			MaxConcurrent:         defaultMaxConcurrentJobs,
			TimeoutSeconds:        defaultJobTimeoutSeconds,
			StaleWorkspaceMinutes: defaultStaleWorkspaceMinutes,
			SweepIntervalMinutes:  defaultSweepIntervalMinutes,
			MinFreeMB:             defaultMinFreeMB,
		},
		Extractor: Extractor{
			Binary:                defaultYtdlpBinary,
			ResolveTimeoutSeconds: defaultResolveTimeoutSeconds,
		},
		Transcoder: Transcoder{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			TimeoutSeconds: defaultTranscodeTimeout,
			SampleRate:     defaultSampleRate,
			VerifyOutput:   true,
		},
		RateLimit: RateLimit{
			Enabled:       true,
			Requests:      defaultRateLimitRequests,
			WindowSeconds: defaultRateLimitWindow,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
