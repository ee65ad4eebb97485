package config

// Default values applied before the config file is read.
const (
	DefaultAddr             = ":8080"
	DefaultDBPath           = "lostfound.sqlite3"
	DefaultTokenExpiryHours = 7 * 24
	DefaultShutdownTimeout  = 5
	DefaultQueueSize        = 256
	DefaultRequestTimeout   = 10
	DefaultWorkers          = 4
	DefaultGeminiModel      = "gemini-2.5-flash"
	DefaultGeminiTimeout    = 20
)

// Sink names.
const (
	SinkLog     = "log"
	SinkSMTP    = "smtp"
	SinkWebhook = "webhook"
	SinkNone    = "none"
)

// Scorer names.
const (
	ScorerKeyword = "keyword"
	ScorerGemini  = "gemini"
)

// Log formats.
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Default returns a configuration populated with defaults.
func Default() Config {
	return Config{
		Server: Server{
			Addr:             DefaultAddr,
			DBPath:           DefaultDBPath,
			LogFormat:        LogFormatAuto,
			TokenExpiryHours: DefaultTokenExpiryHours,
			ShutdownTimeout:  DefaultShutdownTimeout,
		},
		Notifications: Notifications{
			Sink:           SinkLog,
			QueueSize:      DefaultQueueSize,
			RequestTimeout: DefaultRequestTimeout,
		},
		Matching: Matching{
			Scorer:           ScorerKeyword,
			Workers:          DefaultWorkers,
			StrictCategories: true,
		},
		Gemini: Gemini{
			Model:          DefaultGeminiModel,
			TimeoutSeconds: DefaultGeminiTimeout,
		},
	}
}
