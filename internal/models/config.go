package models

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

type ServerConfig struct {
	BaseURL        string `json:"base_url"`
	HTTPTimeoutSec int    `json:"http_timeout_sec"`
}

type StreamConfig struct {
	HeartbeatIntervalSec int `json:"heartbeat_interval_sec"`
	MaxReconnectAttempts int `json:"max_reconnect_attempts"`
	ReconnectInitialMs   int `json:"reconnect_initial_ms"`
	ReconnectMaxMs       int `json:"reconnect_max_ms"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type TypingConfig struct {
	IdleTimeoutMs int `json:"idle_timeout_ms"`
}

type AudioConfig struct {
	LoadPollAttempts   int `json:"load_poll_attempts"`
	LoadPollIntervalMs int `json:"load_poll_interval_ms"`
	DownloadTimeoutSec int `json:"download_timeout_sec"`
}

type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
}

type Config struct {
	LogLevel string         `json:"log_level"`
	Server   ServerConfig   `json:"server"`
	Stream   StreamConfig   `json:"stream"`
	Database DatabaseConfig `json:"database"`
	Typing   TypingConfig   `json:"typing"`
	Audio    AudioConfig    `json:"audio"`
	Debug    DebugConfig    `json:"debug"`
	Tracing  TracingConfig  `json:"tracing"`
}
