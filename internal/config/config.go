package config

import (
	"encoding/json"
	"net/url"
	"os"
	"strings"

	"voxchat/internal/constants"
	"voxchat/internal/models"
)

var (
	ErrMissingServerURL = models.ConfigError{Message: "missing chat server base URL"}
	ErrInvalidServerURL = models.ConfigError{Message: "chat server base URL must be http or https"}
)

func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Server.BaseURL == "" {
		return ErrMissingServerURL
	}

	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidServerURL
	}
	c.Server.BaseURL = strings.TrimSuffix(c.Server.BaseURL, "/")

	if c.Server.HTTPTimeoutSec <= 0 {
		c.Server.HTTPTimeoutSec = constants.DefaultHTTPTimeoutSec
	}

	if c.Stream.HeartbeatIntervalSec <= 0 {
		c.Stream.HeartbeatIntervalSec = constants.DefaultHeartbeatIntervalSec
	}
	if c.Stream.MaxReconnectAttempts <= 0 {
		c.Stream.MaxReconnectAttempts = constants.DefaultMaxReconnectAttempts
	}
	if c.Stream.ReconnectInitialMs <= 0 {
		c.Stream.ReconnectInitialMs = constants.DefaultReconnectInitialMs
	}
	if c.Stream.ReconnectMaxMs <= 0 {
		c.Stream.ReconnectMaxMs = constants.DefaultReconnectMaxMs
	}

	if c.Typing.IdleTimeoutMs <= 0 {
		c.Typing.IdleTimeoutMs = constants.DefaultTypingIdleMs
	}

	if c.Audio.LoadPollAttempts <= 0 {
		c.Audio.LoadPollAttempts = constants.DefaultAudioLoadPollAttempts
	}
	if c.Audio.LoadPollIntervalMs <= 0 {
		c.Audio.LoadPollIntervalMs = constants.DefaultAudioLoadPollIntervalMs
	}
	if c.Audio.DownloadTimeoutSec <= 0 {
		c.Audio.DownloadTimeoutSec = constants.DefaultAudioDownloadTimeoutSec
	}

	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultCredentialDBPath
	}

	if c.Debug.Addr == "" {
		c.Debug.Addr = constants.DefaultDebugServerAddr
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "voxchat"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 0.1
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if u := os.Getenv("VOXCHAT_SERVER_URL"); u != "" {
		c.Server.BaseURL = u
	}
	if path := os.Getenv("VOXCHAT_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if level := os.Getenv("VOXCHAT_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if addr := os.Getenv("VOXCHAT_DEBUG_ADDR"); addr != "" {
		c.Debug.Addr = addr
	}
}
