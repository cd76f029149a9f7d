package constants

// Stream connection defaults.
const (
	DefaultHeartbeatIntervalSec  = 30
	DefaultMaxReconnectAttempts  = 5
	DefaultReconnectInitialMs    = 1000
	DefaultReconnectMaxMs        = 30000
	DefaultStreamWriteTimeoutSec = 10
)

// Stream close codes with defined backend meaning.
const (
	CloseCodeIntentional  = 1000
	CloseCodeInvalidToken = 4001
	CloseCodeAccessDenied = 4003
)

// Typing indicator defaults.
const (
	DefaultTypingIdleMs = 3000
)

// Audio playback defaults. Readiness is polled after handle construction
// because decode completion is not observable as an event.
const (
	DefaultAudioLoadPollAttempts   = 50
	DefaultAudioLoadPollIntervalMs = 100
	DefaultAudioDownloadTimeoutSec = 30
)

// API client defaults.
const (
	DefaultHTTPTimeoutSec = 60
	DefaultAPIPrefix      = "/api/v1"
)

// Debug server defaults.
const (
	DefaultDebugServerAddr = "127.0.0.1:8484"
)

// Credential store defaults.
const (
	DefaultCredentialDBPath = "voxchat.db"
	PBKDF2Iterations        = 100000
	NonceSize               = 12
)
