package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every recognized setting for the assistant. All options are
// read from the environment exactly once, in Load, and validated there.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service (e.g. an ngrok forwarding address).
	// The telephony provider connects its media stream to
	// wss://<this-host>/streams/telephony. Optional; used for logging and
	// for building the stream URL handed to the dialer.
	PublicURL string `envconfig:"PUBLIC_URL" default:""`

	// Deepgram streaming STT
	DeepgramAPIKey    string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel     string `envconfig:"DEEPGRAM_MODEL" default:"nova-3"`
	DeepgramLanguage  string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`
	EnableDiarization bool   `envconfig:"ENABLE_DIARIZATION" default:"true"`

	// Anthropic reasoning service (monitor + suggestion analysis).
	// Optional: when empty the monitor is disabled and sessions run
	// transcription-only.
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY" default:""`
	MonitorModel    string `envconfig:"MONITOR_MODEL" default:"claude-sonnet-4-20250514"`
	AnswerModel     string `envconfig:"ANSWER_MODEL" default:"claude-haiku-4-5-20251001"` // conversational answers favor speed

	// Wake-word assistant ("plus one, ...") answered over TTS
	AssistantEnabled bool `envconfig:"ASSISTANT_ENABLED" default:"true"`
	AssistantQuietMS int  `envconfig:"ASSISTANT_QUIET_MS" default:"1500"` // silence that ends question collection
	AssistantPollMS  int  `envconfig:"ASSISTANT_POLL_MS" default:"500"`

	// Monitor gating
	MonitorCooldownSeconds int     `envconfig:"MONITOR_COOLDOWN" default:"45"`
	MonitorMinNewLines     int     `envconfig:"MONITOR_MIN_NEW_LINES" default:"5"`
	MonitorPollSeconds     float64 `envconfig:"MONITOR_POLL_INTERVAL" default:"2"`
	MonitorWindowLines     int     `envconfig:"MONITOR_WINDOW_LINES" default:"200"` // trailing transcript window per analysis

	// Knowledge library
	LibraryPath string `envconfig:"LIBRARY_PATH" default:"~/Library-Docs"`

	// Artifacts
	TranscriptFilePath string `envconfig:"TRANSCRIPT_FILE_PATH" default:"transcript-live.txt"`
	CaptionOutputDir   string `envconfig:"CAPTION_OUTPUT_DIR" default:"captions"`

	// Local audio capture
	SampleRate    int     `envconfig:"SAMPLE_RATE" default:"16000"`
	ChunkMillis   int     `envconfig:"CHUNK_DURATION_MS" default:"100"`
	MicGain       float64 `envconfig:"MIC_GAIN" default:"1.0"`
	LoopbackGain  float64 `envconfig:"LOOPBACK_GAIN" default:"1.0"`
	LoopbackMatch string  `envconfig:"LOOPBACK_DEVICE" default:"BlackHole"` // substring match for the loopback device name

	// Telephony (Twilio)
	TwilioAccountSID  string `envconfig:"TWILIO_ACCOUNT_SID" default:""`
	TwilioAuthToken   string `envconfig:"TWILIO_AUTH_TOKEN" default:""`
	TwilioPhoneNumber string `envconfig:"TWILIO_PHONE_NUMBER" default:""`
	DialInNumber      string `envconfig:"DIAL_IN_NUMBER" default:""`

	// Cartesia TTS (speaking suggestions into the call)
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"sonic-english"`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`

	// Resilience
	ReconnectMaxAttempts int  `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoffMS   int  `envconfig:"RECONNECT_BACKOFF" default:"1000"`   // initial backoff in milliseconds
	ReconnectMaxBackoffS int  `envconfig:"RECONNECT_MAX_BACKOFF" default:"30"` // backoff cap in seconds
	RetryMaxAttempts     int  `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff  int  `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	AbortOnSTTFailure    bool `envconfig:"ABORT_ON_STT_FAILURE" default:"false"`

	// Bounded queues
	FrameQueueSize     int `envconfig:"FRAME_QUEUE_SIZE" default:"100"`
	SendQueueSize      int `envconfig:"SEND_QUEUE_SIZE" default:"100"`
	SubscriberBufsize  int `envconfig:"SUBSCRIBER_BUFSIZE" default:"64"`
	StopDrainTimeoutMS int `envconfig:"STOP_DRAIN_TIMEOUT_MS" default:"5000"`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from a .env file (if present) and the environment,
// then validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv reads configuration from the environment only, without touching
// a .env file. Useful for containerized deployments and tests.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.LibraryPath = expandHome(cfg.LibraryPath)
	cfg.TranscriptFilePath = expandHome(cfg.TranscriptFilePath)
	cfg.CaptionOutputDir = expandHome(cfg.CaptionOutputDir)
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if c.MonitorCooldownSeconds < 0 {
		return fmt.Errorf("MONITOR_COOLDOWN must be >= 0")
	}
	if c.MonitorMinNewLines < 0 {
		return fmt.Errorf("MONITOR_MIN_NEW_LINES must be >= 0")
	}
	if c.MicGain < 0 || c.LoopbackGain < 0 {
		return fmt.Errorf("gain multipliers must be >= 0")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive")
	}
	return nil
}

// MonitorEnabled reports whether the proactive monitor can run.
func (c *Config) MonitorEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// TelephonyConfigured reports whether outbound dialing is possible.
func (c *Config) TelephonyConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" &&
		c.TwilioPhoneNumber != "" && c.DialInNumber != ""
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
