package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the recorder and its observers.
type Config struct {
	Recording RecordingConfig
	Audio     AudioConfig
	Detection DetectionConfig
	Deepgram  DeepgramConfig
	HTTP      HTTPConfig
	MQTT      MQTTConfig
}

type RecordingConfig struct {
	OutputDir        string
	EnableMicrophone bool
}

type AudioConfig struct {
	FFmpegCommand         string
	PactlCommand          string
	MicrophoneInputFormat string
	MicrophoneDevice      string
	SampleRate            int
	Channels              int
	ChunkSize             int
}

type DetectionConfig struct {
	PollInterval  time.Duration
	WmctrlCommand string
	PatternsFile  string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	// Diarize labels speakers within each recorded source.
	Diarize bool
}

// Enabled reports whether live transcription can be used.
func (c DeepgramConfig) Enabled() bool {
	return c.APIKey != ""
}

type HTTPConfig struct {
	Enabled bool
	Addr    string
}

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Enabled reports whether a broker was configured.
func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

type fileConfig struct {
	Recording struct {
		OutputDir        string `toml:"output_dir"`
		EnableMicrophone *bool  `toml:"enable_microphone"`
	} `toml:"recording"`
	Audio struct {
		FFmpegCommand         string `toml:"ffmpeg_command"`
		PactlCommand          string `toml:"pactl_command"`
		MicrophoneInputFormat string `toml:"microphone_input_format"`
		MicrophoneDevice      string `toml:"microphone_device"`
		SampleRate            int    `toml:"sample_rate"`
		Channels              int    `toml:"channels"`
		ChunkSize             int    `toml:"chunk_size"`
	} `toml:"audio"`
	Detection struct {
		PollIntervalMS int    `toml:"poll_interval_ms"`
		WmctrlCommand  string `toml:"wmctrl_command"`
		PatternsFile   string `toml:"patterns_file"`
	} `toml:"detection"`
	Deepgram struct {
		APIKey      string `toml:"api_key"`
		APIBaseURL  string `toml:"api_base_url"`
		Model       string `toml:"model"`
		Language    string `toml:"language"`
		SmartFormat *bool  `toml:"smart_format"`
		Diarize     *bool  `toml:"diarize"`
	} `toml:"deepgram"`
	HTTP struct {
		Enabled *bool  `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"http"`
	MQTT struct {
		Broker      string `toml:"broker"`
		ClientID    string `toml:"client_id"`
		Username    string `toml:"username"`
		Password    string `toml:"password"`
		TopicPrefix string `toml:"topic_prefix"`
	} `toml:"mqtt"`
}

// Options locates the optional configuration files. Empty paths are skipped.
type Options struct {
	DotenvPath string
	ConfigPath string
}

// DefaultOptions reads ./.env and $XDG_CONFIG_HOME/meetcap/config.toml.
func DefaultOptions() Options {
	return Options{DotenvPath: ".env", ConfigPath: configFilePath()}
}

// Load resolves configuration from the default files, environment variables and defaults.
func Load() (Config, error) {
	return LoadWith(DefaultOptions())
}

// LoadWith applies, lowest precedence first: defaults, the TOML file, the
// .env file, then the process environment.
func LoadWith(opts Options) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := defaults(home)

	if opts.ConfigPath != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(opts.ConfigPath, &fc); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
		applyFile(&cfg, fc)
	}

	env := environ{}
	if opts.DotenvPath != "" {
		if values, err := godotenv.Read(opts.DotenvPath); err == nil {
			env = values
		}
	}
	applyEnv(&cfg, env)

	cfg.Recording.OutputDir = expandTilde(cfg.Recording.OutputDir)
	cfg.Detection.PatternsFile = expandTilde(cfg.Detection.PatternsFile)

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 2
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Detection.PollInterval <= 0 {
		cfg.Detection.PollInterval = time.Second
	}

	return cfg, nil
}

func defaults(home string) Config {
	return Config{
		Recording: RecordingConfig{
			OutputDir:        filepath.Join(home, "meetcap"),
			EnableMicrophone: true,
		},
		Audio: AudioConfig{
			FFmpegCommand:         "ffmpeg",
			PactlCommand:          "pactl",
			MicrophoneInputFormat: "pulse",
			MicrophoneDevice:      "default",
			SampleRate:            48000,
			Channels:              2,
			ChunkSize:             4096,
		},
		Detection: DetectionConfig{
			PollInterval:  time.Second,
			WmctrlCommand: "wmctrl",
			PatternsFile:  filepath.Join(configDir(home), "patterns"),
		},
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8787",
		},
		MQTT: MQTTConfig{
			ClientID:    "meetcap",
			TopicPrefix: "meetcap",
		},
	}
}

func applyFile(cfg *Config, fc fileConfig) {
	cfg.Recording.OutputDir = firstNonEmpty(fc.Recording.OutputDir, cfg.Recording.OutputDir)
	if fc.Recording.EnableMicrophone != nil {
		cfg.Recording.EnableMicrophone = *fc.Recording.EnableMicrophone
	}

	cfg.Audio.FFmpegCommand = firstNonEmpty(fc.Audio.FFmpegCommand, cfg.Audio.FFmpegCommand)
	cfg.Audio.PactlCommand = firstNonEmpty(fc.Audio.PactlCommand, cfg.Audio.PactlCommand)
	cfg.Audio.MicrophoneInputFormat = firstNonEmpty(fc.Audio.MicrophoneInputFormat, cfg.Audio.MicrophoneInputFormat)
	cfg.Audio.MicrophoneDevice = firstNonEmpty(fc.Audio.MicrophoneDevice, cfg.Audio.MicrophoneDevice)
	if fc.Audio.SampleRate > 0 {
		cfg.Audio.SampleRate = fc.Audio.SampleRate
	}
	if fc.Audio.Channels > 0 {
		cfg.Audio.Channels = fc.Audio.Channels
	}
	if fc.Audio.ChunkSize > 0 {
		cfg.Audio.ChunkSize = fc.Audio.ChunkSize
	}

	if fc.Detection.PollIntervalMS > 0 {
		cfg.Detection.PollInterval = time.Duration(fc.Detection.PollIntervalMS) * time.Millisecond
	}
	cfg.Detection.WmctrlCommand = firstNonEmpty(fc.Detection.WmctrlCommand, cfg.Detection.WmctrlCommand)
	cfg.Detection.PatternsFile = firstNonEmpty(fc.Detection.PatternsFile, cfg.Detection.PatternsFile)

	cfg.Deepgram.APIKey = firstNonEmpty(fc.Deepgram.APIKey, cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = firstNonEmpty(fc.Deepgram.APIBaseURL, cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.Model = firstNonEmpty(fc.Deepgram.Model, cfg.Deepgram.Model)
	cfg.Deepgram.Language = firstNonEmpty(fc.Deepgram.Language, cfg.Deepgram.Language)
	if fc.Deepgram.SmartFormat != nil {
		cfg.Deepgram.SmartFormat = *fc.Deepgram.SmartFormat
	}
	if fc.Deepgram.Diarize != nil {
		cfg.Deepgram.Diarize = *fc.Deepgram.Diarize
	}

	if fc.HTTP.Enabled != nil {
		cfg.HTTP.Enabled = *fc.HTTP.Enabled
	}
	cfg.HTTP.Addr = firstNonEmpty(fc.HTTP.Addr, cfg.HTTP.Addr)

	cfg.MQTT.Broker = firstNonEmpty(fc.MQTT.Broker, cfg.MQTT.Broker)
	cfg.MQTT.ClientID = firstNonEmpty(fc.MQTT.ClientID, cfg.MQTT.ClientID)
	cfg.MQTT.Username = firstNonEmpty(fc.MQTT.Username, cfg.MQTT.Username)
	cfg.MQTT.Password = firstNonEmpty(fc.MQTT.Password, cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = firstNonEmpty(fc.MQTT.TopicPrefix, cfg.MQTT.TopicPrefix)
}

func applyEnv(cfg *Config, env environ) {
	cfg.Recording.OutputDir = env.orDefault("MEETCAP_OUTPUT_DIR", cfg.Recording.OutputDir)
	cfg.Recording.EnableMicrophone = env.orDefaultBool("MEETCAP_ENABLE_MICROPHONE", cfg.Recording.EnableMicrophone)

	cfg.Audio.FFmpegCommand = env.orDefault("MEETCAP_FFMPEG_COMMAND", cfg.Audio.FFmpegCommand)
	cfg.Audio.PactlCommand = env.orDefault("MEETCAP_PACTL_COMMAND", cfg.Audio.PactlCommand)
	cfg.Audio.MicrophoneInputFormat = env.orDefault("MEETCAP_MIC_INPUT_FORMAT", cfg.Audio.MicrophoneInputFormat)
	cfg.Audio.MicrophoneDevice = firstNonEmpty(
		env.get("MEETCAP_MIC_DEVICE"),
		env.get("PULSE_SOURCE"),
		cfg.Audio.MicrophoneDevice,
	)
	cfg.Audio.SampleRate = env.orDefaultInt("MEETCAP_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = env.orDefaultInt("MEETCAP_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.ChunkSize = env.orDefaultInt("MEETCAP_AUDIO_CHUNK_SIZE", cfg.Audio.ChunkSize)

	pollMillis := env.orDefaultInt("MEETCAP_POLL_INTERVAL_MS", int(cfg.Detection.PollInterval/time.Millisecond))
	cfg.Detection.PollInterval = time.Duration(pollMillis) * time.Millisecond
	cfg.Detection.WmctrlCommand = env.orDefault("MEETCAP_WMCTRL_COMMAND", cfg.Detection.WmctrlCommand)
	cfg.Detection.PatternsFile = env.orDefault("MEETCAP_PATTERNS_FILE", cfg.Detection.PatternsFile)

	cfg.Deepgram.APIKey = env.orDefault("DEEPGRAM_API_KEY", cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = env.orDefault("DEEPGRAM_API_BASE", cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.Model = env.orDefault("DEEPGRAM_MODEL", cfg.Deepgram.Model)
	cfg.Deepgram.Language = env.orDefault("DEEPGRAM_LANGUAGE", cfg.Deepgram.Language)
	cfg.Deepgram.SmartFormat = env.orDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Deepgram.SmartFormat)
	cfg.Deepgram.Diarize = env.orDefaultBool("DEEPGRAM_DIARIZE", cfg.Deepgram.Diarize)

	cfg.HTTP.Enabled = env.orDefaultBool("MEETCAP_HTTP_ENABLED", cfg.HTTP.Enabled)
	cfg.HTTP.Addr = env.orDefault("MEETCAP_HTTP_ADDR", cfg.HTTP.Addr)

	cfg.MQTT.Broker = env.orDefault("MEETCAP_MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = env.orDefault("MEETCAP_MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = env.orDefault("MEETCAP_MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = env.orDefault("MEETCAP_MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = env.orDefault("MEETCAP_MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)
}

func configDir(home string) string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "meetcap")
	}
	return filepath.Join(home, ".config", "meetcap")
}

func configFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir(home), "config.toml")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// environ resolves keys from the process environment, then from .env values.
type environ map[string]string

func (e environ) get(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(e[key])
}

func (e environ) orDefault(key string, fallback string) string {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	return value
}

func (e environ) orDefaultInt(key string, fallback int) int {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (e environ) orDefaultBool(key string, fallback bool) bool {
	switch strings.ToLower(e.get(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
