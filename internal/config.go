package internal

import (
	"fmt"
	"net"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

var validate = validator.New()

// RelayConfig drives cmd/relay.
type RelayConfig struct {
	Host                   string        `env:"RELAY_HOST,default=0.0.0.0" validate:"required"`
	Port                   int           `env:"RELAY_PORT,default=9000" validate:"min=1,max=65535"`
	TickInterval           time.Duration `env:"TICK_INTERVAL,default=10ms" validate:"gt=0"`
	EventBufferSize        int           `env:"EVENT_BUFFER_SIZE,default=1024" validate:"min=1"`
	MaxEventsPerConnection int           `env:"MAX_EVENTS_PER_CONNECTION,default=64" validate:"min=0"`
	ConnectionTimeout      time.Duration `env:"CONNECTION_TIMEOUT,default=10s" validate:"gt=0"`
	SinkTimeout            time.Duration `env:"SINK_TIMEOUT,default=500ms" validate:"gt=0"`
	RestartInterval        time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
	MetricInterval         time.Duration `env:"METRIC_INTERVAL,default=30s" validate:"gt=0"`
	CensoredWords          string        `env:"CENSORED_WORDS"`
	CensoredWordsDir       string        `env:"CENSORED_WORDS_DIR"`
	CharReplacement        string        `env:"CHARACTER_REPLACEMENT,default=*"`
	DebugPort              int           `env:"DEBUG_PORT,default=0" validate:"min=0,max=65535"`
	LogLevel               string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

func (c RelayConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BridgeConfig drives cmd/bridge.
type BridgeConfig struct {
	Host           string `env:"BRIDGE_HOST,default=0.0.0.0" validate:"required"`
	Port           int    `env:"BRIDGE_PORT,default=4000" validate:"min=1,max=65535"`
	PeerSendBuffer int    `env:"BRIDGE_PEER_BUFFER,default=32" validate:"min=1"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

func (c BridgeConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ClientConfig drives cmd/client. BridgeURL switches the client to the
// HTTP/WebSocket bridge instead of the UDP relay.
type ClientConfig struct {
	ServerAddress     string        `envconfig:"CHAT_SERVER_ADDRESS" default:"127.0.0.1" validate:"required"`
	ServerPort        int           `envconfig:"CHAT_SERVER_PORT" default:"9000" validate:"min=1,max=65535"`
	DisplayName       string        `envconfig:"CHAT_DISPLAY_NAME" default:"Guest" validate:"required,max=64"`
	BridgeURL         string        `envconfig:"CHAT_BRIDGE_URL" validate:"omitempty,url"`
	DedupWindow       int           `envconfig:"CHAT_DEDUP_WINDOW" default:"32" validate:"min=1"`
	TickInterval      time.Duration `envconfig:"TICK_INTERVAL" default:"10ms" validate:"gt=0"`
	ConnectionTimeout time.Duration `envconfig:"CONNECTION_TIMEOUT" default:"10s" validate:"gt=0"`
	EventBufferSize   int           `envconfig:"EVENT_BUFFER_SIZE" default:"256" validate:"min=1"`
	Plain             bool          `envconfig:"CHAT_PLAIN" default:"false"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"WARN" validate:"oneof=DEBUG INFO WARN ERROR"`
}

func (c ClientConfig) Address() string {
	return net.JoinHostPort(c.ServerAddress, strconv.Itoa(c.ServerPort))
}

func LoadRelayConfig() (RelayConfig, error) {
	var cfg RelayConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return cfg, err
	}
	if _, err := CharacterRune(cfg.CharReplacement); err != nil {
		return cfg, err
	}
	return cfg, validate.Struct(cfg)
}

func LoadBridgeConfig() (BridgeConfig, error) {
	var cfg BridgeConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return cfg, err
	}
	return cfg, validate.Struct(cfg)
}

func LoadClientConfig() (ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, validate.Struct(cfg)
}

// CharacterRune returns the moderation mask. It must be one ASCII
// character: masking rune for rune then never makes a chat line longer.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 || r[0] >= utf8.RuneSelf {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single ASCII character, got %q",
			str,
		)
	}
	return r[0], nil
}
