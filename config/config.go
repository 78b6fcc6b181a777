package config

import (
	"flag"
	"io/ioutil"
	"os"
	"time"

	"github.com/caarlos0/env"
	logging "github.com/sirupsen/logrus"
	"github.com/torusresearch/bijson"
)

var (
	logLevelMap = map[string]logging.Level{
		"panic": logging.PanicLevel,
		"fatal": logging.FatalLevel,
		"error": logging.ErrorLevel,
		"warn":  logging.WarnLevel,
		"info":  logging.InfoLevel,
		"debug": logging.DebugLevel,
		"trace": logging.TraceLevel,
	}
)

type Config struct {
	RelayURL string `json:"relayURL" env:"RELAY_URL"`

	// Per-request deadline for calls awaiting a relay response.
	RequestTimeoutMS int `json:"requestTimeoutMS" env:"REQUEST_TIMEOUT_MS"`

	// Buffered capacity of every notification subscriber.
	NotificationBufferSize int `json:"notificationBufferSize" env:"NOTIFICATION_BUFFER_SIZE"`

	DialAttempts int `json:"dialAttempts" env:"DIAL_ATTEMPTS"`
	DialDelayMS  int `json:"dialDelayMS" env:"DIAL_DELAY_MS"`

	// Lifetime of cached key shares, 0 keeps them until the process exits.
	ShareCacheTTLMinutes int `json:"shareCacheTTLMinutes" env:"SHARE_CACHE_TTL_MINUTES"`

	LogLevel string `json:"loglevel" env:"LOG_LEVEL"`

	TelemetryEnabled bool   `json:"telemetryEnabled" env:"TELEMETRY_ENABLED"`
	TelemetryAddr    string `json:"telemetryAddr" env:"TELEMETRY_ADDR"`
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) DialDelay() time.Duration {
	return time.Duration(c.DialDelayMS) * time.Millisecond
}

// mergeWithFlags explicitly merges flags for a given instance of Config
// NOTE: It will not override with defaults
func (c *Config) mergeWithFlags(flagConfig *Config) *Config {
	if isFlagPassed("relayURL") {
		c.RelayURL = flagConfig.RelayURL
	}
	if isFlagPassed("logLevel") {
		c.LogLevel = flagConfig.LogLevel
	}
	if isFlagPassed("requestTimeoutMS") {
		c.RequestTimeoutMS = flagConfig.RequestTimeoutMS
	}
	if isFlagPassed("telemetry") {
		c.TelemetryEnabled = flagConfig.TelemetryEnabled
	}
	return c
}

// createConfigWithFlags edits a config with flags parsed in.
// NOTE: It will not override with defaults
func (c *Config) createConfigWithFlags() string {
	relayURL := flag.String("relayURL", "", "relay websocket endpoint, e.g. wss://relay.example.com/mpc")
	logLevel := flag.String("logLevel", "", "panic, fatal, error, warn, info, debug, trace")
	requestTimeoutMS := flag.Int("requestTimeoutMS", 0, "relay request deadline in milliseconds")
	telemetry := flag.Bool("telemetry", false, "serve prometheus metrics")
	configPath := flag.String("configPath", "", "override configPath")
	flag.Parse()

	if isFlagPassed("relayURL") {
		c.RelayURL = *relayURL
	}
	if isFlagPassed("logLevel") {
		c.LogLevel = *logLevel
	}
	if isFlagPassed("requestTimeoutMS") {
		c.RequestTimeoutMS = *requestTimeoutMS
	}
	if isFlagPassed("telemetry") {
		c.TelemetryEnabled = *telemetry
	}

	return *configPath
}

// Source: https://stackoverflow.com/a/54747682
func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func readAndMarshallJSONConfig(configPath string, c *Config) error {
	jsonConfig, err := os.Open(configPath)
	if err != nil {
		return err
	}

	defer jsonConfig.Close()

	b, err := ioutil.ReadAll(jsonConfig)
	if err != nil {
		return err
	}

	err = bijson.Unmarshal(b, &c)
	if err != nil {
		return err
	}

	return nil
}

// LoadConfig merges, in increasing precedence, defaults, the JSON config
// file, environment variables and command line flags.
func LoadConfig(configPath string) *Config {
	conf := DefaultConfigSettings()
	flagConf := DefaultConfigSettings()
	providedCF := flagConf.createConfigWithFlags()
	if providedCF != "" {
		logging.WithField("configPath", providedCF).Info("overriding configPath")
		configPath = providedCF
	}

	if configPath != "" {
		err := readAndMarshallJSONConfig(configPath, &conf)
		if err != nil {
			logging.WithError(err).Warning("failed to read JSON config")
		}
	}

	err := env.Parse(&conf)
	if err != nil {
		logging.WithError(err).Error("could not parse config")
	}

	conf.mergeWithFlags(&flagConf)

	ApplyLogLevel(&conf)

	bytConf, _ := bijson.Marshal(conf)
	logging.WithField("finalConfiguration", string(bytConf)).Info()

	return &conf
}

// ApplyLogLevel sets the global logrus level from the config, unknown names
// fall back to info.
func ApplyLogLevel(c *Config) {
	level, ok := logLevelMap[c.LogLevel]
	if !ok {
		level = logging.InfoLevel
	}
	logging.SetLevel(level)
}

func DefaultConfigSettings() Config {
	return Config{
		RelayURL:               "ws://localhost:3030/mpc",
		RequestTimeoutMS:       30000,
		NotificationBufferSize: 32,
		DialAttempts:           3,
		DialDelayMS:            500,
		ShareCacheTTLMinutes:   0,
		LogLevel:               "info",
		TelemetryAddr:          ":8080",
	}
}
