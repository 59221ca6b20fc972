package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	// TLS material; the process refuses to start without it.
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`

	// Media engine worker settings.
	WorkerBin         string        `mapstructure:"worker_bin"`
	WorkerLogLevel    string        `mapstructure:"worker_log_level"`
	WorkerLogTags     []string      `mapstructure:"worker_log_tags"`
	RTCMinPort        uint16        `mapstructure:"rtc_min_port"`
	RTCMaxPort        uint16        `mapstructure:"rtc_max_port"`
	EngineGracePeriod time.Duration `mapstructure:"engine_grace_period"`

	// WebRTC transport settings.
	ListenIP                        string `mapstructure:"listen_ip"`
	AnnouncedIP                     string `mapstructure:"announced_ip"`
	MaxIncomingBitrate              uint32 `mapstructure:"max_incoming_bitrate"`
	InitialAvailableOutgoingBitrate uint32 `mapstructure:"initial_available_outgoing_bitrate"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("worker_log_level", "warn")
	v.SetDefault("worker_log_tags", []string{"info", "ice", "dtls", "rtp", "srtp", "rtcp"})
	v.SetDefault("rtc_min_port", 10000)
	v.SetDefault("rtc_max_port", 10100)
	v.SetDefault("engine_grace_period", "2s")
	v.SetDefault("listen_ip", "0.0.0.0")
	v.SetDefault("max_incoming_bitrate", 1500000)
	v.SetDefault("initial_available_outgoing_bitrate", 1000000)

	// Deployment overrides come from the environment, same names the
	// original deployment used.
	_ = v.BindEnv("port", "SERVER_PORT")
	_ = v.BindEnv("announced_ip", "SERVER_URL")
	_ = v.BindEnv("cert_file", "SSL_CERTIFICATE")
	_ = v.BindEnv("key_file", "SSL_KEY")
	_ = v.BindEnv("worker_bin", "MEDIASOUP_WORKER_BIN")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// CheckTLS verifies the certificate and key exist; without them the
// server must not start at all.
func (c *Config) CheckTLS() error {
	if c.CertFile == "" || c.KeyFile == "" {
		return fmt.Errorf("tls certificate and key paths are required")
	}
	for _, f := range []string{c.CertFile, c.KeyFile} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("tls material %s: %w", f, err)
		}
	}
	return nil
}
