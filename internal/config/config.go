package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/isqad/livelook-meet/internal/core"
)

const envPrefix = "LIVELOOK"

var DefaultStunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type Config struct {
	Env      core.Environment `mapstructure:"env"`
	Relay    RelayConfig      `mapstructure:"relay"`
	Redis    RedisConfig      `mapstructure:"redis"`
	Nats     NatsConfig       `mapstructure:"nats"`
	Database DatabaseConfig   `mapstructure:"database"`
	Metrics  MetricsConfig    `mapstructure:"metrics"`
	RTC      RTCConfig        `mapstructure:"rtc"`
	Media    MediaConfig      `mapstructure:"media"`
	Peer     PeerConfig       `mapstructure:"-"`
}

type RelayConfig struct {
	// Address the relay listens on
	Address string `mapstructure:"address"`
	// URL the client dials
	URL         string `mapstructure:"url"`
	Room        string `mapstructure:"room"`
	DisplayName string `mapstructure:"display_name"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

type NatsConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

type RTCConfig struct {
	ICEServers        []string      `mapstructure:"ice_servers"`
	ICEPortRangeStart uint32        `mapstructure:"ice_port_range_start"`
	ICEPortRangeEnd   uint32        `mapstructure:"ice_port_range_end"`
	DisconnectGrace   time.Duration `mapstructure:"disconnect_grace"`
	// StallTimeout is how long a remote camera may send nothing before the
	// stage marks it stalled
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
}

type MediaConfig struct {
	FrontVideo string `mapstructure:"front_video"`
	BackVideo  string `mapstructure:"back_video"`
	Audio      string `mapstructure:"audio"`
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	FrameRate  int    `mapstructure:"frame_rate"`
}

type CodecSpec struct {
	Mime     string
	FmtpLine string
}

type PeerConfig struct {
	EnabledCodecs []CodecSpec
}

func NewConfig() *Config {
	conf := &Config{
		Env: core.DevelopmentEnv,
		Relay: RelayConfig{
			Address:     ":8080",
			URL:         "ws://localhost:8080/ws",
			DisplayName: "Guest",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		RTC: RTCConfig{
			ICEServers:        DefaultStunServers,
			ICEPortRangeStart: 50000,
			ICEPortRangeEnd:   60000,
			DisconnectGrace:   10 * time.Second,
			StallTimeout:      30 * time.Second,
		},
		Media: MediaConfig{
			Width:     1280,
			Height:    720,
			FrameRate: 30,
		},
		Peer: PeerConfig{
			EnabledCodecs: []CodecSpec{
				{Mime: "audio/opus"},
				{Mime: "video/VP8"},
			},
		},
	}

	return conf
}

// Load reads the optional config file, then environment overrides.
// An empty path means defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config %s: %w", path, err)
		}
	}

	conf := NewConfig()
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

func (c *Config) Validate() error {
	if err := c.Env.Validate(); err != nil {
		return err
	}
	if c.RTC.ICEPortRangeStart > c.RTC.ICEPortRangeEnd {
		return fmt.Errorf("invalid ICE port range %d-%d", c.RTC.ICEPortRangeStart, c.RTC.ICEPortRangeEnd)
	}
	if c.RTC.ICEPortRangeEnd > 65535 {
		return fmt.Errorf("ICE port range end %d is out of range", c.RTC.ICEPortRangeEnd)
	}
	if c.RTC.DisconnectGrace < 0 {
		return fmt.Errorf("negative disconnect grace %s", c.RTC.DisconnectGrace)
	}
	if c.RTC.StallTimeout < 0 {
		return fmt.Errorf("negative stall timeout %s", c.RTC.StallTimeout)
	}
	return nil
}

// viper only sees env vars for keys it already knows about
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("env", string(c.Env))
	v.SetDefault("relay.address", c.Relay.Address)
	v.SetDefault("relay.url", c.Relay.URL)
	v.SetDefault("relay.room", c.Relay.Room)
	v.SetDefault("relay.display_name", c.Relay.DisplayName)
	v.SetDefault("redis.addr", c.Redis.Addr)
	v.SetDefault("redis.db", c.Redis.DB)
	v.SetDefault("nats.url", c.Nats.URL)
	v.SetDefault("database.dsn", c.Database.DSN)
	v.SetDefault("metrics.address", c.Metrics.Address)
	v.SetDefault("rtc.ice_servers", c.RTC.ICEServers)
	v.SetDefault("rtc.ice_port_range_start", c.RTC.ICEPortRangeStart)
	v.SetDefault("rtc.ice_port_range_end", c.RTC.ICEPortRangeEnd)
	v.SetDefault("rtc.disconnect_grace", c.RTC.DisconnectGrace)
	v.SetDefault("rtc.stall_timeout", c.RTC.StallTimeout)
	v.SetDefault("media.front_video", c.Media.FrontVideo)
	v.SetDefault("media.back_video", c.Media.BackVideo)
	v.SetDefault("media.audio", c.Media.Audio)
	v.SetDefault("media.width", c.Media.Width)
	v.SetDefault("media.height", c.Media.Height)
	v.SetDefault("media.frame_rate", c.Media.FrameRate)
}
