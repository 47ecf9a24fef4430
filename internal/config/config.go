package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// TCPConfig 调试链路监听配置（host 侧）
// 一台设备同一时刻只服务一个调试会话；MaxSessions 仅在多实例仿真时调大
type TCPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
	MaxSessions  int           `mapstructure:"maxSessions"`
	OnBusy       string        `mapstructure:"onBusy"` // reject | takeover
	AcceptRate   float64       `mapstructure:"acceptRate"`
	AcceptBurst  int           `mapstructure:"acceptBurst"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// ProtocolConfig 帧与中间件管道配置
type ProtocolConfig struct {
	Unit           uint8    `mapstructure:"unit"`
	Session        uint8    `mapstructure:"session"`
	MaxFrameBuffer int      `mapstructure:"maxFrameBuffer"`
	ReadSize       int      `mapstructure:"readSize"`
	Pipeline       []string `mapstructure:"pipeline"`
	ZstdLevel      int      `mapstructure:"zstdLevel"`
	ChunkMax       int      `mapstructure:"chunkMax"`
}

// DeviceConfig 设备身份与通道配置
type DeviceConfig struct {
	Profile  string `mapstructure:"profile"`
	Channels uint8  `mapstructure:"channels"`
}

// RegistersConfig 寄存器存储配置
type RegistersConfig struct {
	Backend string `mapstructure:"backend"` // memory | redis
	Size    uint32 `mapstructure:"size"`
	Key     string `mapstructure:"key"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// SerialConfig 串口参数
type SerialConfig struct {
	Name string `mapstructure:"name"`
	Baud int    `mapstructure:"baud"`
}

// ClientConfig 调试器侧连接配置
type ClientConfig struct {
	Transport   string        `mapstructure:"transport"` // tcp | serial
	Addr        string        `mapstructure:"addr"`
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	Serial      SerialConfig  `mapstructure:"serial"`
}

// Config 顶层配置结构
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	TCP       TCPConfig       `mapstructure:"tcp"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Device    DeviceConfig    `mapstructure:"device"`
	Registers RegistersConfig `mapstructure:"registers"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Client    ClientConfig    `mapstructure:"client"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 EDLINK_CONFIG 读取；否则回退到 configs/edlink.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("EDLINK_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("edlink")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 EDLINK_，并将点号替换为下划线
	v.SetEnvPrefix("EDLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Registers.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("registers.backend: unsupported %q", c.Registers.Backend)
	}
	switch c.TCP.OnBusy {
	case "reject", "takeover":
	default:
		return fmt.Errorf("tcp.onBusy: unsupported %q", c.TCP.OnBusy)
	}
	switch c.Client.Transport {
	case "tcp", "serial":
	default:
		return fmt.Errorf("client.transport: unsupported %q", c.Client.Transport)
	}
	if c.Protocol.MaxFrameBuffer < 0 || c.Protocol.ReadSize < 0 {
		return fmt.Errorf("protocol: maxFrameBuffer and readSize must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "edlink")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("tcp.addr", "[::]:34254")
	v.SetDefault("tcp.readTimeout", "200ms")
	v.SetDefault("tcp.writeTimeout", "5s")
	v.SetDefault("tcp.idleTimeout", "5m")
	v.SetDefault("tcp.maxSessions", 1)
	v.SetDefault("tcp.onBusy", "takeover")
	v.SetDefault("tcp.acceptRate", 10)
	v.SetDefault("tcp.acceptBurst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/edlink.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("protocol.unit", 1)
	v.SetDefault("protocol.session", 1)
	v.SetDefault("protocol.maxFrameBuffer", 1024)
	v.SetDefault("protocol.readSize", 256)
	v.SetDefault("protocol.pipeline", []string{"inspect"})
	v.SetDefault("protocol.zstdLevel", 3)
	v.SetDefault("protocol.chunkMax", 4096)

	v.SetDefault("device.profile", "")
	v.SetDefault("device.channels", 4)

	v.SetDefault("registers.backend", "memory")
	v.SetDefault("registers.size", 4096)
	v.SetDefault("registers.key", "edlink:registers")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")

	v.SetDefault("client.transport", "tcp")
	v.SetDefault("client.addr", "[::1]:34254")
	v.SetDefault("client.dialTimeout", "5s")
	v.SetDefault("client.readTimeout", "200ms")
	v.SetDefault("client.serial.name", "/dev/ttyUSB0")
	v.SetDefault("client.serial.baud", 115200)
}
