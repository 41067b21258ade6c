package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath 未指定路径时 Load 读取的配置文件
const DefaultPath = "config/config.yaml"

// 服务器支持的传输方式
const (
	TransportStdio  = "stdio"
	TransportHTTP   = "http"
	TransportNDJSON = "ndjson"
)

// 环境变量覆盖，在读取文件之后应用
const (
	EnvAPIURL         = "KOBOLD_API_URL"
	EnvTimeoutSeconds = "KOBOLD_TIMEOUT_SECONDS"
	EnvTransport      = "KOBOLD_MCP_TRANSPORT"
	EnvHTTPAddr       = "KOBOLD_MCP_HTTP_ADDR"
	EnvVerbose        = "KOBOLD_MCP_VERBOSE"
)

type Config struct {
	Kobold KoboldConfig `yaml:"kobold"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

type KoboldConfig struct {
	APIURL string `yaml:"api_url"`
	// TimeoutSeconds 为 0 表示请求不设客户端超时
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type ServerConfig struct {
	Transport     string   `yaml:"transport"`
	HTTPAddr      string   `yaml:"http_addr"`
	DisabledTools []string `yaml:"disabled_tools"`
}

type LogConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Default 返回没有配置文件时使用的默认配置
func Default() Config {
	return Config{
		Kobold: KoboldConfig{APIURL: "http://localhost:5001"},
		Server: ServerConfig{Transport: TransportStdio, HTTPAddr: "127.0.0.1:8765"},
	}
}

// Timeout 返回向 KoboldCpp 发请求的超时时间
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Kobold.TimeoutSeconds) * time.Second
}

// LoadEnvFile 把 .env 加载到进程环境变量；文件不存在不算错误
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load 从 YAML 文件加载配置（文件不存在时使用默认值），再应用环境变量覆盖
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.Kobold.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimeoutSeconds)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTimeoutSeconds, v, err)
		}
		cfg.Kobold.TimeoutSeconds = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvTransport)); v != "" {
		cfg.Server.Transport = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPAddr)); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvVerbose)); v != "" {
		cfg.Log.Verbose = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Kobold.APIURL) == "" {
		return fmt.Errorf("kobold.api_url must not be empty")
	}
	if c.Kobold.TimeoutSeconds < 0 {
		return fmt.Errorf("kobold.timeout_seconds must not be negative")
	}
	switch c.Server.Transport {
	case TransportStdio, TransportNDJSON:
	case TransportHTTP:
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required for the http transport")
		}
	default:
		return fmt.Errorf("unknown transport %q (want %s, %s or %s)", c.Server.Transport, TransportStdio, TransportHTTP, TransportNDJSON)
	}
	return nil
}
