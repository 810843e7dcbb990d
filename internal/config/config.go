package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"pageproxy/internal/logger"
	"pageproxy/pkg/model"
)

// EnvPrefix 环境变量前缀，例如 PAGEPROXY_PROXY_URL
const EnvPrefix = "PAGEPROXY"

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version" ignored:"true"`

	Browser struct {
		DevToolsURL     string `yaml:"devToolsURL" split_words:"true"`
		Concurrency     int    `yaml:"concurrency"`
		PendingCapacity int    `yaml:"pendingCapacity" split_words:"true"`
	} `yaml:"browser"`

	Proxy struct {
		URL                         string `yaml:"url"`
		OnlyNavigation              *bool  `yaml:"onlyNavigation" split_words:"true"`
		InterceptResolutionPriority *int   `yaml:"interceptResolutionPriority" split_words:"true"`
	} `yaml:"proxy"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level      string   `yaml:"level"`
		Writer     []string `yaml:"writer"`
		File       string   `yaml:"file"`
		MaxSizeMB  int      `yaml:"maxSizeMB" split_words:"true"`
		MaxBackups int      `yaml:"maxBackups" split_words:"true"`
		MaxAgeDays int      `yaml:"maxAgeDays" split_words:"true"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.Browser.DevToolsURL = "http://127.0.0.1:9222"
	c.Browser.Concurrency = 32
	c.Browser.PendingCapacity = 256
	c.Sqlite.Dsn = "pageproxy.sqlite3"
	c.Sqlite.Prefix = "pageproxy_"
	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	c.Log.File = "logs/pageproxy.log"
	c.Log.MaxSizeMB = 50
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 14
	return c
}

// Load 读取 YAML 配置（path 为空时只用默认值），再叠加环境变量
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, fmt.Errorf("apply env: %w", err)
	}
	return c, nil
}

// ProxyDefaults 全局代理默认值
func (c *Config) ProxyDefaults() model.ProxyDefaults {
	return model.ProxyDefaults{
		ProxyURL:                    c.Proxy.URL,
		OnlyNavigation:              c.Proxy.OnlyNavigation,
		InterceptResolutionPriority: c.Proxy.InterceptResolutionPriority,
	}
}

// LoggerOptions 日志选项
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Log.Level,
		Writers:    c.Log.Writer,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}
