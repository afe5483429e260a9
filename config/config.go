package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Patterns  PatternsConfig  `yaml:"patterns" toml:"patterns"`
	Upstream  UpstreamConfig  `yaml:"upstream" toml:"upstream"`
	DefaultAI DefaultAIConfig `yaml:"default_ai" toml:"default_ai"`
	Cron      CronConfig      `yaml:"cron" toml:"cron"`
}

type ServerConfig struct {
	Port      string `yaml:"port" toml:"port"`
	Mode      string `yaml:"mode" toml:"mode"` // debug, release
	StaticDir string `yaml:"static_dir" toml:"static_dir"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type PatternsConfig struct {
	Dir              string        `yaml:"dir" toml:"dir"`
	GlobalPromptPath string        `yaml:"global_prompt_path" toml:"global_prompt_path"`
	Watch            bool          `yaml:"watch" toml:"watch"`
	Weights          WeightsConfig `yaml:"weights" toml:"weights"`
}

// WeightsConfig 相似推荐的打分权重
type WeightsConfig struct {
	Name          int `yaml:"name" toml:"name"`
	Description   int `yaml:"description" toml:"description"`
	DescriptionZh int `yaml:"description_zh" toml:"description_zh"`
	Category      int `yaml:"category" toml:"category"`
}

type UpstreamConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds" toml:"timeout_seconds"`
	Temperature    float32 `yaml:"temperature" toml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" toml:"max_tokens"`
	CountTokens    bool    `yaml:"count_tokens" toml:"count_tokens"` // 是否在 done 事件中附带 token 估算
}

// DefaultAIConfig 数据库为空时写入的默认 API 配置
type DefaultAIConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Vendor  string `yaml:"vendor" toml:"vendor"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`
	APIKey  string `yaml:"api_key" toml:"api_key"`
}

type CronConfig struct {
	PatternRefresh string `yaml:"pattern_refresh" toml:"pattern_refresh"` // pattern 缓存刷新间隔
	IndexOptimize  string `yaml:"index_optimize" toml:"index_optimize"`   // 全文索引优化间隔
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "4000",
			Mode:      "debug",
			StaticDir: "static",
		},
		Database: DatabaseConfig{
			Path: "db/geek-hub.db",
		},
		Patterns: PatternsConfig{
			Dir:              "patterns",
			GlobalPromptPath: "global_system_prompt.md",
			Weights: WeightsConfig{
				Name:          10,
				Description:   5,
				DescriptionZh: 5,
				Category:      2,
			},
		},
		Upstream: UpstreamConfig{
			TimeoutSeconds: 120,
			Temperature:    0.7,
			MaxTokens:      4096,
		},
		DefaultAI: DefaultAIConfig{
			Name:    "默认配置",
			Vendor:  "openai",
			BaseURL: "http://127.0.0.1:7861/antigravity",
			Model:   "gemini-3-flash",
			APIKey:  "pwd",
		},
		Cron: CronConfig{
			PatternRefresh: "*/30 * * * *", // 每30分钟
			IndexOptimize:  "0 4 * * *",    // 每天凌晨4点
		},
	}
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// .env 可选,存在时先载入,不覆盖已有环境变量
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[Config] 读取 .env 失败: %v", err)
	}

	// 如果配置文件存在,读取配置
	if _, err := os.Stat(configPath); err == nil {
		if err := decodeFile(configPath, cfg); err != nil {
			return nil, err
		}
	} else {
		log.Printf("[Config] 配置文件不存在: %s, 使用默认配置", configPath)
	}

	applyEnv(cfg)
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err := toml.DecodeFile(path, cfg)
		return err
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, cfg)
	}
}

// 环境变量覆盖配置
func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"PORT":                &cfg.Server.Port,
		"GIN_MODE":            &cfg.Server.Mode,
		"STATIC_DIR":          &cfg.Server.StaticDir,
		"DB_PATH":             &cfg.Database.Path,
		"PATTERNS_DIR":        &cfg.Patterns.Dir,
		"GLOBAL_PROMPT_PATH":  &cfg.Patterns.GlobalPromptPath,
		"DEFAULT_AI_BASE_URL": &cfg.DefaultAI.BaseURL,
		"DEFAULT_AI_MODEL":    &cfg.DefaultAI.Model,
		"DEFAULT_AI_API_KEY":  &cfg.DefaultAI.APIKey,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
}

// GetServerAddress 获取服务器监听地址
func (c *Config) GetServerAddress() string {
	// 如果端口是纯数字,加上冒号前缀
	if _, err := strconv.Atoi(c.Server.Port); err == nil {
		return ":" + c.Server.Port
	}
	return c.Server.Port
}
