package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Quest    QuestConfig    `mapstructure:"quest"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
	CollectionTTL   time.Duration `mapstructure:"collection_ttl"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AdminIPs lists addresses allowed to call admin endpoints.
	// An empty slice allows all addresses (local development only).
	AdminIPs []string `mapstructure:"admin_ips"`
}

type AgentConfig struct {
	Provider string        `mapstructure:"provider"` // gemini | stub
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type QuestConfig struct {
	// CourseWeeks bounds the week field accepted from generated schedules.
	CourseWeeks int `mapstructure:"course_weeks"`
	// DuplicateWeekPolicy resolves duplicate weeks within one incoming
	// schedule: first_wins | last_wins.
	DuplicateWeekPolicy string        `mapstructure:"duplicate_week_policy"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/skillquest.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("cache.collection_ttl", "30s")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("agent.provider", "gemini")
	v.SetDefault("agent.model", "gemini-2.0-flash")
	v.SetDefault("agent.timeout", "60s")
	v.SetDefault("quest.course_weeks", 18)
	v.SetDefault("quest.duplicate_week_policy", "last_wins")
	v.SetDefault("quest.retry_attempts", 3)
	v.SetDefault("quest.retry_base_delay", "500ms")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
