package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	JWT           JWTConfig
	Redis         RedisConfig
	Tracing       TracingConfig       `mapstructure:"tracing"`
	CORS          CORSConfig          `mapstructure:"cors"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Psychometrics PsychometricsConfig `mapstructure:"psychometrics"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// PsychometricsConfig 测量引擎的全部可调参数，默认值与量表文档一致
type PsychometricsConfig struct {
	MinResponses       int     `mapstructure:"min_responses"`        // 区分度/标记所需最少作答数
	MinSessions        int     `mapstructure:"min_sessions"`         // alpha与分半所需最少会话数
	MinRetestPairs     int     `mapstructure:"min_retest_pairs"`     // 重测信度所需最少配对数
	RetestMinDays      int     `mapstructure:"retest_min_days"`      // 重测窗口下限（天）
	RetestMaxDays      int     `mapstructure:"retest_max_days"`      // 重测窗口上限（天）
	PopulationSD       float64 `mapstructure:"population_sd"`        // 量表标准差
	ScoreMean          float64 `mapstructure:"score_mean"`           // 量表均值
	ScoreMin           int     `mapstructure:"score_min"`            // 量表下限
	ScoreMax           int     `mapstructure:"score_max"`            // 量表上限
	ReliabilityFloor   float64 `mapstructure:"reliability_floor"`    // 低于此信度不输出置信区间
	ConfidenceLevel    float64 `mapstructure:"confidence_level"`     // 默认置信水平
	CacheTTLMinutes    int     `mapstructure:"cache_ttl_minutes"`    // 信度缓存TTL
	SEThreshold        float64 `mapstructure:"se_threshold"`         // 自适应停止的SE阈值
	MaxItems           int     `mapstructure:"max_items"`            // 单次测验最大题量
	RecomputeMinutes   int     `mapstructure:"recompute_minutes"`    // 区分度重算任务间隔
	AlphaSessionWindow int     `mapstructure:"alpha_session_window"` // 参与alpha计算的最近完成会话数上限
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("COGNITEST")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	applyPsychometricsDefaults(&cfg.Psychometrics)

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}

// applyPsychometricsDefaults 配置缺省时回落到量表文档的默认参数
func applyPsychometricsDefaults(p *PsychometricsConfig) {
	if p.MinResponses <= 0 {
		p.MinResponses = 50
	}
	if p.MinSessions <= 0 {
		p.MinSessions = 100
	}
	if p.MinRetestPairs <= 0 {
		p.MinRetestPairs = 30
	}
	if p.RetestMinDays <= 0 {
		p.RetestMinDays = 7
	}
	if p.RetestMaxDays <= 0 {
		p.RetestMaxDays = 180
	}
	if p.PopulationSD <= 0 {
		p.PopulationSD = 15
	}
	if p.ScoreMean <= 0 {
		p.ScoreMean = 100
	}
	if p.ScoreMin <= 0 {
		p.ScoreMin = 40
	}
	if p.ScoreMax <= 0 {
		p.ScoreMax = 160
	}
	if p.ReliabilityFloor <= 0 {
		p.ReliabilityFloor = 0.60
	}
	if p.ConfidenceLevel <= 0 {
		p.ConfidenceLevel = 0.95
	}
	if p.CacheTTLMinutes <= 0 {
		p.CacheTTLMinutes = 5
	}
	if p.SEThreshold <= 0 {
		p.SEThreshold = 0.30
	}
	if p.MaxItems <= 0 {
		p.MaxItems = 20
	}
	if p.RecomputeMinutes <= 0 {
		p.RecomputeMinutes = 15
	}
	if p.AlphaSessionWindow <= 0 {
		p.AlphaSessionWindow = 2000
	}
}
