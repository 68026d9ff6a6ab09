package cron_manager

import (
	"strings"
	"time"

	_const "github.com/TimeWtr/cron_manager/const"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

type Config struct {
	// RunTask false 时启动不加载任务
	RunTask bool `mapstructure:"run_task"`
	// EnablePersist 是否以数据库目录为准
	EnablePersist bool `mapstructure:"enable_persist"`
	// HandleDissociate 游离任务清理模式 ALWAYS|RANDOM
	HandleDissociate      string  `mapstructure:"handle_dissociate"`
	DissociateProbability float64 `mapstructure:"dissociate_probability"`
	ReconcileCron         string  `mapstructure:"reconcile_cron"`
	JobGroup              string  `mapstructure:"job_group"`
	TriggerGroup          string  `mapstructure:"trigger_group"`
	// Timezone IANA时区, 为空使用本地时区
	Timezone string `mapstructure:"timezone"`
	// MaxConcurrent 同时执行的任务上限, 0 表示不限制
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
	AsyncLog      bool  `mapstructure:"async_log"`
	// AsyncLogQueue 异步日志队列长度
	AsyncLogQueue int            `mapstructure:"async_log_queue"`
	Database      DatabaseConfig `mapstructure:"database"`
	Log           LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

const envPrefix = "CRONMGR"

func SetDefaults(v *viper.Viper) {
	v.SetDefault("run_task", true)
	v.SetDefault("enable_persist", false)
	v.SetDefault("handle_dissociate", _const.SweepModeRandom.String())
	v.SetDefault("dissociate_probability", _const.DefaultProbability)
	v.SetDefault("reconcile_cron", _const.DefaultCron)
	v.SetDefault("job_group", _const.DefaultJobGroup)
	v.SetDefault("trigger_group", _const.DefaultTriggerGroup)
	v.SetDefault("timezone", "")
	v.SetDefault("max_concurrent", 0)
	v.SetDefault("async_log", true)
	v.SetDefault("async_log_queue", 1024)
	v.SetDefault("database.dsn", "cron_manager.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// NewViper builds a viper instance with defaults and CRONMGR_ env overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// LoadConfig reads path when given, then applies env overrides.
func LoadConfig(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}
	return LoadWithViper(v)
}

func LoadWithViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	if _, err := _const.Parser.Parse(strings.TrimSpace(cfg.ReconcileCron)); err != nil {
		return Config{}, errors.Wrapf(ErrInvalidCron, "reconcile_cron %q: %v", cfg.ReconcileCron, err)
	}
	return cfg, nil
}

// RequireCatalog fails with ErrCatalogDisabled unless the catalog is the
// source of truth.
func (c Config) RequireCatalog() error {
	if !c.EnablePersist {
		return errors.Wrap(ErrCatalogDisabled, "set enable_persist to use the catalog")
	}
	return nil
}

func (c Config) SweepMode() _const.SweepMode {
	return _const.ParseSweepMode(c.HandleDissociate)
}

func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timezone %q", c.Timezone)
	}
	return loc, nil
}
