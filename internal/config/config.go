package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	FTP    FTPConfig    `yaml:"ftp" mapstructure:"ftp"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// FTPConfig configures the DMR FTP drop endpoint.
type FTPConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// IngestConfig configures the extraction pipeline.
type IngestConfig struct {
	TempDir        string `yaml:"temp_dir" mapstructure:"temp_dir"`
	RecordElement  string `yaml:"record_element" mapstructure:"record_element"`
	PlateElement   string `yaml:"plate_element" mapstructure:"plate_element"`
	ProgressStep   int    `yaml:"progress_step" mapstructure:"progress_step"`
	MilestoneEvery int    `yaml:"milestone_every" mapstructure:"milestone_every"`
	PreviewSize    int    `yaml:"preview_size" mapstructure:"preview_size"`
}

// StoreConfig configures the optional SQLite sink. Empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the configuration can drive an ingest run.
func (c *Config) Validate() error {
	var problems []string

	if c.FTP.Host == "" {
		problems = append(problems, "ftp.host is required")
	}
	if c.FTP.Dir == "" {
		problems = append(problems, "ftp.dir is required")
	}
	if c.Ingest.ProgressStep < 1 || c.Ingest.ProgressStep > 100 {
		problems = append(problems, "ingest.progress_step must be between 1 and 100")
	}
	if c.Ingest.MilestoneEvery < 1 {
		problems = append(problems, "ingest.milestone_every must be > 0")
	}
	if c.Ingest.PreviewSize < 1 {
		problems = append(problems, "ingest.preview_size must be > 0")
	}
	if c.Ingest.RecordElement == "" {
		problems = append(problems, "ingest.record_element is required")
	}
	if c.Ingest.PlateElement == "" {
		problems = append(problems, "ingest.plate_element is required")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DMR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ftp.host", "5.44.137.84:21")
	v.SetDefault("ftp.dir", "/ESStatistikListeModtag")
	v.SetDefault("ftp.user", "anonymous")
	v.SetDefault("ftp.password", "anonymous")
	v.SetDefault("ftp.timeout_secs", 30)
	v.SetDefault("ingest.temp_dir", "")
	v.SetDefault("ingest.record_element", "Vehicle")
	v.SetDefault("ingest.plate_element", "LicensePlate")
	v.SetDefault("ingest.progress_step", 1)
	v.SetDefault("ingest.milestone_every", 1000)
	v.SetDefault("ingest.preview_size", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
