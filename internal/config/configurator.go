package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	APP_PORT                 = "APP_PORT"
	APP_HOST                 = "APP_HOST"
	API_BASE                 = "API_BASE"
	API_TIMEOUT_SECONDS      = "API_TIMEOUT_SECONDS"
	DB_HOST                  = "DB_HOST"
	DB_NAME                  = "DB_NAME"
	DB_USERNAME              = "DB_USERNAME"
	DB_PASS                  = "DB_PASS"
	DB_PORT                  = "DB_PORT"
	DB_CONN_MAX_LIFE_MINUTES = "DB_CONN_MAX_LIFE_MINUTES"
	DB_MAX_OPEN_CONNS        = "DB_MAX_OPEN_CONNS"
	DB_MIN_CONNS             = "DB_MIN_CONNS"
	JAG_DSN                  = "JAG_DSN"
	LOG_FILE                 = "LOG_FILE"
	LOG_LEVEL                = "LOG_LEVEL"
	ADMIN_PASSWORD_HASH      = "ADMIN_PASSWORD_HASH"
	ADMIN_TOKEN_SECRET       = "ADMIN_TOKEN_SECRET"
	ADMIN_TOKEN_TTL_MINUTES  = "ADMIN_TOKEN_TTL_MINUTES"
	TIMEZONE                 = "TIMEZONE"
	MAIL_HOST                = "MAIL_HOST"
	MAIL_PORT                = "MAIL_PORT"
	MAIL_USERNAME            = "MAIL_USERNAME"
	MAIL_PASSWORD            = "MAIL_PASSWORD"
	MAIL_REPORT_TO           = "MAIL_REPORT_TO"
	DOWNLOAD_DIR             = "DOWNLOAD_DIR"

	DefaultConfigFile = "./configs/.env"
)

var ErrMissingSecret = errors.New("ADMIN_TOKEN_SECRET must be set when ADMIN_PASSWORD_HASH is set")

type Entity struct {
	App   Application `mapstructure:",squash"`
	Api   Backend     `mapstructure:",squash"`
	DB    Database    `mapstructure:",squash"`
	Jag   Jaeger      `mapstructure:",squash"`
	Log   Log         `mapstructure:",squash"`
	Admin Admin       `mapstructure:",squash"`
	Mail  Mail        `mapstructure:"-"`
}

type Application struct {
	Port        string `mapstructure:"APP_PORT"`
	Host        string `mapstructure:"APP_HOST"`
	Timezone    string `mapstructure:"TIMEZONE"`
	DownloadDir string `mapstructure:"DOWNLOAD_DIR"`
}

type Backend struct {
	Base           string `mapstructure:"API_BASE"`
	TimeoutSeconds int    `mapstructure:"API_TIMEOUT_SECONDS"`
}

func (b Backend) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

type Database struct {
	Hostname     string `mapstructure:"DB_HOST"`
	Name         string `mapstructure:"DB_NAME"`
	User         string `mapstructure:"DB_USERNAME"`
	Pass         string `mapstructure:"DB_PASS"`
	Port         uint16 `mapstructure:"DB_PORT"`
	ConnLifeTime int    `mapstructure:"DB_CONN_MAX_LIFE_MINUTES"`
	MaxOpenConns int32  `mapstructure:"DB_MAX_OPEN_CONNS"`
	MinConns     int32  `mapstructure:"DB_MIN_CONNS"`
}

// Enabled reports whether the attempt log database is configured at all.
func (d Database) Enabled() bool {
	return d.Hostname != ""
}

type Jaeger struct {
	Dsn string `mapstructure:"JAG_DSN"`
}

type Log struct {
	File  string `mapstructure:"LOG_FILE"`
	Level string `mapstructure:"LOG_LEVEL"`
}

type Admin struct {
	PasswordHash    string `mapstructure:"ADMIN_PASSWORD_HASH"`
	TokenSecret     string `mapstructure:"ADMIN_TOKEN_SECRET"`
	TokenTTLMinutes int    `mapstructure:"ADMIN_TOKEN_TTL_MINUTES"`
}

func (a Admin) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type Mail struct {
	Hostname string
	Port     string
	Username string
	Password string
	ReportTo []string
}

type mailTemp struct {
	Hostname string `mapstructure:"MAIL_HOST"`
	Port     string `mapstructure:"MAIL_PORT"`
	Username string `mapstructure:"MAIL_USERNAME"`
	Password string `mapstructure:"MAIL_PASSWORD"`
	ReportTo string `mapstructure:"MAIL_REPORT_TO"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(APP_HOST, "0.0.0.0")
	v.SetDefault(APP_PORT, "8080")
	v.SetDefault(TIMEZONE, "America/Mexico_City")
	v.SetDefault(DOWNLOAD_DIR, ".")
	v.SetDefault(API_BASE, "http://127.0.0.1:8000/api")
	v.SetDefault(API_TIMEOUT_SECONDS, 90)
	v.SetDefault(DB_HOST, "")
	v.SetDefault(DB_NAME, "maraton")
	v.SetDefault(DB_USERNAME, "")
	v.SetDefault(DB_PASS, "")
	v.SetDefault(DB_PORT, 5432)
	v.SetDefault(DB_CONN_MAX_LIFE_MINUTES, 30)
	v.SetDefault(DB_MAX_OPEN_CONNS, 20)
	v.SetDefault(DB_MIN_CONNS, 2)
	v.SetDefault(JAG_DSN, "")
	v.SetDefault(LOG_FILE, "./logs/logs.txt")
	v.SetDefault(LOG_LEVEL, "info")
	v.SetDefault(ADMIN_PASSWORD_HASH, "")
	v.SetDefault(ADMIN_TOKEN_SECRET, "")
	v.SetDefault(ADMIN_TOKEN_TTL_MINUTES, 480)
	v.SetDefault(MAIL_HOST, "")
	v.SetDefault(MAIL_PORT, "587")
	v.SetDefault(MAIL_USERNAME, "")
	v.SetDefault(MAIL_PASSWORD, "")
	v.SetDefault(MAIL_REPORT_TO, "")
}

// NewConfig reads the configuration into the global viper instance, so that
// viper.WatchConfig in the server sees the same file.
func NewConfig(file string) (*Entity, error) {
	return Load(viper.GetViper(), file)
}

// Load fills an Entity from defaults, the optional env file and the process
// environment, in increasing order of priority.
func Load(v *viper.Viper, file string) (*Entity, error) {
	setDefaults(v)
	v.AllowEmptyEnv(false)
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isNotExist(err) {
				return nil, fmt.Errorf("NewConfig failed: %w", err)
			}
			// File is absent, environment and defaults are enough.
		}
	}

	config := &Entity{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("NewConfig failed: %w", err)
	}

	temp := &mailTemp{}
	if err := v.Unmarshal(temp); err != nil {
		return nil, fmt.Errorf("NewConfig failed: %w", err)
	}
	config.Mail = Mail{
		Hostname: temp.Hostname,
		Port:     temp.Port,
		Username: temp.Username,
		Password: temp.Password,
		ReportTo: splitList(temp.ReportTo),
	}

	config.Api.Base = strings.TrimRight(config.Api.Base, "/")

	if config.Admin.PasswordHash != "" && config.Admin.TokenSecret == "" {
		return nil, fmt.Errorf("NewConfig failed: %w", ErrMissingSecret)
	}

	return config, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
