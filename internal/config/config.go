package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host              string
	Port              int
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	TrustedProxies    []string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketAvatars string
	UseSSL        bool
	Region        string
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	// Refresh tokens are rotated once the session has less than this left.
	RefreshThreshold time.Duration
	MaxSessions      int
	CookieDomain     string
}

type VerificationConfig struct {
	EmailCodeTTL     time.Duration
	ResetCodeTTL     time.Duration
	ResetWindow      time.Duration
	ResetMaxInWindow int
}

type MFAConfig struct {
	Issuer string
}

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Stream   string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	StateTTL     time.Duration
}

type OAuthConfig struct {
	Google GoogleConfig
}

type AppConfig struct {
	ClientOrigin       string
	FailureRedirectURL string
}

type RateLimitConfig struct {
	AuthPerMinute int
	Burst         int
}

type Config struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Verification     VerificationConfig
	MFA              MFAConfig
	Mail             MailConfig
	OAuth            OAuthConfig
	App              AppConfig
	RateLimit        RateLimitConfig
	Worker           WorkerConfig
	AllowCORSOrigins []string
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Validate() error {
	if c.Security.JWTAccessSecret == "" || c.Security.JWTRefreshSecret == "" {
		return errors.New("security: jwt access and refresh secrets are required")
	}
	if c.Security.JWTAccessSecret == c.Security.JWTRefreshSecret {
		return errors.New("security: jwt access and refresh secrets must differ")
	}
	if c.Security.JWTAccessTTL <= 0 || c.Security.JWTRefreshTTL <= 0 {
		return errors.New("security: token ttls must be positive")
	}
	if c.Verification.ResetMaxInWindow <= 0 {
		return errors.New("verification: resetmaxinwindow must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("TASKHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Keys without defaults are invisible to AutomaticEnv during Unmarshal.
var envOnlyKeys = []string{
	"postgres.dsn",
	"redis.password",
	"storage.endpoint",
	"storage.accesskey",
	"storage.secretkey",
	"security.jwtaccesssecret",
	"security.jwtrefreshsecret",
	"security.cookiedomain",
	"mail.host",
	"mail.username",
	"mail.password",
	"oauth.google.clientid",
	"oauth.google.clientsecret",
	"oauth.google.redirecturl",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8000)
	v.SetDefault("http.readheadertimeout", "5s")
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolsize", 20)
	v.SetDefault("redis.dialtimeout", "5s")
	v.SetDefault("redis.readtimeout", "3s")

	v.SetDefault("storage.bucketavatars", "taskhub-avatars")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "720h") // 30 days
	v.SetDefault("security.refreshthreshold", "24h")
	v.SetDefault("security.maxsessions", 10)

	v.SetDefault("verification.emailcodettl", "45m")
	v.SetDefault("verification.resetcodettl", "1h")
	v.SetDefault("verification.resetwindow", "3m")
	v.SetDefault("verification.resetmaxinwindow", 2)

	v.SetDefault("mfa.issuer", "TaskHub")

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "TaskHub <no-reply@taskhub.local>")
	v.SetDefault("mail.stream", "mail:outbox")

	v.SetDefault("oauth.google.statettl", "10m")

	v.SetDefault("app.clientorigin", "http://localhost:5173")
	v.SetDefault("app.failureredirecturl", "http://localhost:5173?status=failure")

	v.SetDefault("ratelimit.authperminute", 30)
	v.SetDefault("ratelimit.burst", 5)

	setWorkerDefaults(v)
}
