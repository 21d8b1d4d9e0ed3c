package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Webhook struct {
		// PEM-encoded RSA public key published by the platform.
		PublicKey string `mapstructure:"PUBLIC_KEY"`
	} `mapstructure:"WEBHOOK"`
	Awards struct {
		ChatMessagePoints int64         `mapstructure:"CHAT_MESSAGE_POINTS"`
		ChatCooldown      time.Duration `mapstructure:"CHAT_COOLDOWN"`
		FollowBonus       int64         `mapstructure:"FOLLOW_BONUS"`
		SubscriptionBonus int64         `mapstructure:"SUBSCRIPTION_BONUS"`
		RenewalBonus      int64         `mapstructure:"RENEWAL_BONUS"`
		GiftedSubBonus    int64         `mapstructure:"GIFTED_SUB_BONUS"`
		KicksPointRate    int64         `mapstructure:"KICKS_POINT_RATE"`
		RequireLive       bool          `mapstructure:"REQUIRE_LIVE"`
		LockWait          time.Duration `mapstructure:"LOCK_WAIT"`
	} `mapstructure:"AWARDS"`
	Leaderboard struct {
		SnapshotInterval time.Duration `mapstructure:"SNAPSHOT_INTERVAL"`
		SnapshotLockTTL  time.Duration `mapstructure:"SNAPSHOT_LOCK_TTL"`
	} `mapstructure:"LEADERBOARD"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults()

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	if p.Vault != nil {
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Success Get Secret")

		get := func(key string) string {
			if val, ok := secret.Data.Data[key].(string); ok {
				return val
			}
			return ""
		}

		cfg.Database.User = get("postgres_user")
		cfg.Database.Password = get("postgres_password")
		cfg.Redis.Password = get("redis_password")
		if pk := get("webhook_public_key"); pk != "" {
			cfg.Webhook.PublicKey = pk
		}
	}

	return &cfg
}

func setDefaults() {
	config.SetDefault("APP_NAME", "streampoints-engine")
	config.SetDefault("APP_ENV", "development")
	config.SetDefault("HTTP_SERVER.ADDR", ":8080")
	config.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	config.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	config.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	config.SetDefault("AWARDS.CHAT_MESSAGE_POINTS", 10)
	config.SetDefault("AWARDS.CHAT_COOLDOWN", 5*time.Minute)
	config.SetDefault("AWARDS.FOLLOW_BONUS", 50)
	config.SetDefault("AWARDS.SUBSCRIPTION_BONUS", 500)
	config.SetDefault("AWARDS.RENEWAL_BONUS", 500)
	config.SetDefault("AWARDS.GIFTED_SUB_BONUS", 500)
	config.SetDefault("AWARDS.KICKS_POINT_RATE", 1)
	config.SetDefault("AWARDS.REQUIRE_LIVE", true)
	config.SetDefault("AWARDS.LOCK_WAIT", 5*time.Second)

	config.SetDefault("LEADERBOARD.SNAPSHOT_INTERVAL", time.Hour)
	config.SetDefault("LEADERBOARD.SNAPSHOT_LOCK_TTL", 5*time.Minute)
}
