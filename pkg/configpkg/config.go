// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper fron a config file or environement variables.
type Config struct {
	Environement  string `mapstructure:"GO_ENV"`
	ServerAddress string `mapstructure:"SERVER_ADDRESS"`

	DBDriver          string        `mapstructure:"DB_DRIVER"`
	DBSource          string        `mapstructure:"DB_SOURCE"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`

	TransferTimeout      time.Duration `mapstructure:"TRANSFER_TIMEOUT"`
	TransferMaxAttempts  int           `mapstructure:"TRANSFER_MAX_ATTEMPTS"`
	TransferRetryBackoff time.Duration `mapstructure:"TRANSFER_RETRY_BACKOFF"`
	// TransferLockHold delays every transfer while its wallets are locked. Used to
	// reproduce contention in demos and load tests.
	TransferLockHold time.Duration `mapstructure:"TRANSFER_LOCK_HOLD"`

	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisStream string `mapstructure:"REDIS_STREAM"`

	DevSeed bool `mapstructure:"DEV_SEED"`
}

// MemoryDriver selects the in-process ledger store instead of a database.
const MemoryDriver = "memory"

func setDefaults(v *viper.Viper) {
	v.SetDefault("GO_ENV", "production")
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:3000")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_SOURCE", "")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 30*time.Second)
	v.SetDefault("TRANSFER_TIMEOUT", 5*time.Second)
	v.SetDefault("TRANSFER_MAX_ATTEMPTS", 3)
	v.SetDefault("TRANSFER_RETRY_BACKOFF", 20*time.Millisecond)
	v.SetDefault("TRANSFER_LOCK_HOLD", time.Duration(0))
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_STREAM", "wallet:transfers")
	v.SetDefault("DEV_SEED", false)
}

// Load read configuration from file or environment variables.
//
// A missing app.env is not an error: defaults and the environment still apply.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	setDefaults(v)
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	err = v.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}
