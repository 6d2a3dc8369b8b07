package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Конечная структура конфигурации приложения.
// Всё процесс-глобальное состояние (политика ключей, ключ шифрования,
// флаг применения) живёт здесь и после старта не меняется.
type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`   // 0.0.0.0
		HTTPPort string `mapstructure:"http_port"` // 8080
	} `mapstructure:"server"`

	Logging struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // text|json
		File   string `mapstructure:"file"`   // путь/префикс файла, пусто — только stdout
	} `mapstructure:"logs"`

	Database struct {
		Driver string `mapstructure:"driver"` // "postgres" | "mysql" | "" (in-memory)
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"` // напр. 24h
	} `mapstructure:"auth"`

	WG struct {
		KeyPolicy string `mapstructure:"key_policy"` // db|host|wg-easy
		Subnet    string `mapstructure:"subnet"`     // /24, напр. 10.8.0.0/24
		Interface string `mapstructure:"interface"`  // wg0

		// Применение пиров на живой интерфейс (best-effort)
		ApplyEnabled bool   `mapstructure:"apply_enabled"`
		SSHHost      string `mapstructure:"ssh_host"` // напр. root@vpn.example.com; пусто — локально
		ApplyScript  string `mapstructure:"apply_script"`
		RemoveScript string `mapstructure:"remove_script"`
		GenScript    string `mapstructure:"gen_script"`
		KeysDir      string `mapstructure:"keys_dir"` // каталог для host-сгенерированных ключей

		// Серверная сторона для синтеза клиентских конфигов
		ServerPublicKey string `mapstructure:"server_public_key"`
		Endpoint        string `mapstructure:"endpoint"` // host:port
		DNS             string `mapstructure:"dns"`
	} `mapstructure:"wg"`

	WGEasy struct {
		URL      string `mapstructure:"url"`
		Password string `mapstructure:"password"`
		APIKey   string `mapstructure:"api_key"` // если задан — идёт в Authorization вместо пароля
	} `mapstructure:"wgeasy"`

	Crypto struct {
		ConfigKey string `mapstructure:"config_key"` // base64, 32 байта
	} `mapstructure:"crypto"`
}

// Load читает конфиг из env/файла с дефолтами.
func Load() (*Config, error) {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Дефолты (минимальный рабочий набор)
	viper.SetDefault("server.address", "0.0.0.0")
	viper.SetDefault("server.http_port", "8080")

	viper.SetDefault("logs.level", "info")
	viper.SetDefault("logs.format", "text")
	viper.SetDefault("logs.file", "")

	viper.SetDefault("database.driver", "")
	viper.SetDefault("database.dsn", "")

	viper.SetDefault("auth.jwt_secret", "CHANGE_ME")
	viper.SetDefault("auth.token_ttl", "24h")

	viper.SetDefault("wg.key_policy", "db")
	viper.SetDefault("wg.subnet", "10.8.0.0/24")
	viper.SetDefault("wg.interface", "wg0")
	viper.SetDefault("wg.apply_enabled", false)
	viper.SetDefault("wg.ssh_host", "")
	viper.SetDefault("wg.apply_script", "/srv/veil/scripts/wg_apply.sh")
	viper.SetDefault("wg.remove_script", "/srv/veil/scripts/wg_remove.sh")
	viper.SetDefault("wg.gen_script", "/srv/veil/scripts/wg_gen_key.sh")
	viper.SetDefault("wg.keys_dir", "/etc/wg-keys")
	viper.SetDefault("wg.server_public_key", "")
	viper.SetDefault("wg.endpoint", "")
	viper.SetDefault("wg.dns", "1.1.1.1")

	viper.SetDefault("wgeasy.url", "")
	viper.SetDefault("wgeasy.password", "")
	viper.SetDefault("wgeasy.api_key", "")

	viper.SetDefault("crypto.config_key", "")

	// Источник файла
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			viper.AddConfigPath(filepath.Join(xdg, "veil"))
		}
		viper.AddConfigPath("/etc/veil")
	}

	// Чтение файла (опционально)
	if err := viper.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" || c.Auth.JWTSecret == "CHANGE_ME" {
		return errors.New("auth.jwt_secret must be set (not empty and not CHANGE_ME)")
	}
	if strings.TrimSpace(c.Server.Address) == "" {
		return errors.New("server.address must not be empty")
	}
	if strings.TrimSpace(c.Server.HTTPPort) == "" {
		return errors.New("server.http_port must not be empty")
	}
	switch c.WG.KeyPolicy {
	case "db", "host", "wg-easy":
	default:
		return fmt.Errorf("wg.key_policy must be one of db|host|wg-easy, got %q", c.WG.KeyPolicy)
	}
	if c.WG.KeyPolicy == "wg-easy" && strings.TrimSpace(c.WGEasy.URL) == "" {
		return errors.New("wgeasy.url must be set when wg.key_policy is wg-easy")
	}
	return nil
}
