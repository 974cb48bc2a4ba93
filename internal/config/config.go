package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// флаг регистрируется один раз, чтобы его видели и server, и migrator со своими флагами
var configFlag = flag.String("config", "", "path to config file")

type Config struct {
	Env        string           `yaml:"env" env-default:"development"` // environment
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Migrations MigrationsConfig `yaml:"migrations"`
	App        AppConfig        `yaml:"app"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Orders     OrdersConfig     `yaml:"orders"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
}

// HTTPServerConfig структура http сервера
type HTTPServerConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// DatabaseConfig структура по работе с БД
type DatabaseConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"-" env:"DB_PASSWORD" env-required:"true"`
	Name     string `yaml:"name" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

// DSN строка подключения для lib/pq и migrate
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// JWTConfig настройка jwt
type JWTConfig struct {
	Secret   string `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	TokenTTL int    `yaml:"token_ttl" env-default:"60"`
}

type MigrationsConfig struct {
	Path  string `yaml:"path" env-default:"./migrations"`
	Table string `yaml:"table" env-default:"migrations"`
}

// AppConfig — публичный адрес магазина, от него строятся callback URL для шлюза
type AppConfig struct {
	BaseURL string `yaml:"base_url" env:"APP_BASE_URL" env-default:"http://localhost:8080"`
}

// GatewayConfig настройки платёжного шлюза; ключи только из окружения
type GatewayConfig struct {
	BaseURL          string        `yaml:"base_url" env-required:"true"`
	SiteCode         string        `yaml:"site_code" env-required:"true"`
	CountryCode      string        `yaml:"country_code" env-default:"ZA"`
	CurrencyCode     string        `yaml:"currency_code" env-default:"ZAR"`
	IsTest           bool          `yaml:"is_test"`
	Timeout          time.Duration `yaml:"timeout" env-default:"10s"`
	VerifyNotifyHash bool          `yaml:"verify_notify_hash" env-default:"false"`
	APIKey           string        `yaml:"-" env:"GATEWAY_API_KEY" env-required:"true"`
	PrivateKey       string        `yaml:"-" env:"GATEWAY_PRIVATE_KEY" env-required:"true"`
	CancelPath       string        `yaml:"cancel_path" env-default:"/payment/cancel"`
	ErrorPath        string        `yaml:"error_path" env-default:"/payment/error"`
	SuccessPath      string        `yaml:"success_path" env-default:"/payment/success"`
	NotifyPath       string        `yaml:"notify_path" env-default:"/api/payments/notify"`
}

// OrdersConfig — ретраи транзакций и автоотмена неоплаченных заказов (0 — выключена)
type OrdersConfig struct {
	TxAttempts    int           `yaml:"tx_attempts" env-default:"3"`
	TxBackoff     time.Duration `yaml:"tx_backoff" env-default:"50ms"`
	PendingTTL    time.Duration `yaml:"pending_ttl" env-default:"0s"`
	SweepInterval time.Duration `yaml:"sweep_interval" env-default:"1m"`
}

// RedisConfig: пустой адрес — дедупликация уведомлений только через БД
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env-default:"0"`
	DedupTTL time.Duration `yaml:"dedup_ttl" env-default:"24h"`
}

// KafkaConfig: без брокеров события не публикуются
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" env-default:"orders"`
}

// MustLoad - если не загружаем - паникуем
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

func fetchConfigPath() string {
	if !flag.Parsed() {
		flag.Parse()
	}

	path := *configFlag
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s: %s", configPath, err)
	}

	return &cfg
}
