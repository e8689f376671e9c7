package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret  string `env:"JWT_SECRET,required,notEmpty"`

	// StoreBackend - mongo | memory
	StoreBackend string `env:"STORE_BACKEND" envDefault:"mongo"`
	// CoordBackend - redis | memory | none
	CoordBackend string `env:"COORD_BACKEND" envDefault:"redis"`

	Admin     AdminConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Storage   StorageConfig
	NATS      NATSConfig
	Lifecycle LifecycleConfig
	Limits    LimitsConfig
}

type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME" envDefault:"admin"`
	// PasswordHash - bcrypt хеш пароля администратора
	PasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	TokenTTL     time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"12h"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	Database string `env:"MONGO_DATABASE" envDefault:"vanishroom"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"vanishroom"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

// Enabled - журнал аудита в Postgres необязателен
func (p *PostgresConfig) Enabled() bool {
	return p.URL != "" || p.Host != ""
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

type StorageConfig struct {
	Endpoint  string        `env:"STORAGE_ENDPOINT"`
	AccessKey string        `env:"STORAGE_ACCESS_KEY"`
	SecretKey string        `env:"STORAGE_SECRET_KEY"`
	Bucket    string        `env:"STORAGE_BUCKET" envDefault:"vanishroom"`
	UseSSL    bool          `env:"STORAGE_USE_SSL" envDefault:"false"`
	URLExpiry time.Duration `env:"STORAGE_URL_EXPIRY" envDefault:"15m"`
}

type NATSConfig struct {
	URL           string `env:"NATS_URL"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"insights"`
}

type LifecycleConfig struct {
	LockGrace        time.Duration `env:"LOCK_GRACE" envDefault:"24h"`
	VanishInterval   time.Duration `env:"VANISH_INTERVAL" envDefault:"5m"`
	VanishBatch      int           `env:"VANISH_BATCH" envDefault:"100"`
	RecoveryBatch    int           `env:"RECOVERY_BATCH" envDefault:"500"`
	RecoveryChunk    int           `env:"RECOVERY_CHUNK" envDefault:"50"`
	RecoveryPause    time.Duration `env:"RECOVERY_PAUSE" envDefault:"2s"`
	ExpirySchedule   string        `env:"EXPIRY_SCHEDULE" envDefault:"@every 1m"`
	ExpiryBatch      int           `env:"EXPIRY_BATCH" envDefault:"1000"`
	DefaultRoomTTL   time.Duration `env:"DEFAULT_ROOM_TTL" envDefault:"1h"`
	MaxRoomTTL       time.Duration `env:"MAX_ROOM_TTL" envDefault:"168h"`
	PairingCodeTTL   time.Duration `env:"PAIRING_CODE_TTL" envDefault:"5m"`
	PresenceTTL      time.Duration `env:"PRESENCE_TTL" envDefault:"24h"`
	TypingTimeout    time.Duration `env:"TYPING_TIMEOUT" envDefault:"4s"`
	SideEffectBuffer int           `env:"SIDE_EFFECT_BUFFER" envDefault:"1024"`
}

type LimitsConfig struct {
	Window             time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
	MessagesPerWindow  int64         `env:"RATE_MESSAGES" envDefault:"30"`
	FilesPerWindow     int64         `env:"RATE_FILES" envDefault:"10"`
	RoomsPerWindow     int64         `env:"RATE_ROOMS" envDefault:"5"`
	AdminPerWindow     int64         `env:"RATE_ADMIN" envDefault:"10"`
	MaxTextLength      int           `env:"MAX_TEXT_LENGTH" envDefault:"5000"`
	MaxDataURLBytes    int           `env:"MAX_DATA_URL_BYTES" envDefault:"15728640"`
	TextDedupWindow    time.Duration `env:"TEXT_DEDUP_WINDOW" envDefault:"5s"`
	FileDedupWindow    time.Duration `env:"FILE_DEDUP_WINDOW" envDefault:"10s"`
	HTTPRequestsPerSec float64       `env:"HTTP_RPS" envDefault:"20"`
	HTTPBurst          int           `env:"HTTP_BURST" envDefault:"40"`
}

func New() (*Config, error) {
	// .env необязателен, переменные окружения имеют приоритет
	_ = godotenv.Load()

	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is empty"))
	}

	switch c.StoreBackend {
	case "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.CoordBackend {
	case "redis", "memory", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown COORD_BACKEND %q", c.CoordBackend))
	}

	if c.Lifecycle.LockGrace <= c.Lifecycle.VanishInterval {
		errs = append(errs, errors.New("LOCK_GRACE must exceed VANISH_INTERVAL"))
	}

	if c.Lifecycle.VanishBatch <= 0 || c.Lifecycle.RecoveryBatch <= 0 || c.Lifecycle.RecoveryChunk <= 0 || c.Lifecycle.ExpiryBatch <= 0 {
		errs = append(errs, errors.New("batch sizes must be positive"))
	}

	if c.Limits.Window <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW must be positive"))
	}

	if c.Limits.MessagesPerWindow <= 0 || c.Limits.FilesPerWindow <= 0 || c.Limits.RoomsPerWindow <= 0 || c.Limits.AdminPerWindow <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}

	// иначе любая комната истекает раньше, чем закончится ожидание после блокировки,
	// и периодический проход авто-удаления никогда ничего не находит
	if c.Lifecycle.MaxRoomTTL <= c.Lifecycle.LockGrace {
		errs = append(errs, errors.New("MAX_ROOM_TTL must exceed LOCK_GRACE"))
	}

	if c.Lifecycle.DefaultRoomTTL <= 0 || c.Lifecycle.DefaultRoomTTL > c.Lifecycle.MaxRoomTTL {
		errs = append(errs, errors.New("DEFAULT_ROOM_TTL must be within (0, MAX_ROOM_TTL]"))
	}

	return errors.Join(errs...)
}
