package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Admin      AdminConfig
	Store      StoreConfig
	Cloudinary CloudinaryConfig
	Color      ColorConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

// AdminConfig seeds the admin account at startup when both fields are set.
type AdminConfig struct {
	Email    string
	Password string
}

// StoreConfig holds the vendor facing settings of the storefront.
type StoreConfig struct {
	Name      string
	WhatsApp  string
	PublicURL string
}

type CloudinaryConfig struct {
	CloudName    string
	UploadPreset string
	Folder       string
	BaseURL      string
}

type ColorConfig struct {
	FetchTimeout time.Duration // zero disables the timeout
	CacheTTL     time.Duration
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env != "production"
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_ENABLED", false)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("STORE_NAME", "My Store")
	viper.SetDefault("CLOUDINARY_BASE_URL", "https://api.cloudinary.com/v1_1")
	viper.SetDefault("COLOR_FETCH_TIMEOUT", "0s")
	viper.SetDefault("TINT_CACHE_TTL", "24h")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			LogLevel:       viper.GetString("LOG_LEVEL"),
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
			Enabled:  viper.GetBool("REDIS_ENABLED"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		Admin: AdminConfig{
			Email:    viper.GetString("ADMIN_EMAIL"),
			Password: viper.GetString("ADMIN_PASSWORD"),
		},
		Store: StoreConfig{
			Name:      viper.GetString("STORE_NAME"),
			WhatsApp:  viper.GetString("STORE_WHATSAPP"),
			PublicURL: viper.GetString("STORE_PUBLIC_URL"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName:    viper.GetString("CLOUDINARY_CLOUD_NAME"),
			UploadPreset: viper.GetString("CLOUDINARY_UPLOAD_PRESET"),
			Folder:       viper.GetString("CLOUDINARY_FOLDER"),
			BaseURL:      viper.GetString("CLOUDINARY_BASE_URL"),
		},
		Color: ColorConfig{
			FetchTimeout: viper.GetDuration("COLOR_FETCH_TIMEOUT"),
			CacheTTL:     viper.GetDuration("TINT_CACHE_TTL"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
