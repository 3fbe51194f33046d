/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * Every reward-policy constant (geofence radii, point values, TTLs, tolerance
 * windows) is configurable here with the production defaults baked in, so ops
 * can tune the program without a deploy.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the reward-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`

	VisionAPIBaseURL string `mapstructure:"VISION_API_BASE_URL"`
	VisionAPIKey     string `mapstructure:"VISION_API_KEY"`

	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3Region    string `mapstructure:"S3_REGION"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`

	JWKSURL        string `mapstructure:"JWKS_URL"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	CheckinRadiusMeters   float64 `mapstructure:"CHECKIN_RADIUS_METERS"`
	CompanionRadiusMeters float64 `mapstructure:"COMPANION_RADIUS_METERS"`

	CheckinPoints         int `mapstructure:"CHECKIN_POINTS"`
	CheckinPointsDegraded int `mapstructure:"CHECKIN_POINTS_DEGRADED"`
	CompanionJoinPoints   int `mapstructure:"COMPANION_JOIN_POINTS"`
	ConsumptionPoints     int `mapstructure:"CONSUMPTION_POINTS"`

	CompanionCodeTTLMinutes      int    `mapstructure:"COMPANION_CODE_TTL_MINUTES"`
	ReceiptPresenceWindowMinutes int    `mapstructure:"RECEIPT_PRESENCE_WINDOW_MINUTES"`
	ReceiptToleranceMinutes      int    `mapstructure:"RECEIPT_TOLERANCE_MINUTES"`
	ReceiptMinAmount             string `mapstructure:"RECEIPT_MIN_AMOUNT"`
	VoteCooldownHours            int    `mapstructure:"VOTE_COOLDOWN_HOURS"`

	CheckinRateLimitPerMinute int `mapstructure:"CHECKIN_RATE_LIMIT_PER_MINUTE"`
	UploadRateLimitPerMinute  int `mapstructure:"UPLOAD_RATE_LIMIT_PER_MINUTE"`

	ReceiptRedriveCron       string `mapstructure:"RECEIPT_REDRIVE_CRON"`
	ReceiptRedriveAfterMin   int    `mapstructure:"RECEIPT_REDRIVE_AFTER_MINUTES"`
	ReceiptRedriveBatchLimit int    `mapstructure:"RECEIPT_REDRIVE_BATCH_LIMIT"`
}

// MinReceiptAmount parses the configured consumption threshold. A malformed
// value falls back to the default rather than disabling the rule.
func (c Config) MinReceiptAmount() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.ReceiptMinAmount))
	if err != nil {
		log.Printf("level=warn component=config msg=\"invalid RECEIPT_MIN_AMOUNT; using default\" value=%q err=%v", c.ReceiptMinAmount, err)
		return decimal.NewFromInt(10)
	}
	return d
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "reward:rate_limit")
	viper.SetDefault("S3_REGION", "us-east-1")
	viper.SetDefault("CHECKIN_RADIUS_METERS", 100.0)
	viper.SetDefault("COMPANION_RADIUS_METERS", 150.0)
	viper.SetDefault("CHECKIN_POINTS", 2)
	viper.SetDefault("CHECKIN_POINTS_DEGRADED", 1)
	viper.SetDefault("COMPANION_JOIN_POINTS", 2)
	viper.SetDefault("CONSUMPTION_POINTS", 8)
	viper.SetDefault("COMPANION_CODE_TTL_MINUTES", 10)
	viper.SetDefault("RECEIPT_PRESENCE_WINDOW_MINUTES", 90)
	viper.SetDefault("RECEIPT_TOLERANCE_MINUTES", 120)
	viper.SetDefault("RECEIPT_MIN_AMOUNT", "10.00")
	viper.SetDefault("VOTE_COOLDOWN_HOURS", 168)
	viper.SetDefault("CHECKIN_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("UPLOAD_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("RECEIPT_REDRIVE_CRON", "*/10 * * * *")
	viper.SetDefault("RECEIPT_REDRIVE_AFTER_MINUTES", 15)
	viper.SetDefault("RECEIPT_REDRIVE_BATCH_LIMIT", 20)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "REWARD_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("VISION_API_BASE_URL")
	_ = viper.BindEnv("VISION_API_KEY")
	_ = viper.BindEnv("S3_ENDPOINT")
	_ = viper.BindEnv("S3_BUCKET")
	_ = viper.BindEnv("S3_REGION")
	_ = viper.BindEnv("S3_ACCESS_KEY")
	_ = viper.BindEnv("S3_SECRET_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "REWARD_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("CHECKIN_RADIUS_METERS")
	_ = viper.BindEnv("COMPANION_RADIUS_METERS")
	_ = viper.BindEnv("CHECKIN_POINTS")
	_ = viper.BindEnv("CHECKIN_POINTS_DEGRADED")
	_ = viper.BindEnv("COMPANION_JOIN_POINTS")
	_ = viper.BindEnv("CONSUMPTION_POINTS")
	_ = viper.BindEnv("COMPANION_CODE_TTL_MINUTES")
	_ = viper.BindEnv("RECEIPT_PRESENCE_WINDOW_MINUTES")
	_ = viper.BindEnv("RECEIPT_TOLERANCE_MINUTES")
	_ = viper.BindEnv("RECEIPT_MIN_AMOUNT")
	_ = viper.BindEnv("VOTE_COOLDOWN_HOURS")
	_ = viper.BindEnv("CHECKIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("UPLOAD_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RECEIPT_REDRIVE_CRON")
	_ = viper.BindEnv("RECEIPT_REDRIVE_AFTER_MINUTES")
	_ = viper.BindEnv("RECEIPT_REDRIVE_BATCH_LIMIT")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("REWARD_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "reward:rate_limit"
	}

	if config.CheckinRadiusMeters <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive check-in radius configured; using default\" radius_m=%f", config.CheckinRadiusMeters)
		config.CheckinRadiusMeters = 100.0
	}
	if config.CompanionRadiusMeters <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive companion radius configured; using default\" radius_m=%f", config.CompanionRadiusMeters)
		config.CompanionRadiusMeters = 150.0
	}

	if config.CheckinPoints < 0 {
		log.Printf("level=warn component=config msg=\"negative check-in points configured; coercing to zero\" points=%d", config.CheckinPoints)
		config.CheckinPoints = 0
	}
	if config.CheckinPointsDegraded < 0 {
		config.CheckinPointsDegraded = 0
	}
	if config.CheckinPointsDegraded > config.CheckinPoints {
		// The degraded award must never beat the verified one.
		log.Printf("level=warn component=config msg=\"degraded points exceed verified points; capping\" degraded=%d verified=%d", config.CheckinPointsDegraded, config.CheckinPoints)
		config.CheckinPointsDegraded = config.CheckinPoints
	}
	if config.CompanionJoinPoints < 0 {
		config.CompanionJoinPoints = 0
	}
	if config.ConsumptionPoints < 0 {
		config.ConsumptionPoints = 0
	}

	if config.CompanionCodeTTLMinutes <= 0 {
		config.CompanionCodeTTLMinutes = 10
	}
	if config.ReceiptPresenceWindowMinutes <= 0 {
		config.ReceiptPresenceWindowMinutes = 90
	}
	if config.ReceiptToleranceMinutes <= 0 {
		config.ReceiptToleranceMinutes = 120
	}
	if config.VoteCooldownHours <= 0 {
		config.VoteCooldownHours = 168
	}

	if config.CheckinRateLimitPerMinute <= 0 {
		config.CheckinRateLimitPerMinute = 30
	}
	if config.UploadRateLimitPerMinute <= 0 {
		config.UploadRateLimitPerMinute = 10
	}
	if config.ReceiptRedriveAfterMin <= 0 {
		config.ReceiptRedriveAfterMin = 15
	}
	if config.ReceiptRedriveBatchLimit <= 0 {
		config.ReceiptRedriveBatchLimit = 20
	}

	return
}
