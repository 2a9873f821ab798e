package config

import (
	"github.com/spf13/viper"
)

// Connection settings come in as environment variables set on the pod;
// AWS calls are routed to LocalStack when IS_LOCAL_DEV is on.

type Config struct {
	DBHost            string `mapstructure:"DB_HOST"`
	DBPort            string `mapstructure:"DB_PORT"`
	DBUser            string `mapstructure:"DB_USER"`
	DBPassword        string `mapstructure:"DB_PASSWORD"`
	DBName            string `mapstructure:"DB_NAME"`
	ServerPort        string `mapstructure:"SERVER_PORT"`
	AWSRegion         string `mapstructure:"AWS_REGION"`
	NotifySQSQueueURL string `mapstructure:"NOTIFY_SQS_QUEUE_URL"`
	AWSEndpoint       string `mapstructure:"AWS_ENDPOINT"`
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	NotifySenderEmail string `mapstructure:"NOTIFY_SENDER_EMAIL"`
	NotifyDomain      string `mapstructure:"NOTIFY_DOMAIN"`
	OTLPEndpoint      string `mapstructure:"OTLP_ENDPOINT"`
	IsLocalDev        bool   `mapstructure:"IS_LOCAL_DEV"`
}

// LoadConfig reads configuration from environment variables with local
// development defaults.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("DB_HOST", "db")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "attendance_db")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("NOTIFY_SQS_QUEUE_URL", "http://localstack:4566/000000000000/notify-queue")
	viper.SetDefault("AWS_ENDPOINT", "http://localstack:4566")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("NOTIFY_SENDER_EMAIL", "attendance@members.org")
	viper.SetDefault("NOTIFY_DOMAIN", "members.org")
	viper.SetDefault("OTLP_ENDPOINT", "jaeger:4317")
	viper.SetDefault("IS_LOCAL_DEV", false)

	// Read in environment variables that match the keys.
	viper.AutomaticEnv()

	err = viper.Unmarshal(&config)
	return
}
