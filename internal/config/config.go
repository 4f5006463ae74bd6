package config

import (
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `env:"APP_ENV,default=development"`
	Port     string `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	Domain   string `env:"DOMAIN_URL,default=http://localhost:5173"`

	DBUrl         string `env:"SUPABASE_DB_URL,required"`
	AutoMigrate   bool   `env:"AUTO_MIGRATE,default=false"`
	JWTSecret     string `env:"JWT_SECRET,required"`
	Supabase      string `env:"SUPABASE_URL"`
	SupabaseAnon  string `env:"SUPABASE_ANON_KEY"`
	ListenChanges bool   `env:"LISTEN_DB_CHANGES,default=true"`

	AWSBucket    string `env:"AWS_BUCKET_NAME"`
	AWSRegion    string `env:"AWS_REGION,default=ap-northeast-1"`
	AWSAccessKey string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Private    bool   `env:"S3_PRIVATE_BUCKET,default=false"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	SendGridKey  string `env:"SENDGRID_API_KEY"`
	MailFrom     string `env:"MAIL_FROM,default=noreply@castchat.jp"`
	MailFromName string `env:"MAIL_FROM_NAME,default=CastChat"`

	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT,default=mailto:support@castchat.jp"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=castchat.events"`

	UnreadTTL        time.Duration `env:"UNREAD_CACHE_TTL,default=30s"`
	MessageRateLimit int64         `env:"MESSAGE_RATE_LIMIT,default=30"`
	ApplyRateLimit   int64         `env:"APPLY_RATE_LIMIT,default=10"`
	RequestsPerSec   int           `env:"REQUESTS_PER_SECOND,default=20"`
	RequestBurst     int           `env:"REQUEST_BURST,default=40"`
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LoadConfig reads .env (if present) then decodes the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
