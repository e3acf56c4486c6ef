package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPricingHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	ServerURL   string

	CORSAllowedOrigins []string

	OTLPEndpoint string

	QPay QPayConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBRunMigrations   bool

	Redis RedisConfig

	PaymentStore     string
	PaymentRecordTTL time.Duration

	Email     EmailConfig
	Recaptcha RecaptchaConfig
	RateLimit RateLimitConfig

	PricingFile     string
	ReceiptLogoPath string
}

type QPayConfig struct {
	BaseURL      string
	Username     string
	Password     string
	InvoiceCode  string
	BranchCode   string
	ReceiverCode string
	Timeout      time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmailConfig struct {
	Provider     string
	BrevoAPIURL  string
	BrevoAPIKey  string
	SenderName   string
	SenderEmail  string
	ContactTo    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

type RecaptchaConfig struct {
	SecretKey string
	VerifyURL string
	MinScore  float64
}

type RateLimitConfig struct {
	Enabled      bool
	InvoiceRate  float64
	InvoiceBurst int
	ContactRate  float64
	ContactBurst int
}

const (
	PaymentStoreMemory = "memory"
	PaymentStoreRedis  = "redis"

	EmailProviderBrevo = "brevo"
	EmailProviderSMTP  = "smtp"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	port := getenv("PORT", "5000")
	cfg := Config{
		AppName:      getenv("APP_SERVICE", "qpayrelay"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":"+port),
		ServerURL:    strings.TrimSuffix(strings.TrimSpace(getenv("SERVER_URL", "")), "/"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		QPay: QPayConfig{
			BaseURL:      strings.TrimSuffix(getenv("QPAY_BASE_URL", "https://merchant.qpay.mn"), "/"),
			Username:     strings.TrimSpace(getenv("QPAY_USER", "")),
			Password:     strings.TrimSpace(getenv("QPAY_PASS", "")),
			InvoiceCode:  getenv("QPAY_INVOICE_CODE", "ACADEMIA_MN_INVOICE"),
			BranchCode:   getenv("QPAY_BRANCH_CODE", "SALBARACADEMIA"),
			ReceiverCode: getenv("QPAY_RECEIVER_CODE", "terminal"),
			Timeout:      time.Duration(getenvInt("QPAY_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		DBType:            strings.ToLower(getenv("DATABASE_TYPE", getenv("DB_TYPE", "mysql"))),
		DBHost:            getenv("DATABASE_HOST", getenv("DB_HOST", "localhost")),
		DBPort:            getenv("DATABASE_PORT", getenv("DB_PORT", "3306")),
		DBName:            getenv("DATABASE_NAME", getenv("DB_NAME", "academia")),
		DBUser:            getenv("DATABASE_USER", getenv("DB_USER", "root")),
		DBPassword:        getenv("DATABASE_PASSWORD", getenv("DB_PASSWORD", "")),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		PaymentStore:     strings.ToLower(getenv("PAYMENT_STORE", PaymentStoreMemory)),
		PaymentRecordTTL: getenvDuration("PAYMENT_RECORD_TTL", 0),
		Email: EmailConfig{
			Provider:     strings.ToLower(getenv("EMAIL_PROVIDER", EmailProviderBrevo)),
			BrevoAPIURL:  strings.TrimSpace(getenv("BREVO_API_URL", "https://api.brevo.com/v3/smtp/email")),
			BrevoAPIKey:  strings.TrimSpace(getenv("BREVO_API_KEY", "")),
			SenderName:   getenv("EMAIL_SENDER_NAME", "academia.mn"),
			SenderEmail:  getenv("EMAIL_SENDER_EMAIL", "no-reply@academia.mn"),
			ContactTo:    getenv("EMAIL_CONTACT_TO", "academia@aurag.mn"),
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
		},
		Recaptcha: RecaptchaConfig{
			SecretKey: strings.TrimSpace(getenv("RECAPTCHA_SECRET_KEY", "")),
			VerifyURL: getenv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
			MinScore:  getenvFloat("RECAPTCHA_MIN_SCORE", 0.5),
		},
		CORSAllowedOrigins: getenvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimit: RateLimitConfig{
			Enabled:      getenvBool("RATE_LIMIT_ENABLED", false),
			InvoiceRate:  getenvFloat("RATE_LIMIT_INVOICE_RATE", 0.2),
			InvoiceBurst: getenvInt("RATE_LIMIT_INVOICE_BURST", 5),
			ContactRate:  getenvFloat("RATE_LIMIT_CONTACT_RATE", 0.05),
			ContactBurst: getenvInt("RATE_LIMIT_CONTACT_BURST", 3),
		},
		PricingFile:     getenv("PRICING_FILE", ""),
		ReceiptLogoPath: getenv("RECEIPT_LOGO_PATH", ""),
	}

	return cfg
}

// Validate reports every required variable that is missing from the environment.
func (c Config) Validate() error {
	required := map[string]string{
		"QPAY_USER":  c.QPay.Username,
		"QPAY_PASS":  c.QPay.Password,
		"SERVER_URL": c.ServerURL,
		"DB_HOST":    c.DBHost,
		"DB_USER":    c.DBUser,
		"DB_NAME":    c.DBName,

		"RECAPTCHA_SECRET_KEY": c.Recaptcha.SecretKey,
	}
	if c.Email.Provider == EmailProviderBrevo {
		required["BREVO_API_KEY"] = c.Email.BrevoAPIKey
		required["BREVO_API_URL"] = c.Email.BrevoAPIURL
	}
	if c.PaymentStore == PaymentStoreRedis || c.RateLimit.Enabled {
		required["REDIS_ADDR"] = c.Redis.Addr
	}
	if c.DBType == "sqlite" {
		delete(required, "DB_HOST")
		delete(required, "DB_USER")
	}

	missing := make([]string, 0, len(required))
	for _, key := range sortedKeys(required) {
		if strings.TrimSpace(required[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.PaymentStore {
	case PaymentStoreMemory, PaymentStoreRedis:
	default:
		return fmt.Errorf("unsupported PAYMENT_STORE %q", c.PaymentStore)
	}
	return nil
}

func (c Config) CallbackURL() string {
	return c.ServerURL + "/api/payment-callback"
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key string, def []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
