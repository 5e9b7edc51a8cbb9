package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendDynamo = "dynamo"
	BackendSQL    = "sql"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	StoreBackend string
	SQLDriver    string // "mysql" | "sqlite"
	SQLDSN       string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	SNSRegion             string
	SNSIOSPlatformARN     string
	SNSAndroidPlatformARN string
	ReportBucket          string // optional S3 bucket for dispatch-run reports

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	CronSecret             string
	DispatchConcurrency    int
	DispatchAttemptTimeout time.Duration
	DispatchPassTimeout    time.Duration // bound on a cron-triggered pass, detached from the caller
	MembershipCacheTTL     time.Duration

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Notifications       string
	NotificationGroups  string
	GroupRecipients     string
	Receipts            string
	PushTokens          string
	OrganizationMembers string
	Counters            string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		StoreBackend: getEnv("STORE_BACKEND", BackendDynamo),
		SQLDriver:    getEnv("SQL_DRIVER", "sqlite"),
		SQLDSN:       getEnv("SQL_DSN", "notifications.db"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Notifications:       getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			NotificationGroups:  getEnv("DYNAMO_TABLE_NOTIFICATION_GROUPS", "notification_groups"),
			GroupRecipients:     getEnv("DYNAMO_TABLE_GROUP_RECIPIENTS", "notification_group_recipients"),
			Receipts:            getEnv("DYNAMO_TABLE_RECEIPTS", "notification_receipts"),
			PushTokens:          getEnv("DYNAMO_TABLE_PUSH_TOKENS", "push_tokens"),
			OrganizationMembers: getEnv("DYNAMO_TABLE_ORGANIZATION_MEMBERS", "organization_members"),
			Counters:            getEnv("DYNAMO_TABLE_COUNTERS", "counters"),
		},

		SNSRegion:             getEnv("SNS_REGION", "us-east-1"),
		SNSIOSPlatformARN:     getEnv("SNS_IOS_PLATFORM_ARN", ""),
		SNSAndroidPlatformARN: getEnv("SNS_ANDROID_PLATFORM_ARN", ""),
		ReportBucket:          getEnv("REPORT_BUCKET", ""),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 7*24*time.Hour),

		CronSecret:             getEnv("CRON_SECRET", ""),
		DispatchConcurrency:    getEnvInt("DISPATCH_CONCURRENCY", 8),
		DispatchAttemptTimeout: getEnvDuration("DISPATCH_ATTEMPT_TIMEOUT", 10*time.Second),
		DispatchPassTimeout:    getEnvDuration("DISPATCH_PASS_TIMEOUT", 5*time.Minute),
		MembershipCacheTTL:     getEnvDuration("MEMBERSHIP_CACHE_TTL", time.Minute),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// Debug reports whether internal error details may be exposed in responses.
func (c *Config) Debug() bool { return c.AppEnv == "development" }

// PushConfigured reports whether at least one SNS platform application is set.
func (c *Config) PushConfigured() bool {
	return c.SNSIOSPlatformARN != "" || c.SNSAndroidPlatformARN != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
