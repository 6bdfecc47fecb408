package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort        = "8080"
	DefaultStoreDriver = "postgres"
	DefaultSQLitePath  = "data/users.db"

	DefaultSessionIdleMinutes     = 15
	DefaultSessionAbsoluteMinutes = 60
	DefaultSessionSweepSeconds    = 60
	DefaultLockoutThreshold       = 5
	DefaultLockoutMinutes         = 15
	DefaultLoginRatePerMinute     = 10
	DefaultBcryptCost             = 12

	DefaultAuditDir           = "audit"
	DefaultAuditRetentionDays = 2555
	DefaultAuditArchive       = "local"
	DefaultAuditArchiveDir    = "audit/archive"
	DefaultAuditArchiveRegion = "us-east-1"

	DefaultScannerMode = "block"
	DefaultScannerMask = "same-length"

	DefaultUpstreamTimeoutSeconds = 10
	DefaultUpstreamRPS            = 5.0

	DefaultAdminUsername = "admin"
	DefaultAdminEmail    = "admin@localhost"
)

type Config struct {
	Env         string
	Port        string
	StoreDriver string
	DBURL       string
	SQLitePath  string

	SessionTokenSecret     string
	SessionIdleTimeout     time.Duration
	SessionAbsoluteTimeout time.Duration
	SessionSweepInterval   time.Duration
	SessionBindIP          bool
	CookieSecure           bool

	LockoutThreshold   int
	LockoutDuration    time.Duration
	LoginRatePerMinute int
	BcryptCost         int

	AuditHMACSecret      string
	AuditDir             string
	AuditRetentionDays   int
	AuditArchive         string
	AuditArchiveDir      string
	AuditArchiveBucket   string
	AuditArchiveEndpoint string
	AuditArchiveRegion   string
	AuditArchivePrefix   string
	AuditArchiveKey      string
	AuditArchiveSecret   string

	ScannerMode        string
	ScannerMask        string
	ScannerEmail       bool
	ScannerPatternFile string

	JiraBaseURL     string
	JiraEmail       string
	JiraAPIToken    string
	UpstreamTimeout time.Duration
	UpstreamRPS     float64

	DefaultAdminUsername string
	DefaultAdminEmail    string
	DefaultAdminPassword string
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads config/.env.dev or config/.env.prod (selected by ENV) and lets
// real environment variables override the file. Missing required keys are fatal.
func Load() *Config {
	env := getEnv("ENV", "development")
	src := source{file: readEnvFile(env)}

	cfg := &Config{
		Env:         env,
		Port:        src.get("PORT", DefaultPort),
		StoreDriver: strings.ToLower(src.get("STORE_DRIVER", DefaultStoreDriver)),
		SQLitePath:  src.get("SQLITE_PATH", DefaultSQLitePath),

		SessionTokenSecret:     src.must("SESSION_TOKEN_SECRET"),
		SessionIdleTimeout:     time.Duration(src.getInt("SESSION_IDLE_MINUTES", DefaultSessionIdleMinutes)) * time.Minute,
		SessionAbsoluteTimeout: time.Duration(src.getInt("SESSION_ABSOLUTE_MINUTES", DefaultSessionAbsoluteMinutes)) * time.Minute,
		SessionSweepInterval:   time.Duration(src.getInt("SESSION_SWEEP_SECONDS", DefaultSessionSweepSeconds)) * time.Second,
		SessionBindIP:          src.getBool("SESSION_BIND_IP", true),
		CookieSecure:           src.getBool("COOKIE_SECURE", env == "production"),

		LockoutThreshold:   src.getInt("LOCKOUT_THRESHOLD", DefaultLockoutThreshold),
		LockoutDuration:    time.Duration(src.getInt("LOCKOUT_MINUTES", DefaultLockoutMinutes)) * time.Minute,
		LoginRatePerMinute: src.getInt("LOGIN_RATE_PER_MINUTE", DefaultLoginRatePerMinute),
		BcryptCost:         src.getInt("BCRYPT_COST", DefaultBcryptCost),

		AuditHMACSecret:      src.must("AUDIT_HMAC_SECRET"),
		AuditDir:             src.get("AUDIT_DIR", DefaultAuditDir),
		AuditRetentionDays:   src.getInt("AUDIT_RETENTION_DAYS", DefaultAuditRetentionDays),
		AuditArchive:         strings.ToLower(src.get("AUDIT_ARCHIVE", DefaultAuditArchive)),
		AuditArchiveDir:      src.get("AUDIT_ARCHIVE_DIR", DefaultAuditArchiveDir),
		AuditArchiveBucket:   src.get("AUDIT_ARCHIVE_BUCKET", ""),
		AuditArchiveEndpoint: src.get("AUDIT_ARCHIVE_ENDPOINT", ""),
		AuditArchiveRegion:   src.get("AUDIT_ARCHIVE_REGION", DefaultAuditArchiveRegion),
		AuditArchivePrefix:   src.get("AUDIT_ARCHIVE_PREFIX", "audit"),
		AuditArchiveKey:      src.get("AUDIT_ARCHIVE_ACCESS_KEY", ""),
		AuditArchiveSecret:   src.get("AUDIT_ARCHIVE_SECRET_KEY", ""),

		ScannerMode:        strings.ToLower(src.get("SCANNER_MODE", DefaultScannerMode)),
		ScannerMask:        strings.ToLower(src.get("SCANNER_MASK", DefaultScannerMask)),
		ScannerEmail:       src.getBool("SCANNER_EMAIL", false),
		ScannerPatternFile: src.get("SCANNER_PATTERN_FILE", ""),

		JiraBaseURL:     strings.TrimRight(src.must("JIRA_BASE_URL"), "/"),
		JiraEmail:       src.get("JIRA_EMAIL", ""),
		JiraAPIToken:    src.get("JIRA_API_TOKEN", ""),
		UpstreamTimeout: time.Duration(src.getInt("UPSTREAM_TIMEOUT_SECONDS", DefaultUpstreamTimeoutSeconds)) * time.Second,
		UpstreamRPS:     src.getFloat("UPSTREAM_RPS", DefaultUpstreamRPS),

		DefaultAdminUsername: src.get("DEFAULT_ADMIN_USERNAME", DefaultAdminUsername),
		DefaultAdminEmail:    src.get("DEFAULT_ADMIN_EMAIL", DefaultAdminEmail),
		DefaultAdminPassword: src.get("DEFAULT_ADMIN_PASSWORD", ""),
	}

	if cfg.StoreDriver == "postgres" {
		cfg.DBURL = src.must("DB_URL")
	} else {
		cfg.DBURL = src.get("DB_URL", "")
	}
	if cfg.AuditArchive == "s3" && cfg.AuditArchiveBucket == "" {
		log.Fatalf("Missing required config: %s", "AUDIT_ARCHIVE_BUCKET")
	}

	return cfg
}

func readEnvFile(env string) map[string]string {
	name := ".env.dev"
	if env == "production" {
		name = ".env.prod"
	}
	values, err := godotenv.Read(filepath.Join("config", name))
	if err != nil {
		// Running without a file is normal in containers.
		return map[string]string{}
	}
	return values
}

// source resolves a key from the process environment first, then the env file.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s source) get(key, defaultVal string) string {
	if value := s.lookup(key); value != "" {
		return value
	}
	return defaultVal
}

func (s source) must(key string) string {
	if value := s.lookup(key); value != "" {
		return value
	}
	log.Fatalf("Missing required config: %s", key)
	return ""
}

func (s source) getInt(key string, defaultVal int) int {
	valStr := s.lookup(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}

func (s source) getFloat(key string, defaultVal float64) float64 {
	valStr := s.lookup(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val <= 0 {
		log.Printf("Invalid value for %s, using default %g", key, defaultVal)
		return defaultVal
	}
	return val
}

func (s source) getBool(key string, defaultVal bool) bool {
	valStr := s.lookup(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %t", key, defaultVal)
		return defaultVal
	}
	return val
}

func getEnv(key string, defaultVal string) string {
	return source{}.get(key, defaultVal)
}
