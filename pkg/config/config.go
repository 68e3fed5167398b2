package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	LedgerModeRPC    = "rpc"
	LedgerModeMemory = "memory"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	CORS      CORSConfig
	Log       LogConfig
	Ledger    LedgerConfig
	Signer    SignerConfig
	Storage   StorageConfig
	Wallet    WalletConfig
	Dashboard DashboardConfig
	Journal   JournalConfig
	Watcher   WatcherConfig
	Refresh   RefreshConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// SessionConfig configures wallet sessions issued after a signed challenge.
type SessionConfig struct {
	Secret       string
	Expiration   time.Duration
	ChallengeTTL time.Duration
	Issuer       string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LedgerConfig points the gateway at the attestation contract.
type LedgerConfig struct {
	Mode            string
	RPCURL          string
	ChainID         int64
	ContractAddress string
	// RequiredStakeWei seeds the in-memory ledger; the RPC ledger reads REQUIRED_STAKE.
	RequiredStakeWei string
	ReceiptTimeout   time.Duration
	// MaxBlockRange caps the block span of a single log query.
	MaxBlockRange uint64
}

// SignerConfig locates the external signer holding account keys.
type SignerConfig struct {
	Endpoint string
}

// StorageConfig configures the encrypted content storage service.
type StorageConfig struct {
	APIKey        string
	APIURL        string
	NodeURL       string
	EncryptionURL string
	GatewayURL    string
	MaxFileSize   int64
	AllowedExts   []string
}

// WalletConfig carries the wallet-connector project identifier handed to the dashboard.
type WalletConfig struct {
	ProjectID string
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheTTL time.Duration
}

// JournalConfig toggles the Postgres upload journal and action audit.
type JournalConfig struct {
	Enabled bool
}

// WatcherConfig controls the ledger event watcher.
type WatcherConfig struct {
	Enabled      bool
	PollInterval time.Duration
	StartBlock   uint64
}

// RefreshConfig sizes the view refresh queue.
type RefreshConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
	}

	cfg.Session = SessionConfig{
		Secret:       v.GetString("SESSION_SECRET"),
		Expiration:   parseDuration(v.GetString("SESSION_EXPIRATION"), 12*time.Hour),
		ChallengeTTL: parseDuration(v.GetString("SESSION_CHALLENGE_TTL"), 5*time.Minute),
		Issuer:       v.GetString("SESSION_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ledger = LedgerConfig{
		Mode:             strings.ToLower(v.GetString("LEDGER_MODE")),
		RPCURL:           v.GetString("LEDGER_RPC_URL"),
		ChainID:          v.GetInt64("LEDGER_CHAIN_ID"),
		ContractAddress:  v.GetString("LEDGER_CONTRACT_ADDRESS"),
		RequiredStakeWei: v.GetString("LEDGER_REQUIRED_STAKE_WEI"),
		ReceiptTimeout:   parseDuration(v.GetString("LEDGER_RECEIPT_TIMEOUT"), 2*time.Minute),
		MaxBlockRange:    v.GetUint64("LEDGER_WATCH_MAX_RANGE"),
	}

	cfg.Signer = SignerConfig{Endpoint: v.GetString("SIGNER_ENDPOINT")}

	maxFileSize := v.GetInt64("LIGHTHOUSE_MAX_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		APIKey:        v.GetString("LIGHTHOUSE_API_KEY"),
		APIURL:        v.GetString("LIGHTHOUSE_API_URL"),
		NodeURL:       v.GetString("LIGHTHOUSE_NODE_URL"),
		EncryptionURL: v.GetString("LIGHTHOUSE_ENCRYPTION_URL"),
		GatewayURL:    v.GetString("LIGHTHOUSE_GATEWAY_URL"),
		MaxFileSize:   maxFileSize,
		AllowedExts:   splitAndTrim(v.GetString("LIGHTHOUSE_ALLOWED_EXTENSIONS")),
	}

	cfg.Wallet = WalletConfig{ProjectID: v.GetString("WALLETCONNECT_PROJECT_ID")}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 30*time.Second),
	}

	cfg.Journal = JournalConfig{Enabled: v.GetBool("ENABLE_JOURNAL")}

	cfg.Watcher = WatcherConfig{
		Enabled:      v.GetBool("ENABLE_LEDGER_WATCHER"),
		PollInterval: parseDuration(v.GetString("LEDGER_WATCH_INTERVAL"), 5*time.Second),
		StartBlock:   v.GetUint64("LEDGER_WATCH_START_BLOCK"),
	}

	cfg.Refresh = RefreshConfig{
		Workers:    v.GetInt("REFRESH_WORKERS"),
		MaxRetries: v.GetInt("REFRESH_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("REFRESH_RETRY_DELAY"), time.Second),
	}

	return cfg, nil
}

// Validate fails closed when a required external credential is missing.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Storage.APIKey) == "" {
		missing = append(missing, "LIGHTHOUSE_API_KEY")
	}
	if strings.TrimSpace(c.Wallet.ProjectID) == "" {
		missing = append(missing, "WALLETCONNECT_PROJECT_ID")
	}
	if c.Env == EnvProduction && c.Session.Secret == "dev_session_secret" {
		missing = append(missing, "SESSION_SECRET")
	}
	switch c.Ledger.Mode {
	case LedgerModeMemory:
	case LedgerModeRPC:
		if c.Ledger.RPCURL == "" {
			missing = append(missing, "LEDGER_RPC_URL")
		}
		if c.Ledger.ContractAddress == "" {
			missing = append(missing, "LEDGER_CONTRACT_ADDRESS")
		}
	default:
		return fmt.Errorf("unsupported LEDGER_MODE %q", c.Ledger.Mode)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "kyc_attestation")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)

	v.SetDefault("SESSION_SECRET", "dev_session_secret")
	v.SetDefault("SESSION_EXPIRATION", "12h")
	v.SetDefault("SESSION_CHALLENGE_TTL", "5m")
	v.SetDefault("SESSION_ISSUER", "kyc-attestation-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEDGER_MODE", LedgerModeMemory)
	v.SetDefault("LEDGER_RPC_URL", "https://data-seed-prebsc-1-s1.bnbchain.org:8545")
	v.SetDefault("LEDGER_CHAIN_ID", 97)
	v.SetDefault("LEDGER_CONTRACT_ADDRESS", "0xDC893A7cF7c2d69fAf65EDe795D5750c48d3169A")
	v.SetDefault("LEDGER_REQUIRED_STAKE_WEI", "1000000000000000")
	v.SetDefault("LEDGER_RECEIPT_TIMEOUT", "2m")

	v.SetDefault("SIGNER_ENDPOINT", "")

	v.SetDefault("LIGHTHOUSE_API_KEY", "")
	v.SetDefault("LIGHTHOUSE_API_URL", "https://api.lighthouse.storage")
	v.SetDefault("LIGHTHOUSE_NODE_URL", "https://node.lighthouse.storage")
	v.SetDefault("LIGHTHOUSE_ENCRYPTION_URL", "https://encryption.lighthouse.storage")
	v.SetDefault("LIGHTHOUSE_GATEWAY_URL", "https://gateway.lighthouse.storage")
	v.SetDefault("LIGHTHOUSE_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("LIGHTHOUSE_ALLOWED_EXTENSIONS", ".pdf,.jpg,.jpeg,.png")

	v.SetDefault("WALLETCONNECT_PROJECT_ID", "")
	v.SetDefault("DASHBOARD_CACHE_TTL", "30s")
	v.SetDefault("ENABLE_JOURNAL", false)

	v.SetDefault("ENABLE_LEDGER_WATCHER", false)
	v.SetDefault("LEDGER_WATCH_INTERVAL", "5s")
	v.SetDefault("LEDGER_WATCH_START_BLOCK", 0)
	v.SetDefault("LEDGER_WATCH_MAX_RANGE", 2000)

	v.SetDefault("REFRESH_WORKERS", 2)
	v.SetDefault("REFRESH_MAX_RETRIES", 3)
	v.SetDefault("REFRESH_RETRY_DELAY", "1s")
}

func isMissingFile(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
