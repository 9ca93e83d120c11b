package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/tradetools/tradetools-server/internal/models"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Flex      FlexConfig
	Auth      AuthConfig
	Portfolio PortfolioConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds Kafka/Redpanda configuration
type KafkaConfig struct {
	Brokers       []string
	TradesTopic   string
	EventsTopic   string
	ConsumerGroup string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// FlexConfig holds the broker report-service credentials.
type FlexConfig struct {
	BaseURL       string
	Token         string
	QueryIDDaily  string
	QueryIDWeekly string
}

// AuthConfig holds the API bearer token. Token verification itself is an
// external concern; an empty token disables the check.
type AuthConfig struct {
	Token string
}

// PortfolioConfig holds the static portfolio knobs: target allocation per
// underlying, pseudo-symbols excluded from aggregation, and the net-worth
// account catalog.
type PortfolioConfig struct {
	TargetAllocation  map[string]float64
	ExcludedSymbols   map[string]bool
	ReportingCurrency string
	Accounts          []models.Account
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8082"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "tradetools"),
			Password: getEnv("DB_PASSWORD", "tradetools"),
			DBName:   getEnv("DB_NAME", "tradetools"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:       parseBrokers(getEnv("KAFKA_BROKERS", "localhost:19092")),
			TradesTopic:   getEnv("KAFKA_TRADES_TOPIC", "trading.confirms"),
			EventsTopic:   getEnv("KAFKA_EVENTS_TOPIC", "tradetools.events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "tradetools-server"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
		Flex: FlexConfig{
			BaseURL:       getEnv("FLEX_BASE_URL", "https://gdcdyn.interactivebrokers.com/Universal/servlet"),
			Token:         getEnv("FLEX_TOKEN", ""),
			QueryIDDaily:  getEnv("FLEX_QUERY_ID_DAILY", ""),
			QueryIDWeekly: getEnv("FLEX_QUERY_ID_WEEKLY", ""),
		},
		Auth: AuthConfig{
			Token: getEnv("API_TOKEN", ""),
		},
		Portfolio: PortfolioConfig{
			TargetAllocation:  parseAllocation(getEnv("TARGET_ALLOCATION", "")),
			ExcludedSymbols:   parseSymbolSet(getEnv("EXCLUDED_SYMBOLS", "USD.CAD")),
			ReportingCurrency: getEnv("REPORTING_CURRENCY", "CAD"),
			Accounts:          parseAccounts(getEnv("NET_WORTH_ACCOUNTS", "")),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Address returns the Redis address in host:port format
func (r *RedisConfig) Address() string {
	return r.Host + ":" + r.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseBrokers splits a comma-separated broker list
func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseAllocation reads "SYM:PCT,SYM:PCT" pairs. Malformed pairs are skipped.
func parseAllocation(raw string) map[string]float64 {
	targets := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		targets[strings.ToUpper(strings.TrimSpace(parts[0]))] = pct
	}
	return targets
}

func parseSymbolSet(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, sym := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(sym); trimmed != "" {
			set[trimmed] = true
		}
	}
	return set
}

// parseAccounts reads "NAME|PORTFOLIO|CURRENCY" triples separated by commas.
func parseAccounts(raw string) []models.Account {
	accounts := []models.Account{}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), "|")
		if len(parts) != 3 {
			continue
		}
		accounts = append(accounts, models.Account{
			Name:      strings.TrimSpace(parts[0]),
			Portfolio: strings.TrimSpace(parts[1]),
			Currency:  strings.ToUpper(strings.TrimSpace(parts[2])),
		})
	}
	return accounts
}
