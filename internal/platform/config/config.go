package config

import (
	"os"
	"strconv"
)

// Server captures process-level configuration. Values come from the
// environment so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string
	// RegisterMode selects the registry duplicate policy: "update" or "strict".
	RegisterMode string
	// StoreBackend selects the organelle store: "memory", "postgres" or "redis".
	StoreBackend string
	PostgresDSN  string
	RedisURL     string
	// KafkaBrokers enables the kafka lineage sink when non-empty
	// (comma-separated broker list).
	KafkaBrokers string
	// OperatorAddress and OperatorSecret seed one exchangeable credential so
	// the first caller can obtain a bearer token over POST /tokens. Both must
	// be set together.
	OperatorAddress string
	OperatorSecret  string
	// ReplicationCost is the default funding share reserved when a cell
	// replicates, in ledger units.
	ReplicationCost uint64
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("PROTOCELL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("PROTOCELL_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - override in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	mode := os.Getenv("PROTOCELL_REGISTER_MODE")
	if mode == "" {
		mode = "update"
	}

	backend := os.Getenv("PROTOCELL_STORE_BACKEND")
	if backend == "" {
		backend = "memory"
	}

	cost := uint64(100)
	if raw := os.Getenv("PROTOCELL_REPLICATION_COST"); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
			cost = parsed
		}
	}

	return Server{
		Addr:            addr,
		JWTSigningKey:   jwtSigningKey,
		RegisterMode:    mode,
		StoreBackend:    backend,
		PostgresDSN:     os.Getenv("PROTOCELL_POSTGRES_DSN"),
		RedisURL:        os.Getenv("PROTOCELL_REDIS_URL"),
		KafkaBrokers:    os.Getenv("PROTOCELL_KAFKA_BROKERS"),
		OperatorAddress: os.Getenv("PROTOCELL_OPERATOR_ADDRESS"),
		OperatorSecret:  os.Getenv("PROTOCELL_OPERATOR_SECRET"),
		ReplicationCost: cost,
	}
}
