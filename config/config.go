// Package config reads the node configuration from the environment.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrMissing = errors.New("missing-env")
	ErrInvalid = errors.New("invalid-env")
)

type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	Debug          bool

	// PostgresURL is empty when records are kept in memory.
	PostgresURL string

	// RelayURL is the websocket relay of the room; ServeRelay mounts a hub
	// on this node.
	RelayURL   string
	ServeRelay bool

	// ChainRPCURL is empty when the node runs a simulated chain with a
	// single-player room of its own.
	ChainRPCURL     string
	ContractAddress common.Address
	PlayerAddress   common.Address
	PlayerKey       *ecdsa.PrivateKey
	RoomID          *big.Int

	JWTKey               string
	OperatorPasswordHash string
	TokenAge             time.Duration

	// Argon2 costs apply to hashes made by this node and set the floor the
	// stored operator hash is checked against.
	Argon2Iterations  uint32
	Argon2MemoryKiB   uint32
	Argon2Parallelism uint8

	AutoplayInterval time.Duration
	PollInterval     time.Duration
	DecisionTimeout  time.Duration
	TxTimeout        time.Duration
}

// Local reports whether the node simulates the chain itself.
func (c Config) Local() bool {
	return c.ChainRPCURL == ""
}

func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup, which behaves like
// os.LookupEnv.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	env := reader{lookup: lookup}
	cfg := Config{
		ListenAddr:           env.str("LISTEN_ADDR", ":5000"),
		AllowedOrigins:       env.list("ALLOWED_ORIGINS"),
		Debug:                env.boolean("DEBUG", false),
		PostgresURL:          env.str("POSTGRES_URL", ""),
		RelayURL:             env.str("RELAY_URL", ""),
		ServeRelay:           env.boolean("SERVE_RELAY", false),
		ChainRPCURL:          env.str("CHAIN_RPC_URL", ""),
		JWTKey:               env.required("JWT_KEY"),
		OperatorPasswordHash: env.required("OPERATOR_PASSWORD_HASH"),
		TokenAge:             env.duration("TOKEN_AGE", 7*24*time.Hour),
		Argon2Iterations:     uint32(env.unsigned("ARGON2_ITERATIONS", 3, 32)),
		Argon2MemoryKiB:      uint32(env.unsigned("ARGON2_MEMORY_KIB", 64*1024, 32)),
		Argon2Parallelism:    uint8(env.unsigned("ARGON2_PARALLELISM", 1, 8)),
		AutoplayInterval:     env.duration("AUTOPLAY_INTERVAL", 500*time.Millisecond),
		PollInterval:         env.duration("POLL_INTERVAL", 5*time.Second),
		DecisionTimeout:      env.duration("DECISION_TIMEOUT", 2*time.Second),
		TxTimeout:            env.duration("TX_TIMEOUT", 2*time.Minute),
	}

	if raw, ok := lookup("PLAYER_KEY"); ok && raw != "" {
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			env.fail(fmt.Errorf("%w: PLAYER_KEY: %w", ErrInvalid, err))
		} else {
			cfg.PlayerKey = key
			cfg.PlayerAddress = ethcrypto.PubkeyToAddress(key.PublicKey)
		}
	}
	if raw, ok := lookup("PLAYER_ADDRESS"); ok && raw != "" {
		addr := env.address("PLAYER_ADDRESS", raw)
		if cfg.PlayerKey != nil && addr != cfg.PlayerAddress {
			env.fail(fmt.Errorf("%w: PLAYER_ADDRESS does not match PLAYER_KEY", ErrInvalid))
		}
		cfg.PlayerAddress = addr
	}

	if !cfg.Local() {
		cfg.ContractAddress = env.address("CONTRACT_ADDRESS", env.required("CONTRACT_ADDRESS"))
		cfg.RoomID = env.bigInt("ROOM_ID", env.required("ROOM_ID"))
		if cfg.PlayerAddress == (common.Address{}) {
			env.fail(fmt.Errorf("%w: PLAYER_ADDRESS or PLAYER_KEY", ErrMissing))
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		env.fail(fmt.Errorf("%w: ALLOWED_ORIGINS", ErrMissing))
	}
	return cfg, errors.Join(env.errs...)
}

// reader collects every problem so one run reports all of them.
type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) fail(err error) {
	r.errs = append(r.errs, err)
}

func (r *reader) str(name, fallback string) string {
	if v, ok := r.lookup(name); ok && v != "" {
		return v
	}
	return fallback
}

func (r *reader) required(name string) string {
	v, ok := r.lookup(name)
	if !ok || v == "" {
		r.fail(fmt.Errorf("%w: %s", ErrMissing, name))
	}
	return v
}

func (r *reader) list(name string) []string {
	var out []string
	for _, part := range strings.Split(r.str(name, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) boolean(name string, fallback bool) bool {
	v, ok := r.lookup(name)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(fmt.Errorf("%w: %s: %w", ErrInvalid, name, err))
		return fallback
	}
	return b
}

func (r *reader) unsigned(name string, fallback uint64, bits int) uint64 {
	v, ok := r.lookup(name)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil || n == 0 {
		r.fail(fmt.Errorf("%w: %s=%q", ErrInvalid, name, v))
		return fallback
	}
	return n
}

func (r *reader) duration(name string, fallback time.Duration) time.Duration {
	v, ok := r.lookup(name)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.fail(fmt.Errorf("%w: %s=%q", ErrInvalid, name, v))
		return fallback
	}
	return d
}

func (r *reader) address(name, v string) common.Address {
	if v == "" {
		return common.Address{}
	}
	if !common.IsHexAddress(v) {
		r.fail(fmt.Errorf("%w: %s=%q", ErrInvalid, name, v))
		return common.Address{}
	}
	return common.HexToAddress(v)
}

func (r *reader) bigInt(name, v string) *big.Int {
	if v == "" {
		return nil
	}
	n, ok := new(big.Int).SetString(v, 0)
	if !ok || n.Sign() < 0 {
		r.fail(fmt.Errorf("%w: %s=%q", ErrInvalid, name, v))
		return nil
	}
	return n
}
