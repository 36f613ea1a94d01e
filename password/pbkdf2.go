package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// AlgorithmTag is the first field of every encoded hash.
	AlgorithmTag = "pbkdf2_sha256"

	// DefaultIterations is the PBKDF2 round count used for new hashes.
	DefaultIterations = 100_000
	// DefaultSaltLength is the random salt size in bytes (128 bits).
	DefaultSaltLength = 16
	// DefaultKeyLength is the derived key size in bytes (256 bits).
	DefaultKeyLength = 32

	minIterations = 100_000
	minSaltLength = 16
	minKeyLength  = 32

	// MaxIterations bounds the round count of new and stored hashes. A stored
	// hash claiming more is rejected without deriving.
	MaxIterations = 10_000_000

	// Stored hashes claiming fewer rounds than this are treated as tampered.
	verifyIterationFloor = 10_000

	fieldDelimiter = "$"
)

var (
	// ErrEmptyPassword is returned by Hash when the password is empty or whitespace only.
	ErrEmptyPassword = errors.New("password is required")
	// ErrMalformedHash is returned by NeedsUpgrade when the stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config defines the parameters used for newly produced hashes.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

// DefaultConfig returns the recommended parameters.
func DefaultConfig() Config {
	return Config{
		Iterations: DefaultIterations,
		SaltLength: DefaultSaltLength,
		KeyLength:  DefaultKeyLength,
	}
}

// Hasher produces and verifies PBKDF2-HMAC-SHA256 password hashes.
//
// A Hasher holds no mutable state and is safe for concurrent use.
type Hasher struct {
	config Config
	rand   io.Reader
}

type parsedHash struct {
	iterations int
	salt       []byte
	key        []byte
}

// NewHasher describes the newhasher operation and its observable behavior.
//
// NewHasher returns an error when cfg is weaker than the minimum accepted parameters
// (100,000 iterations, 16-byte salt, 32-byte key).
func NewHasher(cfg Config) (*Hasher, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Hasher{config: cfg, rand: rand.Reader}, nil
}

// Hash derives a key from password with a fresh random salt and returns the encoded hash.
//
// Hash returns ErrEmptyPassword when password is empty or consists only of whitespace.
// Password processing uses raw string bytes exactly as provided (no Unicode normalization).
func (h *Hasher) Hash(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", err
	}

	key := derive(password, salt, h.config.Iterations, h.config.KeyLength)

	var b strings.Builder
	b.WriteString(AlgorithmTag)
	b.WriteString(fieldDelimiter)
	b.WriteString(strconv.Itoa(h.config.Iterations))
	b.WriteString(fieldDelimiter)
	b.WriteString(base64.StdEncoding.EncodeToString(salt))
	b.WriteString(fieldDelimiter)
	b.WriteString(base64.StdEncoding.EncodeToString(key))
	return b.String(), nil
}

// Verify reports whether password matches encodedHash.
//
// Verify never returns an error: empty input, a malformed or downgraded hash, or an
// unknown algorithm tag all yield false. Keys are compared in constant time.
func (h *Hasher) Verify(password string, encodedHash string) bool {
	if password == "" {
		return false
	}

	parsed, err := parseHash(encodedHash)
	if err != nil {
		return false
	}

	computed := derive(password, parsed.salt, parsed.iterations, len(parsed.key))
	return subtle.ConstantTimeCompare(computed, parsed.key) == 1
}

// NeedsUpgrade reports whether encodedHash was produced with weaker parameters than
// the current configuration.
func (h *Hasher) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := parseHash(encodedHash)
	if err != nil {
		return false, err
	}

	if h.config.Iterations > parsed.iterations {
		return true, nil
	}
	if h.config.KeyLength != len(parsed.key) {
		return true, nil
	}
	if h.config.SaltLength > len(parsed.salt) {
		return true, nil
	}

	return false, nil
}

func derive(password string, salt []byte, iterations, keyLength int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha256.New)
}

func parseHash(encodedHash string) (*parsedHash, error) {
	if strings.TrimSpace(encodedHash) == "" {
		return nil, ErrMalformedHash
	}

	parts := strings.Split(encodedHash, fieldDelimiter)
	if len(parts) != 4 {
		return nil, ErrMalformedHash
	}
	if parts[0] != AlgorithmTag {
		return nil, errors.New("unsupported algorithm")
	}

	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations < verifyIterationFloor || iterations > MaxIterations {
		return nil, errors.New("invalid iteration count")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return nil, errors.New("invalid salt encoding")
	}

	key, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return nil, errors.New("invalid key encoding")
	}

	return &parsedHash{
		iterations: iterations,
		salt:       salt,
		key:        key,
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.Iterations < minIterations {
		return errors.New("password iterations must be >= 100000")
	}
	if cfg.Iterations > MaxIterations {
		return errors.New("password iterations must be <= 10000000")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 32")
	}

	return nil
}
