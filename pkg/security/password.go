// Package security hashes account passwords and the headquarters passphrase
// with Argon2id and hands out random tokens.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// ErrInvalidHash signals a malformed Argon2id hash string.
var ErrInvalidHash = errors.New("invalid argon2id hash")

// ArgonParams are the cost settings recorded in every hash.
type ArgonParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// ParamsFromConfig clamps configured costs into ranges argon2 accepts.
func ParamsFromConfig(cfg config.PasswordConfig) ArgonParams {
	return ArgonParams{
		Memory:      uint32(clamp(cfg.ArgonMemoryKB, 8, 512*1024)),
		Time:        uint32(clamp(cfg.ArgonTime, 1, 10)),
		Parallelism: uint8(clamp(cfg.ArgonParallelism, 1, 255)),
		SaltLen:     uint32(clamp(cfg.ArgonSaltLen, 8, 64)),
		KeyLen:      uint32(clamp(cfg.ArgonKeyLen, 16, 64)),
	}
}

// phc is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type phc struct {
	params ArgonParams
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.params.Memory, p.params.Time, p.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key))
}

func parsePHC(encoded string) (phc, error) {
	var (
		out                phc
		version            int
		memory, iterations uint32
		parallelism        uint8
		salt, key          string
	)
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return phc{}, ErrInvalidHash
	}
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return phc{}, ErrInvalidHash
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return phc{}, ErrInvalidHash
	}
	salt, key = fields[4], fields[5]

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(salt); err != nil || len(out.salt) == 0 {
		return phc{}, ErrInvalidHash
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(key); err != nil || len(out.key) == 0 {
		return phc{}, ErrInvalidHash
	}
	if memory == 0 || iterations == 0 || parallelism == 0 {
		return phc{}, ErrInvalidHash
	}
	out.params = ArgonParams{
		Memory:      memory,
		Time:        iterations,
		Parallelism: parallelism,
		SaltLen:     uint32(len(out.salt)),
		KeyLen:      uint32(len(out.key)),
	}
	return out, nil
}

func derive(password string, params ArgonParams, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Parallelism, params.KeyLen)
}

// Hasher produces hashes at the configured cost.
type Hasher struct {
	params ArgonParams
}

func NewHasher(cfg config.PasswordConfig) *Hasher {
	return &Hasher{params: ParamsFromConfig(cfg)}
}

// Hash returns a PHC formatted Argon2id hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return phc{params: h.params, salt: salt, key: derive(password, h.params, salt)}.String(), nil
}

// Stale reports whether encoded was produced with costs other than the
// hasher's, so a successful login can store a fresh hash.
func (h *Hasher) Stale(encoded string) bool {
	parsed, err := parsePHC(encoded)
	return err != nil || parsed.params != h.params
}

// HashPassword hashes with the costs in cfg.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	return NewHasher(cfg).Hash(password)
}

// VerifyPassword checks password against encoded using the costs recorded in
// the hash itself.
func VerifyPassword(password, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(parsed.key, derive(password, parsed.params, parsed.salt)) == 1, nil
}

// RandomHex returns n random bytes hex encoded (2n characters).
func RandomHex(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("length must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func clamp(value, lo, hi int) int {
	return max(lo, min(value, hi))
}
