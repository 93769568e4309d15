package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2ID = "argon2id"

// Upper bounds for parameters accepted from stored hashes.
// A digest above them never matches and costs nothing to reject
const (
	maxArgon2Memory      = 1 << 20 // KiB
	maxArgon2Time        = 10
	maxArgon2Parallelism = 16
	maxArgon2SaltLength  = 64
	maxArgon2KeyLength   = 64
)

// Argon2id parameters
type Argon2Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Parameters recommended by RFC 9106 for memory constrained environments
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Argon2id password hasher producing PHC strings:
// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
// Default hasher of the service
type Argon2Hasher struct {
	params Argon2Params
}

func NewArgon2Hasher(p Argon2Params) (*Argon2Hasher, error) {
	switch {
	case p.Memory < 8*1024:
		return nil, errors.New("argon2 memory must be >= 8192 KiB")
	case p.Time < 1:
		return nil, errors.New("argon2 time must be >= 1")
	case p.Parallelism < 1:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case p.SaltLength < 16:
		return nil, errors.New("argon2 salt length must be >= 16")
	case p.KeyLength < 16:
		return nil, errors.New("argon2 key length must be >= 16")
	case p.Memory > maxArgon2Memory || p.Time > maxArgon2Time || p.Parallelism > maxArgon2Parallelism:
		return nil, errors.New("argon2 cost is above the supported maximum")
	case p.SaltLength > maxArgon2SaltLength || p.KeyLength > maxArgon2KeyLength:
		return nil, errors.New("argon2 salt or key is longer than supported")
	}

	return &Argon2Hasher{params: p}, nil
}

func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Compare in constant time. Malformed hashes never match
func (h *Argon2Hasher) Compare(hashedPassword string, password string) bool {
	p, salt, key, err := parseArgon2(hashedPassword)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1
}

func parseArgon2(encoded string) (p Argon2Params, salt []byte, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2ID {
		return p, nil, nil, errors.New("invalid argon2id hash format")
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, nil, nil, errors.New("unsupported argon2 version")
	}

	_, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Parallelism)
	if err != nil || p.Memory == 0 || p.Time == 0 || p.Parallelism == 0 {
		return p, nil, nil, errors.New("invalid argon2 parameters")
	}
	if p.Memory > maxArgon2Memory || p.Time > maxArgon2Time || p.Parallelism > maxArgon2Parallelism {
		return p, nil, nil, errors.New("argon2 parameters out of range")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 || len(salt) > maxArgon2SaltLength {
		return p, nil, nil, errors.New("invalid argon2 salt")
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxArgon2KeyLength {
		return p, nil, nil, errors.New("invalid argon2 key")
	}

	return p, salt, key, nil
}
