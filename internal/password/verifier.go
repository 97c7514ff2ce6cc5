// Package password verifies plaintext passwords against the salted hashes
// stored in the user directory.
//
// The hash carries its own algorithm tag and parameters. Supported formats:
//
//	$6$...        SHA-512 crypt
//	$5$...        SHA-256 crypt
//	$1$...        MD5 crypt (legacy records only)
//	$2a$/$2b$/$2y$  bcrypt
//	$argon2id$... argon2id in PHC form
//
// Every comparison is constant time.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnsupportedHash is returned when the stored hash has no known algorithm tag.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

const saltAlphabet = "./0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Verifier checks passwords against stored hashes. The zero value is ready
// to use and safe for concurrent use.
type Verifier struct{}

// NewVerifier returns a Verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify reports whether password matches encoded. A mismatch is not an
// error; an error means the stored hash itself is unusable.
func (v *Verifier) Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return verifyBcrypt(password, encoded)
	case strings.HasPrefix(encoded, "$argon2id$"):
		return verifyArgon2id(password, encoded)
	}

	crypter, err := crypterFor(encoded)
	if err != nil {
		return false, err
	}
	computed, err := crypter.Generate([]byte(password), []byte(encoded))
	if err != nil {
		return false, fmt.Errorf("recompute hash: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(encoded)) == 1, nil
}

func crypterFor(encoded string) (crypt.Crypter, error) {
	switch {
	case strings.HasPrefix(encoded, sha512_crypt.MagicPrefix):
		return sha512_crypt.New(), nil
	case strings.HasPrefix(encoded, sha256_crypt.MagicPrefix):
		return sha256_crypt.New(), nil
	case strings.HasPrefix(encoded, md5_crypt.MagicPrefix):
		return md5_crypt.New(), nil
	}
	return nil, ErrUnsupportedHash
}

func verifyBcrypt(password, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("bcrypt: %w", err)
	}
}

type argon2Params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func verifyArgon2id(password, encoded string) (bool, error) {
	p, err := parseArgon2id(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(computed, p.hash) == 1, nil
}

func parseArgon2id(encoded string) (*argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, errors.New("invalid argon2id hash format")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}

	var p argon2Params
	for _, pair := range strings.Split(parts[3], ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid argon2 parameter %q", pair)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid argon2 parameter %q", pair)
		}
		switch key {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n == 0 || n > 255 {
				return nil, fmt.Errorf("invalid argon2 parallelism %d", n)
			}
			p.parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("unknown argon2 parameter %q", key)
		}
	}
	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, errors.New("missing argon2 parameters")
	}

	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil {
		return nil, fmt.Errorf("invalid argon2 salt: %w", err)
	}
	if p.hash, err = decodeB64(parts[5]); err != nil || len(p.hash) == 0 {
		return nil, errors.New("invalid argon2 hash")
	}
	return &p, nil
}

// PHC strings are unpadded, but some writers pad.
func decodeB64(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// HashSHA512 returns a SHA-512 crypt hash of password with a fresh 16
// character salt, suitable for the directory's password attribute.
func HashSHA512(password string) (string, error) {
	salt, err := randomSalt(16)
	if err != nil {
		return "", err
	}
	return sha512_crypt.New().Generate([]byte(password), []byte(sha512_crypt.MagicPrefix+salt))
}

// HashBcrypt returns a bcrypt hash of password at the given cost.
func HashBcrypt(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func randomSalt(n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(saltAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate salt: %w", err)
		}
		b.WriteByte(saltAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
