package password

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Reference vector from the SHA-crypt specification.
const helloWorldSHA512 = "$6$saltstring$svn8UoSVapNtMuq1ukKS4tPQd8iKwSMHWjl/O817G3uBnIFNjnQJuesI68u4OTLiBFdcbYEdFCoEOfaS35inz1"

func argon2idHash(t *testing.T, password string) string {
	t.Helper()
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte(password), salt, 1, 8*1024, 1, 32)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, 8*1024, 1, 1,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
}

func TestVerifyKnownVector(t *testing.T) {
	t.Parallel()

	v := NewVerifier()

	ok, err := v.Verify("Hello world!", helloWorldSHA512)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify("hello world!", helloWorldSHA512)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifySchemes(t *testing.T) {
	t.Parallel()

	sha512Hash, err := HashSHA512("pw123")
	require.NoError(t, err)
	bcryptHash, err := HashBcrypt("pw123", bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name string
		hash string
	}{
		{name: "sha512 crypt", hash: sha512Hash},
		{name: "bcrypt", hash: bcryptHash},
		{name: "argon2id", hash: argon2idHash(t, "pw123")},
	}

	v := NewVerifier()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ok, err := v.Verify("pw123", tt.hash)
			require.NoError(t, err)
			assert.True(t, ok, "correct password must verify")

			ok, err = v.Verify("wrong", tt.hash)
			require.NoError(t, err)
			assert.False(t, ok, "wrong password must not verify")
		})
	}
}

func TestHashSHA512Format(t *testing.T) {
	t.Parallel()

	a, err := HashSHA512("same")
	require.NoError(t, err)
	b, err := HashSHA512("same")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "$6$"))
	assert.NotEqual(t, a, b, "salts must differ")
}

func TestVerifyRejectsUnusableHashes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
	}{
		{name: "empty", hash: ""},
		{name: "plaintext", hash: "pw123"},
		{name: "unknown tag", hash: "$9$abc$def"},
		{name: "argon2 wrong version", hash: "$argon2id$v=1$m=8192,t=1,p=1$c2FsdA$aGFzaA"},
		{name: "argon2 bad params", hash: "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA"},
		{name: "argon2 truncated", hash: "$argon2id$v=19$m=8192"},
		{name: "bcrypt truncated", hash: "$2b$10$short"},
	}

	v := NewVerifier()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, err := v.Verify("pw123", tt.hash)
			assert.Error(t, err)
			assert.False(t, ok)
		})
	}
}
