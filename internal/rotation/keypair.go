package rotation

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/systmms/mailbroker/internal/secure"
)

// KeyBits is the modulus size of generated keypairs.
const KeyBits = 2048

// Keypair is a freshly generated keypair. The private key stays sealed until
// it is written to the store.
type Keypair struct {
	PrivateKey   *secure.KeyMaterial
	PublicKeyPEM string
}

// KeyGenerator produces keypairs.
type KeyGenerator interface {
	Generate(ctx context.Context) (*Keypair, error)
}

// RSAGenerator generates RSA keypairs serialized as PKCS#1 PEM.
type RSAGenerator struct {
	Bits   int
	Random io.Reader
}

// Generate blocks until the key is generated; it checks ctx only before
// starting.
func (g RSAGenerator) Generate(ctx context.Context) (*Keypair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bits := g.Bits
	if bits == 0 {
		bits = KeyBits
	}
	random := g.Random
	if random == nil {
		random = rand.Reader
	}

	key, err := rsa.GenerateKey(random, bits)
	if err != nil {
		return nil, fmt.Errorf("generate %d-bit RSA key: %w", bits, err)
	}

	der := x509.MarshalPKCS1PrivateKey(key)
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
	clear(der)
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})

	return &Keypair{
		PrivateKey:   secure.Seal(privatePEM),
		PublicKeyPEM: string(publicPEM),
	}, nil
}

type keypairDocument struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// ParseKeypairDocument decodes a stored keypair document and checks that the
// two keys belong together.
func ParseKeypairDocument(doc string) (*rsa.PrivateKey, error) {
	var d keypairDocument
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return nil, fmt.Errorf("decode keypair document: %w", err)
	}

	privBlock, _ := pem.Decode([]byte(d.PrivateKey))
	if privBlock == nil || privBlock.Type != "RSA PRIVATE KEY" {
		return nil, fmt.Errorf("private_key is not a PKCS#1 PEM block")
	}
	key, err := x509.ParsePKCS1PrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubBlock, _ := pem.Decode([]byte(d.PublicKey))
	if pubBlock == nil || pubBlock.Type != "RSA PUBLIC KEY" {
		return nil, fmt.Errorf("public_key is not a PKCS#1 PEM block")
	}
	pub, err := x509.ParsePKCS1PublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	if !key.PublicKey.Equal(pub) {
		return nil, fmt.Errorf("public_key does not match private_key")
	}
	return key, nil
}
