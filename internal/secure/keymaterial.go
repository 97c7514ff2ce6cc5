package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned by Use after Destroy.
var ErrDestroyed = errors.New("key material destroyed")

// KeyMaterial holds sensitive bytes sealed in a memguard enclave.
type KeyMaterial struct {
	mu        sync.Mutex
	enclave   *memguard.Enclave
	destroyed bool
}

// Seal moves data into an enclave. data is wiped.
func Seal(data []byte) *KeyMaterial {
	k := &KeyMaterial{}
	if len(data) > 0 {
		k.enclave = memguard.NewEnclave(data)
	}
	return k
}

// Use decrypts the material into a locked buffer, passes the plaintext to fn
// and wipes the buffer when fn returns. fn must not retain the slice.
func (k *KeyMaterial) Use(fn func(plaintext []byte) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.destroyed {
		return ErrDestroyed
	}
	if k.enclave == nil {
		return fn(nil)
	}

	locked, err := k.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Destroy releases the enclave. It is safe to call more than once.
func (k *KeyMaterial) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.enclave = nil
	k.destroyed = true
}

// String keeps the material out of formatted output.
func (k *KeyMaterial) String() string {
	return "[REDACTED]"
}
