// Package secure keeps generated private key material out of ordinary heap
// memory between key generation and the secret store write.
//
// Key bytes are sealed in a memguard enclave (encrypted at rest, mlocked
// where the platform allows) and only decrypted into a locked buffer for
// the duration of a single use. Destroy drops the enclave; callers should
// call memguard.Purge on process exit.
package secure
