// Package fakes provides test doubles for the AWS clients and the broker and
// rotation collaborators.
//
// Fakes are manually implemented (not generated) to provide precise control
// over test behavior. Every SDK fake offers a ...Func override per method and
// counts calls so tests can assert that a dependency was or was not consulted.
//
// Usage:
//
//	sm := fakes.NewFakeSecretsManagerClient()
//	sm.AddSecret("tls-key", true)
//	sm.AddVersion("tls-key", "v1", `{"private_key":"..."}`, "AWSCURRENT")
//	store := providers.NewSecretsManagerStore(sm)
package fakes
