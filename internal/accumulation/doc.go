// Package accumulation maintains a per-subject encrypted running total by
// homomorphically combining Paillier ciphertexts, without decrypting them.
//
// The Orchestrator is stateless between calls. All consistency is delegated
// to the Store's compare-and-swap: every contribution reads the current
// State, derives the next one, and writes it only if the snapshot it read is
// still current. Conflicts are retried under a bounded budget; store
// failures are retried with exponential backoff. Each contribution carries an
// ID that is remembered in the stored State, so a retried contribution whose
// first attempt did commit is returned as-is instead of being applied twice.
package accumulation
