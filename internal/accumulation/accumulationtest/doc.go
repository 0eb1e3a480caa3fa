// Package accumulationtest provides fault-injecting stores, signal recorders
// and a throwaway Paillier key for tests that exercise the accumulation core.
package accumulationtest
