// Package paillier implements the ciphertext-side arithmetic of the Paillier
// additive homomorphism: multiplying two ciphertexts modulo n² yields a
// ciphertext of the sum of their plaintexts modulo n.
//
// Key generation, encryption and decryption are out of scope. Callers hand in
// decimal strings or big integers and get combined ciphertexts back.
package paillier
