// Package keygen produces API key material in the exact format the
// backing service issues and verifies:
//
//	plaintext: mbmcp_{live|test}_{base62 x 32}
//	prefix:    first 16 characters of the plaintext
//	hash:      SHA-256 of the plaintext bytes
//
// The plaintext is handed to the immediate caller exactly once and is
// never persisted or logged; only prefix and hash are stored.
package keygen

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strings"
)

type Environment string

const (
	EnvLive Environment = "live"
	EnvTest Environment = "test"
)

const (
	// Scheme is the fixed leading token of every key.
	Scheme = "mbmcp"

	// PrefixLen is how much of the plaintext is safe to store and display.
	PrefixLen = 16

	randomLen = 32

	base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// testMarker identifies test-environment keys by their prefix alone.
var testMarker = fmt.Sprintf("%s_%s", Scheme, EnvTest)

// Material is the credential triple minted for a new key.
type Material struct {
	Plaintext string
	Prefix    string
	Hash      []byte
}

// Generate mints key material for the given environment.
//
// Each random byte is mapped modulo 62 onto the alphabet, matching the
// server's generator byte for byte. 256 mod 62 != 0, so the mapping is
// very slightly biased toward the low end of the alphabet; that bias is
// part of the issued format and is kept rather than fixed here.
func Generate(env Environment) (Material, error) {
	buf := make([]byte, randomLen)
	if _, err := rand.Read(buf); err != nil {
		return Material{}, fmt.Errorf("failed to read random bytes: %w", err)
	}

	var sb strings.Builder
	sb.Grow(len(Scheme) + 1 + len(env) + 1 + randomLen)
	sb.WriteString(Scheme)
	sb.WriteByte('_')
	sb.WriteString(string(env))
	sb.WriteByte('_')
	for _, b := range buf {
		sb.WriteByte(base62[int(b)%len(base62)])
	}

	plaintext := sb.String()
	return Material{
		Plaintext: plaintext,
		Prefix:    plaintext[:PrefixLen],
		Hash:      HashKey(plaintext),
	}, nil
}

// HashKey derives the stored digest of a plaintext key.
func HashKey(plaintext string) []byte {
	sum := sha256.Sum256([]byte(plaintext))
	return sum[:]
}

// EnvironmentFromPrefix infers the environment a key was minted for.
// Anything that does not carry the test marker counts as live.
func EnvironmentFromPrefix(prefix string) Environment {
	if strings.HasPrefix(prefix, testMarker) {
		return EnvTest
	}
	return EnvLive
}
