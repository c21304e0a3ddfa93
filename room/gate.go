package room

import (
	"github.com/alexedwards/argon2id"
)

// Argon2idGate stores private room passwords as argon2id hashes.
type Argon2idGate struct {
	params *argon2id.Params
}

// NewArgon2idGate builds a gate with the given cost. memory is in KiB.
func NewArgon2idGate(memory, iterations uint32, parallelism uint8, saltLength, keyLength uint32) *Argon2idGate {
	return &Argon2idGate{
		params: &argon2id.Params{
			Memory:      memory,
			Iterations:  iterations,
			Parallelism: parallelism,
			SaltLength:  saltLength,
			KeyLength:   keyLength,
		},
	}
}

func (g *Argon2idGate) Seal(password string) (string, error) {
	return argon2id.CreateHash(password, g.params)
}

func (g *Argon2idGate) Open(sealed, attempt string) (bool, error) {
	return argon2id.ComparePasswordAndHash(attempt, sealed)
}
