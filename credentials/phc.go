package credentials

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

// params are the Argon2id tuning knobs spec.md §4.A mandates: memory in
// KiB, time (iteration count), and parallelism.
type params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLen     uint32
	keyLen      uint32
}

var defaultParams = params{
	memory:      15000,
	iterations:  2,
	parallelism: 1,
	saltLen:     16,
	keyLen:      32,
}

const phcVersion = 19 // argon2.Version, 0x13

var b64 = base64.RawStdEncoding

// encodePHC renders salt/hash into the PHC string format, e.g.
// "$argon2id$v=19$m=15000,t=2,p=1$<salt>$<hash>". No ecosystem PHC
// encoder appears anywhere in the retrieved pack, so this is hand-rolled
// against the standard library; see DESIGN.md.
func encodePHC(p params, salt, hash []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcVersion, p.memory, p.iterations, p.parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(hash))
}

// decodePHC parses a PHC string produced by encodePHC. It accepts any
// valid argon2id PHC string (not just ones using defaultParams), per
// spec.md §4.A's "verification MUST accept any valid PHC string the store
// contains" requirement, so parameters may evolve without invalidating
// existing hashes.
func decodePHC(s string) (p params, salt, hash []byte, err error) {
	parts := strings.Split(s, "$")
	// parts[0] is "" (leading $); then algorithm, version, params, salt, hash.
	if len(parts) != 6 {
		return params{}, nil, nil, fmt.Errorf("credentials: malformed PHC string")
	}
	if parts[1] != "argon2id" {
		return params{}, nil, nil, fmt.Errorf("credentials: unsupported algorithm %q", parts[1])
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params{}, nil, nil, fmt.Errorf("credentials: malformed version field: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return params{}, nil, nil, fmt.Errorf("credentials: malformed params field: %w", err)
	}
	salt, err = b64.DecodeString(parts[4])
	if err != nil {
		return params{}, nil, nil, fmt.Errorf("credentials: malformed salt: %w", err)
	}
	hash, err = b64.DecodeString(parts[5])
	if err != nil {
		return params{}, nil, nil, fmt.Errorf("credentials: malformed hash: %w", err)
	}
	p.saltLen = uint32(len(salt))
	p.keyLen = uint32(len(hash))
	return p, salt, hash, nil
}

func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
