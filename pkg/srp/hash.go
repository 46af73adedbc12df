package srp

import (
	"crypto"
	// Registered digests selectable through ParseHash.
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"sort"
	"strings"

	_ "golang.org/x/crypto/blake2b"
	_ "golang.org/x/crypto/sha3"
)

var hashNames = map[string]crypto.Hash{
	"sha1":        crypto.SHA1,
	"sha256":      crypto.SHA256,
	"sha384":      crypto.SHA384,
	"sha512":      crypto.SHA512,
	"sha3-256":    crypto.SHA3_256,
	"sha3-512":    crypto.SHA3_512,
	"blake2b-256": crypto.BLAKE2b_256,
	"blake2b-512": crypto.BLAKE2b_512,
}

// ParseHash maps a digest name such as "sha256" or "blake2b-256" to a crypto.Hash.
func ParseHash(name string) (crypto.Hash, error) {
	h, ok := hashNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported hash %q", ErrInvalidParams, name)
	}
	if !h.Available() {
		return 0, fmt.Errorf("%w: hash %q is not linked in", ErrInvalidParams, name)
	}
	return h, nil
}

// HashNames lists the digest names accepted by ParseHash.
func HashNames() []string {
	names := make([]string, 0, len(hashNames))
	for n := range hashNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// digest hashes the concatenation of parts with h.
func digest(h crypto.Hash, parts ...[]byte) []byte {
	d := h.New()
	for _, p := range parts {
		d.Write(p)
	}
	return d.Sum(nil)
}
