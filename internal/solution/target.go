package solution

import "math/big"

// AcceptableHash reports whether a proof hash beats a hash target. Both
// are hex strings compared as 256-bit integers; the hash must be strictly
// below the target. Unparseable input from the client never passes.
func AcceptableHash(bibleHash, hashTarget string) bool {
	hash, ok := new(big.Int).SetString(bibleHash, 16)
	if !ok {
		return false
	}

	target, ok := new(big.Int).SetString(hashTarget, 16)
	if !ok {
		return false
	}

	return hash.Cmp(target) < 0
}
