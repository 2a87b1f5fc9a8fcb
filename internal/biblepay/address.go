package biblepay

// addressLength is the length of every base58 BiblePay address.
const addressLength = 34

// ValidAddressFormat reports whether the string looks like a BiblePay
// payout address: 34 characters, mainnet addresses start with B and
// testnet addresses with y, alphanumeric only. This is a format check,
// not a checksum verification; the daemon remains the authority on
// whether an address is actually spendable.
func ValidAddressFormat(address string) bool {
	if len(address) != addressLength {
		return false
	}

	if address[0] != 'B' && address[0] != 'y' {
		return false
	}

	for i := 0; i < len(address); i++ {
		c := address[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}

	return true
}
