package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidAddress      = errors.New("invalid destination address")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// Address formats per chain: base58check legacy plus bech32.
var (
	btcLegacyRegex = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	btcBech32Regex = regexp.MustCompile(`^bc1[ac-hj-np-z02-9]{39,59}$`)
	ltcLegacyRegex = regexp.MustCompile(`^[LM3][a-km-zA-HJ-NP-Z1-9]{26,33}$`)
	ltcBech32Regex = regexp.MustCompile(`^ltc1[ac-hj-np-z02-9]{39,59}$`)
)

// ValidateAddress checks a destination address against the given currency's
// format before any balance is read or mutated.
func ValidateAddress(currency, address string) error {
	switch currency {
	case "BTC":
		if btcLegacyRegex.MatchString(address) || btcBech32Regex.MatchString(address) {
			return nil
		}
		return ErrInvalidAddress
	case "LTC":
		if ltcLegacyRegex.MatchString(address) || ltcBech32Regex.MatchString(address) {
			return nil
		}
		return ErrInvalidAddress
	default:
		return ErrUnsupportedCurrency
	}
}

func SupportedCurrency(currency string) bool {
	return currency == "BTC" || currency == "LTC"
}
