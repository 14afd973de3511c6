package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// CryptoPlaces is the number of fractional digits carried for BTC/LTC
// amounts; one smallest unit (satoshi/litoshi) is 10^-8.
const CryptoPlaces = 8

var smallestUnitScale = decimal.New(1, CryptoPlaces)

// ParseMinor parses a EUR/credits amount string into minor units (cents).
func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	sign := int64(1)
	switch trimmed[0] {
	case '-':
		sign = -1
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	parts := strings.SplitN(trimmed, ".", 2)
	wholePart := parts[0]
	if wholePart == "" {
		wholePart = "0"
	}
	if !isDigits(wholePart) {
		return 0, ErrInvalidAmount
	}
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > 2 {
		return 0, ErrTooManyDecimals
	}
	if fracPart != "" && !isDigits(fracPart) {
		return 0, ErrInvalidAmount
	}
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	frac := int64(0)
	if len(fracPart) == 1 {
		frac = int64(fracPart[0]-'0') * 10
	} else if len(fracPart) == 2 {
		value, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		frac = value
	}
	minor := whole*100 + frac
	return sign * minor, nil
}

// FormatMinor renders minor units as a two-decimal amount string.
func FormatMinor(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	whole := value / 100
	frac := value % 100
	formatted := fmt.Sprintf("%d.%02d", whole, frac)
	if negative {
		return "-" + formatted
	}
	return formatted
}

// MinorToDecimal converts minor units to a decimal major amount (cents -> EUR).
func MinorToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// ToSmallestUnit converts a crypto amount to satoshi/litoshi, flooring any
// sub-unit remainder.
func ToSmallestUnit(amount decimal.Decimal) int64 {
	return amount.Mul(smallestUnitScale).Floor().IntPart()
}

// FromSmallestUnit converts satoshi/litoshi back to a crypto amount.
func FromSmallestUnit(units int64) decimal.Decimal {
	return decimal.New(units, -CryptoPlaces)
}

// ParseCrypto parses a crypto amount string with at most CryptoPlaces
// fractional digits.
func ParseCrypto(input string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if -value.Exponent() > CryptoPlaces {
		return decimal.Zero, ErrTooManyDecimals
	}
	return value, nil
}

// EqualWithinEpsilon reports whether two crypto amounts differ by less than
// one smallest unit.
func EqualWithinEpsilon(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(decimal.New(1, -CryptoPlaces))
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
