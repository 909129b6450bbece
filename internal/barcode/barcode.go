// Package barcode implements the doujinshi retail barcode convention: ISDN
// (ISBN-like catalog numbers with 278/279 flags), the derived 13-digit JAN
// codes, and the price-embedded second-row code used on book labels.
package barcode

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	secondaryFlag = "292"
	instoreFlag   = "201"

	// DefaultCCode is the classification code printed on doujinshi labels
	// when the catalog record does not carry one.
	DefaultCCode = "3055"
)

// CheckDigit computes the modulus-10 weight-3/1 check digit over a digit
// string (EAN-13 style: weight 1 on even positions, 3 on odd).
func CheckDigit(digits string) (int, error) {
	total := 0
	for i, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q at position %d", r, i)
		}
		weight := 1
		if i%2 == 1 {
			weight = 3
		}
		total += int(r-'0') * weight
	}
	remainder := total % 10
	if remainder == 0 {
		return 0, nil
	}
	return 10 - remainder, nil
}

// FromISDN strips the hyphens from an ISDN, yielding the 13-digit first-row
// JAN code.
func FromISDN(isdn string) string {
	return strings.ReplaceAll(isdn, "-", "")
}

// Secondary builds the 13-digit second-row code: flag 292, 4-digit C-code,
// 5-digit zero-padded price (truncated to its last 5 digits), check digit.
func Secondary(cCode string, price int64) string {
	if cCode == "" {
		cCode = DefaultCCode
	}
	if len(cCode) < 4 {
		cCode = strings.Repeat("0", 4-len(cCode)) + cCode
	}
	priceDigits := strconv.FormatInt(price, 10)
	if len(priceDigits) < 5 {
		priceDigits = strings.Repeat("0", 5-len(priceDigits)) + priceDigits
	}
	priceDigits = priceDigits[len(priceDigits)-5:]

	base := secondaryFlag + cCode + priceDigits
	check, err := CheckDigit(base)
	if err != nil {
		return ""
	}
	return base + strconv.Itoa(check)
}

// Instore builds a 13-digit in-store code (flag 201) for products without an
// assigned ISDN or JAN, deriving eight digits from an MD5 of the product id.
// The trailing base digit is reserved and always zero.
func Instore(productID string, _ int64) string {
	sum := md5.Sum([]byte(productID))
	hexDigits := hex.EncodeToString(sum[:])
	value, err := strconv.ParseUint(hexDigits[:8], 16, 64)
	if err != nil {
		return ""
	}
	productNum := fmt.Sprintf("%08d", value%100000000)

	base := instoreFlag + productNum + "0"
	check, cerr := CheckDigit(base)
	if cerr != nil {
		return ""
	}
	return base + strconv.Itoa(check)
}

// FormatISDNWithPrice renders the human-readable label line, e.g.
// "ISDN278-4-702901-97-8 C3055 ¥100E".
func FormatISDNWithPrice(isdn string, cCode string, price int64) string {
	if cCode == "" {
		cCode = DefaultCCode
	}
	return fmt.Sprintf("ISDN%s C%s ¥%dE", isdn, cCode, price)
}

// ValidateISDN checks the hyphenated form: five groups, flag 278 or 279,
// thirteen digits total, valid check digit.
func ValidateISDN(isdn string) bool {
	parts := strings.Split(isdn, "-")
	if len(parts) != 5 {
		return false
	}
	if parts[0] != "278" && parts[0] != "279" {
		return false
	}
	digits := strings.Join(parts, "")
	if len(digits) != 13 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	check, err := CheckDigit(digits[:12])
	if err != nil {
		return false
	}
	return check == int(digits[12]-'0')
}
