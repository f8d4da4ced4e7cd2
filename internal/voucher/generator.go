package voucher

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Alphabet leaves out 0, O, 1, I and L so a code read over a counter or
// typed on a phone keypad cannot be misheard or mistyped.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	// DefaultLength is the raw code length used for references and
	// pre-generated batches.
	DefaultLength = 5

	// Voucher codes handed to customers are 12 alphabet characters in
	// three hyphenated groups, e.g. QX4M-7TRA-92WG.
	groupSize  = 4
	groupCount = 3
	codeLength = groupSize * groupCount
)

var codePattern = regexp.MustCompile(`^[A-HJKMNP-Z2-9]{4}-[A-HJKMNP-Z2-9]{4}-[A-HJKMNP-Z2-9]{4}$`)

var alphabetLen = big.NewInt(int64(len(Alphabet)))

// Generate returns length random characters from Alphabet using
// crypto/rand. Codes grant network access, so predictability is a
// security problem, not a cosmetic one.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("voucher: read random: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}

	return b.String(), nil
}

// GenerateBulk returns exactly count distinct codes. Collisions are rare
// enough at this alphabet size that looping until the set is full is the
// whole strategy; the store's unique index is the real guarantee.
func GenerateBulk(count, length int) ([]string, error) {
	codes := make(map[string]struct{}, count)

	for len(codes) < count {
		code, err := Generate(length)
		if err != nil {
			return nil, err
		}
		codes[code] = struct{}{}
	}

	out := make([]string, 0, count)
	for code := range codes {
		out = append(out, code)
	}
	return out, nil
}

// NewVoucherCode returns a code in the canonical customer-facing form:
// 12 alphabet characters grouped as XXXX-XXXX-XXXX. This is the format
// stored in the ledger, pushed to the access controller and printed on
// receipts.
func NewVoucherCode() (string, error) {
	raw, err := Generate(codeLength)
	if err != nil {
		return "", err
	}

	groups := make([]string, 0, groupCount)
	for i := 0; i < codeLength; i += groupSize {
		groups = append(groups, raw[i:i+groupSize])
	}
	return strings.Join(groups, "-"), nil
}

// IsValidFormat reports whether code is in the canonical grouped form.
func IsValidFormat(code string) bool {
	return codePattern.MatchString(code)
}
