// Package serial validates product serial codes: structural pattern plus a
// Luhn-style checksum over the digit characters.
package serial

import (
	"regexp"
	"strings"

	"github.com/opensource-trust/kestrel/internal/domain"
)

// Serial shape: 3 uppercase letters, 4 digits, 6 digits, hyphen-separated.
// Checked against the full string, no partial matches.
var serialPattern = regexp.MustCompile(`^[A-Z]{3}-\d{4}-\d{6}$`)

// Validate normalizes a candidate serial and checks format and checksum.
// It never fails: arbitrary input always yields a populated SerialCheck.
func Validate(serial string) domain.SerialCheck {
	normalized := strings.ToUpper(strings.TrimSpace(serial))

	check := domain.SerialCheck{
		Normalized: normalized,
		FormatOK:   serialPattern.MatchString(normalized),
		ChecksumOK: luhnOK(normalized),
	}
	check.Valid = check.FormatOK && check.ChecksumOK
	return check
}

// luhnOK computes the Luhn-style checksum over the digit characters only,
// right to left, doubling every second digit. A string with no digits
// fails outright; an empty digit stream is not a passing sum.
func luhnOK(s string) bool {
	var digits []int
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits = append(digits, int(c-'0'))
		}
	}
	if len(digits) == 0 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		v := digits[i]
		if double {
			v *= 2
			if v > 9 {
				v -= 9
			}
		}
		sum += v
		double = !double
	}
	return sum%10 == 0
}
