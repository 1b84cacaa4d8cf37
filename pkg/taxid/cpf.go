// Package taxid validates Brazilian individual taxpayer ids (CPF).
package taxid

import (
	"strings"
)

const cpfLength = 11

// Digits strips everything but ASCII digits.
func Digits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidCPF reports whether value has 11 digits after stripping punctuation,
// both mod-11 check digits match and the digits are not all the same.
func ValidCPF(value string) bool {
	digits := Digits(value)
	if len(digits) != cpfLength {
		return false
	}
	if strings.Count(digits, digits[:1]) == cpfLength {
		return false
	}

	nums := make([]int, cpfLength)
	for i := range digits {
		nums[i] = int(digits[i] - '0')
	}
	return checkDigit(nums[:9]) == nums[9] && checkDigit(nums[:10]) == nums[10]
}

// NormalizeCPF returns the 11 digits of a valid CPF.
func NormalizeCPF(value string) (string, bool) {
	if !ValidCPF(value) {
		return "", false
	}
	return Digits(value), true
}

// FormatCPF renders 11 digits as 000.000.000-00. Other inputs are returned unchanged.
func FormatCPF(value string) string {
	d := Digits(value)
	if len(d) != cpfLength {
		return value
	}
	return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
}

func checkDigit(prefix []int) int {
	weight := len(prefix) + 1
	sum := 0
	for _, n := range prefix {
		sum += n * weight
		weight--
	}
	rem := (sum * 10) % 11
	if rem == 10 {
		return 0
	}
	return rem
}
