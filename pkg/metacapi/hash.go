package metacapi

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/placaexpress/vehicle-report-backend/pkg/taxid"
)

const brazilCountryCode = "55"

// HashValue returns the lowercase hex SHA-256 of an already normalized value.
// Empty input yields an empty string so callers can drop the field.
func HashValue(normalized string) string {
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func HashEmail(email string) string {
	return HashValue(strings.ToLower(strings.TrimSpace(email)))
}

// HashPhone keeps digits only and prefixes the Brazil country code.
func HashPhone(phone string) string {
	digits := taxid.Digits(phone)
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, brazilCountryCode) || len(digits) <= 11 {
		digits = brazilCountryCode + digits
	}
	return HashValue(digits)
}

func HashName(name string) string {
	return HashValue(strings.ToLower(strings.TrimSpace(name)))
}

// SplitName returns the first and last tokens of a full name.
func SplitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}

// compact drops empty hashes.
func compact(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// BuyerUserData hashes the buyer identifiers the relay forwards.
func BuyerUserData(email, phone, cpf, fullName string) UserData {
	first, last := SplitName(fullName)
	return UserData{
		Emails:      compact(HashEmail(email)),
		Phones:      compact(HashPhone(phone)),
		ExternalIDs: compact(HashValue(taxid.Digits(cpf))),
		FirstNames:  compact(HashName(first)),
		LastNames:   compact(HashName(last)),
		Countries:   compact(HashValue("br")),
	}
}
