package platequery

import (
	"regexp"
	"strings"

	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)
	legacyPlate     = regexp.MustCompile(`^[A-Z]{3}[0-9]{4}$`)
	mercosulPlate   = regexp.MustCompile(`^[A-Z]{3}[0-9][A-Z][0-9]{2}$`)
)

const invalidPlateMessage = "Placa inválida. Use o formato ABC1234 ou ABC1D23."

// Normalize strips punctuation, uppercases and validates a plate against the
// legacy (AAA9999) and Mercosul (AAA9A99) layouts.
func Normalize(raw string) (string, error) {
	plate := strings.ToUpper(nonAlphanumeric.ReplaceAllString(raw, ""))
	if legacyPlate.MatchString(plate) || mercosulPlate.MatchString(plate) {
		return plate, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeInvalidPlateFormat, invalidPlateMessage).
		WithDetails(map[string]any{"placa": raw})
}

// IsMercosul reports whether a normalized plate uses the Mercosul layout.
func IsMercosul(plate string) bool {
	return mercosulPlate.MatchString(plate)
}
