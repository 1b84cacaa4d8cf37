package validators

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
)

// ParseOptionalUUID returns uuid.Nil for an empty value.
func ParseOptionalUUID(field, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid id").WithDetails(map[string]any{"field": field})
	}
	return id, nil
}
