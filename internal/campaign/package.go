package campaign

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError reports locally recoverable input or response problems:
// a missing required field, or a planner response missing required keys.
type ValidationError struct {
	Message string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Missing, ", "))
	}
	return e.Message
}

// NewValidationError builds a field-level validation error.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// requiredPackageKeys are the top-level keys every recommendation response
// must carry. A response missing any of them is rejected wholesale.
var requiredPackageKeys = []string{
	"recommendedPlatforms",
	"notRecommendedPlatforms",
	"keywords",
	"competitors",
	"strategyTips",
	"localContext",
}

// ParsePackage decodes and validates a recommendation response. The
// original bytes are retained on the returned Package so callers can
// persist and forward the response without losing unmodelled fields.
func ParsePackage(data []byte) (*Package, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("decode recommendation: %w", err)
	}

	var missing []string
	for _, key := range requiredPackageKeys {
		if _, ok := keys[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Message: "incomplete recommendation response", Missing: missing}
	}

	var pkg Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("decode recommendation: %w", err)
	}
	pkg.Raw = json.RawMessage(append([]byte(nil), data...))
	return &pkg, nil
}
