package validation

import (
	"fmt"
	"strings"
)

// Rules maps a collection name to the record fields it requires. The
// store installs rules derived from its schema table at init; the
// required set for an indexed collection is the key field plus every
// scalar index field, so index entries can always be built.
type Rules struct {
	Required map[string][]string
}

var rules Rules

func SetRules(r Rules) { rules = r }

// RequiredFields returns the required field names for a collection.
func RequiredFields(collection string) []string {
	return rules.Required[collection]
}

// ValidateRecord checks the presence and basic shape of required
// fields. A required field must exist, and must not be an empty string
// or null.
func ValidateRecord(collection string, rec map[string]interface{}) error {
	var errs []string
	for _, f := range rules.Required[collection] {
		v, ok := rec[f]
		if !ok || v == nil {
			errs = append(errs, fmt.Sprintf("required field missing: %s", f))
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			errs = append(errs, fmt.Sprintf("required field empty: %s", f))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
