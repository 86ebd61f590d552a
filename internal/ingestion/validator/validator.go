// Package validator checks documents before they reach the index. It
// enforces field name and value constraints and returns per-field error
// details.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

const (
	MaxFields          = 1024
	MaxFieldNameLength = 255
	MaxFieldValueBytes = 1 << 20
)

// ValidateDocument rejects documents the index cannot store: no fields,
// empty or oversized field names, names containing ':' or whitespace (they
// could never be addressed by a field query), unknown kinds and oversized
// values. Field values themselves may be any bytes.
func ValidateDocument(doc document.Document) error {
	errs := make(map[string]string)
	if len(doc.Fields) == 0 {
		errs["fields"] = "document must have at least one field"
	} else if len(doc.Fields) > MaxFields {
		errs["fields"] = fmt.Sprintf("document must have at most %d fields", MaxFields)
	}
	for i, f := range doc.Fields {
		key := fmt.Sprintf("fields[%d]", i)
		switch {
		case strings.TrimSpace(f.Name) == "":
			errs[key] = "field name is required"
		case len(f.Name) > MaxFieldNameLength:
			errs[key] = fmt.Sprintf("field name must be at most %d bytes", MaxFieldNameLength)
		case !utf8.ValidString(f.Name):
			errs[key] = "field name must be valid UTF-8"
		case strings.ContainsAny(f.Name, ": \t\r\n\"()"):
			errs[key] = fmt.Sprintf("field name %q contains a reserved character", f.Name)
		case f.Kind != document.KindText && f.Kind != document.KindStoredText:
			errs[key] = fmt.Sprintf("field %q has unknown kind %d", f.Name, f.Kind)
		case len(f.Value) > MaxFieldValueBytes:
			errs[key] = fmt.Sprintf("field %q must be at most %d bytes", f.Name, MaxFieldValueBytes)
		}
	}
	if len(errs) > 0 {
		return &apperrors.ValidationError{Fields: errs}
	}
	return nil
}
