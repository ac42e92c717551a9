// Package validator checks ingest events before they are published or
// indexed, and returns per-field error details.
package validator

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion"
)

const (
	maxIDLength    = 255
	maxTitleLength = 1024
	maxBodyLength  = 1048576
)

// reservedFields are field names the indexer fills itself.
var reservedFields = map[string]struct{}{
	"id":    {},
	"title": {},
	"body":  {},
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestEvent checks the document id, the operation and the field
// sizes of ev and returns a ValidationError if any is wrong.
func ValidateIngestEvent(ev *ingestion.IngestEvent) error {
	errs := make(map[string]string)

	id := strings.TrimSpace(ev.DocumentID)
	if id == "" {
		errs["document_id"] = "document id is required"
	} else if len(id) > maxIDLength {
		errs["document_id"] = fmt.Sprintf("document id must be at most %d characters", maxIDLength)
	}

	switch ev.Operation() {
	case ingestion.OpDelete:
		if len(errs) > 0 {
			return &ValidationError{Fields: errs}
		}
		return nil
	case ingestion.OpUpsert:
	default:
		errs["op"] = fmt.Sprintf("unknown operation %q", ev.Op)
	}

	if len(ev.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if len(ev.Body) > maxBodyLength {
		errs["body"] = fmt.Sprintf("body must be at most %d characters", maxBodyLength)
	}
	if strings.TrimSpace(ev.Title) == "" && strings.TrimSpace(ev.Body) == "" && len(ev.Keywords) == 0 {
		errs["body"] = "title, body or keywords are required"
	}
	for _, fields := range []map[string]string{ev.Keywords, ev.Stored} {
		for name := range fields {
			if name == "" {
				errs["fields"] = "field names must not be empty"
			} else if _, ok := reservedFields[name]; ok {
				errs[name] = "field name is reserved"
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
