package boundary

import (
	"fmt"
)

// FieldKind constrains a frontmatter value's type.
type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldNumber FieldKind = "number"
	FieldBool   FieldKind = "bool"
	FieldList   FieldKind = "list"
)

// FrontmatterSchema validates a document type's frontmatter blob at the
// boundary. Downstream the blob is opaque; this is the only place its shape
// is checked.
type FrontmatterSchema struct {
	// Required fields must be present.
	Required []string

	// Fields maps known field names to their kinds. Unknown fields are
	// rejected when Strict.
	Fields map[string]FieldKind

	// Strict rejects fields not listed in Fields.
	Strict bool
}

// defaultSchemas covers the built-in document types. Unlisted doc types get
// an unvalidated opaque blob.
var defaultSchemas = map[string]FrontmatterSchema{
	"decision": {
		Required: []string{"status"},
		Fields: map[string]FieldKind{
			"status":     FieldString,
			"deciders":   FieldList,
			"supersedes": FieldString,
			"date":       FieldString,
		},
		Strict: true,
	},
	"problem": {
		Fields: map[string]FieldKind{
			"severity": FieldString,
			"resolved": FieldBool,
			"tags":     FieldList,
		},
		Strict: true,
	},
	"style": {
		Fields: map[string]FieldKind{
			"scope":    FieldString,
			"enforced": FieldBool,
		},
		Strict: true,
	},
}

// ValidateFrontmatter checks a frontmatter blob against the schema for its
// document type.
func ValidateFrontmatter(docType string, fm map[string]any) error {
	schema, ok := defaultSchemas[docType]
	if !ok {
		return nil
	}
	for _, field := range schema.Required {
		if _, present := fm[field]; !present {
			return fmt.Errorf("frontmatter for %s requires field %q", docType, field)
		}
	}
	for name, value := range fm {
		kind, known := schema.Fields[name]
		if !known {
			if schema.Strict {
				return fmt.Errorf("frontmatter for %s has unknown field %q", docType, name)
			}
			continue
		}
		if err := checkKind(name, value, kind); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(name string, value any, kind FieldKind) error {
	switch kind {
	case FieldString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("frontmatter field %q must be a string", name)
		}
	case FieldNumber:
		switch value.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("frontmatter field %q must be a number", name)
		}
	case FieldBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("frontmatter field %q must be a boolean", name)
		}
	case FieldList:
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				if _, ok := item.(string); !ok {
					return fmt.Errorf("frontmatter field %q must be a list of strings", name)
				}
			}
		case []string:
		default:
			return fmt.Errorf("frontmatter field %q must be a list", name)
		}
	}
	return nil
}
