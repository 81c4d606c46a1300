// Package mapper converts between engine documents and catalog products.
package mapper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// ApplyHighlights returns docs with field replaced by the first highlighted
// fragment wherever the engine produced one. Documents without a fragment
// are returned as-is; the input documents are never modified.
func ApplyHighlights(docs []domain.Document, hl domain.Highlighting, field string) []domain.Document {
	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		frags := hl.Fragments(doc.ID(), field)
		if len(frags) == 0 {
			out = append(out, doc)
			continue
		}
		cp := doc.Clone()
		cp[field] = frags[0]
		out = append(out, cp)
	}
	return out
}

// ToProducts converts every document. The first failure aborts the batch.
func ToProducts(docs []domain.Document) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(docs))
	for i, doc := range docs {
		p, err := ToProduct(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		products = append(products, *p)
	}
	return products, nil
}

// ToProduct assigns each document field to the matching Product field.
// Unknown fields and type mismatches are errors.
func ToProduct(doc domain.Document) (*domain.Product, error) {
	p := &domain.Product{}
	for field, raw := range doc {
		if isEngineField(field) {
			continue
		}

		var err error
		switch field {
		case domain.FieldID:
			p.ID, err = asID(raw)
		case domain.FieldName:
			p.Name, err = asString(raw)
		case domain.FieldLabel:
			p.Label, err = asString(raw)
		case domain.FieldPrice:
			p.Price, err = asFloat(raw)
		case domain.FieldType1:
			p.Type1, err = asString(raw)
		case domain.FieldType2:
			p.Type2, err = asString(raw)
		case domain.FieldType3:
			p.Type3, err = asString(raw)
		case domain.FieldPic:
			p.Pic, err = asString(raw)
		case domain.FieldAttributes:
			p.Attributes, err = asStrings(raw)
		default:
			return nil, fmt.Errorf("%w: product has no field %q", domain.ErrDocumentMapping, field)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", domain.ErrDocumentMapping, field, err)
		}
	}

	if p.ID == "" {
		return nil, fmt.Errorf("%w: missing %q", domain.ErrDocumentMapping, domain.FieldID)
	}
	return p, nil
}

// FromProduct builds the index document for p. Empty optional fields are
// left out.
func FromProduct(p *domain.Product) domain.Document {
	doc := domain.Document{
		domain.FieldID:    p.ID,
		domain.FieldName:  p.Name,
		domain.FieldPrice: p.Price,
	}
	setIfNotEmpty(doc, domain.FieldLabel, p.Label)
	setIfNotEmpty(doc, domain.FieldType1, p.Type1)
	setIfNotEmpty(doc, domain.FieldType2, p.Type2)
	setIfNotEmpty(doc, domain.FieldType3, p.Type3)
	setIfNotEmpty(doc, domain.FieldPic, p.Pic)
	if len(p.Attributes) > 0 {
		attrs := make([]string, len(p.Attributes))
		copy(attrs, p.Attributes)
		doc[domain.FieldAttributes] = attrs
	}
	return doc
}

func setIfNotEmpty(doc domain.Document, field, v string) {
	if v != "" {
		doc[field] = v
	}
}

// isEngineField reports bookkeeping fields the engine adds to every document.
func isEngineField(field string) bool {
	return field == "score" || strings.HasPrefix(field, "_")
}

func asID(v any) (string, error) {
	id, ok := domain.FormatID(v)
	if !ok {
		return "", fmt.Errorf("expected string or number, got %T", v)
	}
	return id, nil
}

func asString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []any:
		// Multi-valued text fields come back as single-element lists.
		if len(t) == 1 {
			return asString(t[0])
		}
		return "", fmt.Errorf("expected single value, got %d", len(t))
	case []string:
		if len(t) == 1 {
			return t[0], nil
		}
		return "", fmt.Errorf("expected single value, got %d", len(t))
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func asFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(t, 64)
	case []any:
		if len(t) == 1 {
			return asFloat(t[0])
		}
		return 0, fmt.Errorf("expected single value, got %d", len(t))
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func asStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{t}, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", v)
	}
}
