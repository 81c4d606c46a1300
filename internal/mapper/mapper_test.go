package mapper

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
)

func TestApplyHighlights_ReplacesName(t *testing.T) {
	docs := []domain.Document{{"id": "1", "goodsname": "foo"}}
	hl := domain.Highlighting{"1": {"goodsname": {"<em>foo</em>"}}}

	out := ApplyHighlights(docs, hl, domain.FieldName)
	products, err := ToProducts(out)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "<em>foo</em>", products[0].Name)

	// The input document is left untouched.
	assert.Equal(t, "foo", docs[0]["goodsname"])
}

func TestApplyHighlights_NumericID(t *testing.T) {
	var docs []domain.Document
	require.NoError(t, json.Unmarshal([]byte(`[{"id":1,"goodsname":"foo"}]`), &docs))
	var hl domain.Highlighting
	require.NoError(t, json.Unmarshal([]byte(`{"1":{"goodsname":["<em>foo</em>"]}}`), &hl))

	out := ApplyHighlights(docs, hl, domain.FieldName)
	require.Len(t, out, 1)
	assert.Equal(t, "<em>foo</em>", out[0]["goodsname"])

	products, err := ToProducts(out)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "1", products[0].ID)
	assert.Equal(t, "<em>foo</em>", products[0].Name)
}

func TestToProduct_IDForms(t *testing.T) {
	tests := []struct {
		name string
		id   any
		want string
	}{
		{name: "string", id: "p-1", want: "p-1"},
		{name: "float", id: float64(42), want: "42"},
		{name: "large float", id: float64(1234567890123), want: "1234567890123"},
		{name: "int64", id: int64(7), want: "7"},
		{name: "json number", id: json.Number("99"), want: "99"},
		{name: "single element list", id: []any{float64(5)}, want: "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := domain.Document{"id": tt.id, "goodsname": "x"}
			assert.Equal(t, tt.want, doc.ID())

			p, err := ToProduct(doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ID)
		})
	}

	_, err := ToProduct(domain.Document{"id": true})
	assert.ErrorIs(t, err, domain.ErrDocumentMapping)
}

func TestApplyHighlights_LeavesOthersUnchanged(t *testing.T) {
	docs := []domain.Document{
		{"id": "1", "goodsname": "red phone"},
		{"id": "2", "goodsname": "blue phone"},
		{"id": "3", "goodsname": "green phone"},
	}
	hl := domain.Highlighting{
		"1": {"goodsname": {"<b>red</b> phone", "second"}},
		"2": {"goodslabel": {"<b>blue</b>"}},
	}

	out := ApplyHighlights(docs, hl, domain.FieldName)
	require.Len(t, out, 3)
	assert.Equal(t, "<b>red</b> phone", out[0]["goodsname"])
	assert.Equal(t, "blue phone", out[1]["goodsname"])
	assert.Equal(t, "green phone", out[2]["goodsname"])
}

func TestApplyHighlights_NilHighlighting(t *testing.T) {
	docs := []domain.Document{{"id": "1", "goodsname": "foo"}}
	out := ApplyHighlights(docs, nil, domain.FieldName)
	assert.Equal(t, docs, out)
}

func TestToProduct_AllFields(t *testing.T) {
	var doc domain.Document
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "p-1",
		"goodsname": ["Phone"],
		"goodslabel": "sale",
		"goodsprice": 199.5,
		"goodstype1": "electronics",
		"goodstype2": "mobile",
		"goodstype3": "phones",
		"goodsattributes": ["color_red", "storage_64GB"],
		"goodspic": "img/p1.jpg",
		"_version_": 1790000000000000000,
		"score": 1.2
	}`), &doc))

	p, err := ToProduct(doc)
	require.NoError(t, err)
	assert.Equal(t, &domain.Product{
		ID:         "p-1",
		Name:       "Phone",
		Label:      "sale",
		Price:      199.5,
		Type1:      "electronics",
		Type2:      "mobile",
		Type3:      "phones",
		Attributes: []string{"color_red", "storage_64GB"},
		Pic:        "img/p1.jpg",
	}, p)
}

func TestToProduct_UnknownFieldFails(t *testing.T) {
	_, err := ToProduct(domain.Document{"id": "1", "goodscolor": "red"})
	assert.ErrorIs(t, err, domain.ErrDocumentMapping)
	assert.Contains(t, err.Error(), "goodscolor")
}

func TestToProduct_TypeMismatchFails(t *testing.T) {
	_, err := ToProduct(domain.Document{"id": "1", "goodsprice": true})
	assert.ErrorIs(t, err, domain.ErrDocumentMapping)

	_, err = ToProduct(domain.Document{"id": "1", "goodsattributes": []any{"a_b", 3.0}})
	assert.ErrorIs(t, err, domain.ErrDocumentMapping)
}

func TestToProduct_MissingIDFails(t *testing.T) {
	_, err := ToProduct(domain.Document{"goodsname": "x"})
	assert.ErrorIs(t, err, domain.ErrDocumentMapping)
}

func TestToProducts_FailsFast(t *testing.T) {
	docs := []domain.Document{
		{"id": "1", "goodsname": "ok"},
		{"id": "2", "bogus": "x"},
		{"id": "3", "goodsname": "never reached"},
	}
	products, err := ToProducts(docs)
	assert.Nil(t, products)
	assert.ErrorIs(t, err, domain.ErrDocumentMapping)
	assert.Contains(t, err.Error(), "document 1")
}

func TestFromProduct_RoundTrip(t *testing.T) {
	in := &domain.Product{
		ID:         "p-9",
		Name:       "Kettle",
		Price:      25,
		Type1:      "home",
		Type2:      "kitchen",
		Attributes: []string{"color_white"},
	}

	doc := FromProduct(in)
	assert.NotContains(t, doc, domain.FieldLabel)
	assert.NotContains(t, doc, domain.FieldType3)

	out, err := ToProduct(doc)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
