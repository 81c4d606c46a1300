package domain

// Index field names for product documents.
const (
	FieldID         = "id"
	FieldName       = "goodsname"
	FieldLabel      = "goodslabel"
	FieldPrice      = "goodsprice"
	FieldType1      = "goodstype1"
	FieldType2      = "goodstype2"
	FieldType3      = "goodstype3"
	FieldAttributes = "goodsattributes"
	FieldPic        = "goodspic"
)

// Product is a catalog product as stored in the search index.
type Product struct {
	ID         string   `json:"id"`
	Name       string   `json:"goodsname"`
	Label      string   `json:"goodslabel,omitempty"`
	Price      float64  `json:"goodsprice"`
	Type1      string   `json:"goodstype1,omitempty"`
	Type2      string   `json:"goodstype2,omitempty"`
	Type3      string   `json:"goodstype3,omitempty"`
	Attributes []string `json:"goodsattributes,omitempty"`
	Pic        string   `json:"goodspic,omitempty"`
}

// Category returns the product's category path.
func (p *Product) Category() Category {
	return Category{Type1: p.Type1, Type2: p.Type2, Type3: p.Type3}
}

// ProductFilter constrains a query-by-example search. Nil fields are not
// constrained; every non-nil field contributes one clause.
type ProductFilter struct {
	ID         *string
	Name       *string
	Label      *string
	Price      *float64
	Type1      *string
	Type2      *string
	Type3      *string
	Pic        *string
	Attributes []string
}

// Category is a three-level category path. An empty level is unset.
type Category struct {
	Type1 string `json:"goodstype1,omitempty"`
	Type2 string `json:"goodstype2,omitempty"`
	Type3 string `json:"goodstype3,omitempty"`
}

// PriceFilter narrows a category listing to an inclusive price range.
type PriceFilter struct {
	Category   Category
	Attributes []string
	MinPrice   float64
	MaxPrice   float64
}

// AttributeMap maps an attribute name to the values observed for it, in the
// order the engine reported them.
type AttributeMap map[string][]string
