// Package seed fills a catalog with generated products through the admin
// API. Generation is deterministic so re-running a seed overwrites the same
// documents instead of adding new ones.
package seed

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// namespace scopes the name-based product IDs.
var namespace = uuid.MustParse("6f1c7f52-3b0a-4d3e-9a51-0c6d2f1e8b47")

type category struct {
	type1, type2 string
	type3        []string
	nouns        []string
}

var categories = []category{
	{"electronics", "mobile", []string{"phones", "chargers", "cases"}, []string{"Phone", "Charger", "Case"}},
	{"electronics", "audio", []string{"headphones", "speakers"}, []string{"Headphones", "Speaker"}},
	{"home", "kitchen", []string{"kettles", "cookware", "knives"}, []string{"Kettle", "Pan", "Knife"}},
	{"home", "textiles", []string{"towels", "bedding"}, []string{"Towel", "Duvet Cover"}},
	{"fashion", "women", []string{"dresses", "scarves", "coats"}, []string{"Dress", "Scarf", "Coat"}},
	{"fashion", "men", []string{"shirts", "trousers"}, []string{"Shirt", "Trousers"}},
}

var (
	colors    = []string{"red", "blue", "black", "white", "green", "beige"}
	sizes     = []string{"s", "m", "l", "xl"}
	materials = []string{"cotton", "steel", "plastic", "wool", "leather"}
	brands    = []string{"Refka", "Alia", "Tuva", "Nihan", "Benin"}
	labels    = []string{"", "new", "bestseller", "sale"}
)

// ProductID returns the stable ID of the i-th generated product.
func ProductID(i int) string {
	return uuid.NewSHA1(namespace, fmt.Appendf(nil, "product:%d", i)).String()
}

// Products generates n products. The same seed always yields the same list.
func Products(n int, seed uint64) []domain.Product {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]domain.Product, 0, n)
	for i := 0; i < n; i++ {
		c := categories[rng.IntN(len(categories))]
		k := rng.IntN(len(c.type3))
		color := pick(rng, colors)
		brand := pick(rng, brands)

		attrs := []string{"color_" + color, "brand_" + brand}
		if c.type1 == "fashion" || c.type2 == "textiles" {
			attrs = append(attrs, "size_"+pick(rng, sizes))
		}
		if rng.IntN(2) == 0 {
			attrs = append(attrs, "material_"+pick(rng, materials))
		}

		id := ProductID(i)
		out = append(out, domain.Product{
			ID:         id,
			Name:       fmt.Sprintf("%s %s %s", brand, color, c.nouns[k%len(c.nouns)]),
			Label:      pick(rng, labels),
			Price:      float64(rng.IntN(99900)+100) / 100,
			Type1:      c.type1,
			Type2:      c.type2,
			Type3:      c.type3[k],
			Attributes: attrs,
			Pic:        fmt.Sprintf("https://cdn.example.com/catalog/%s.jpg", id[:8]),
		})
	}
	return out
}

func pick(rng *rand.Rand, from []string) string {
	return from[rng.IntN(len(from))]
}
