package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleResult() *ExtractionResult {
	r := NewExtractionResult()
	r.AddLayer(Layer{
		{Name: "Чайник", Price: "1990₽", ProductID: "111", URL: "https://ozon.ru/product/chaynik-111/"},
		{Name: "Кружка", Price: "", ProductID: "", URL: "https://ozon.ru/product/kruzhka/"},
	})
	r.AddLayer(nil)
	r.AddLayer(Layer{
		{Name: "Ложка", Price: "99₽", ProductID: "333", URL: "https://ozon.ru/product/lozhka-333/"},
	})
	return r
}

func TestExtractionResultCounts(t *testing.T) {
	r := sampleResult()

	assert.Len(t, r.Layers, 3)
	assert.Equal(t, 3, r.TotalItems())
	assert.Equal(t, []string{"111", "333"}, r.ProductIDs())
	assert.Equal(t, "Ложка", r.Cards()[2].Name)
	assert.Empty(t, r.Validate())
}

func TestValidateFlagsMissingURL(t *testing.T) {
	r := NewExtractionResult()
	r.AddLayer(Layer{{Name: "x"}})

	errs := r.Validate()
	assert.Equal(t, []string{"layer_0_product_0: url is required"}, errs)
}

func TestCompositeIDsAreUnique(t *testing.T) {
	r := sampleResult()
	r.AddLayer(Layer{{URL: "a"}, {URL: "b"}, {URL: "c"}})

	seen := make(map[string]bool)
	for i, layer := range r.Layers {
		for j := range layer {
			id := CompositeID(i, j)
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, r.TotalItems())
}

func TestDescription(t *testing.T) {
	c := ProductCard{Name: "Чайник", Price: "1990₽", URL: "https://ozon.ru/p/1/"}
	assert.Equal(t, "Чайник, 1990₽, https://ozon.ru/p/1/", c.Description())
}
