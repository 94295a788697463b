package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCatalogCards(t *testing.T) {
	extractor, _ := newTestExtractor()

	html := catalogPage(
		catalogLayer(
			tile{name: "Чайник", href: "/product/chaynik-111/", price: "2 490 ₽"},
			tile{name: "Тостер", href: "/product/toster-222/", price: "3 100 ₽"},
		),
		catalogLayer(
			tile{name: "Лампа", href: "https://www.ozon.ru/product/lampa-333/", price: "990 ₽"},
		),
	)

	result, err := extractor.ExtractCatalogCards(html)
	require.NoError(t, err)
	require.Len(t, result.Layers, 2)
	assert.Equal(t, 3, result.TotalItems())

	first := result.Layers[0][0]
	assert.Equal(t, "Чайник", first.Name)
	assert.Equal(t, "2490₽", first.Price)
	assert.Equal(t, "111", first.ProductID)
	assert.Equal(t, "https://ozon.ru/product/chaynik-111/", first.URL)

	assert.Equal(t, "3100₽", result.Layers[0][1].Price)
	assert.Equal(t, "https://www.ozon.ru/product/lampa-333/", result.Layers[1][0].URL)
	assert.Empty(t, result.Validate())
}

func TestExtractCatalogCards_LayerOrder(t *testing.T) {
	extractor, _ := newTestExtractor()

	html := catalogPage(
		catalogLayer(tile{name: "A", href: "/product/a-1/", price: "1 ₽"}),
		catalogLayer(tile{name: "B", href: "/product/b-2/", price: "2 ₽"}),
		catalogLayer(tile{name: "C", href: "/product/c-3/", price: "3 ₽"}),
	)

	result, err := extractor.ExtractCatalogCards(html)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, result.ProductIDs())
}

func TestExtractCatalogCards_MissingContainer(t *testing.T) {
	extractor, _ := newTestExtractor()

	_, err := extractor.ExtractCatalogCards(`<html><body><div class="container">empty</div></body></html>`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentNotFound))

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "contentRoot", stepErr.Step)
}

func TestExtractCatalogCards_ItemFailureAborts(t *testing.T) {
	extractor, _ := newTestExtractor()

	html := catalogPage(
		catalogLayer(
			tile{name: "Чайник", href: "/product/chaynik-111/", price: "2 490 ₽"},
			tile{name: "Без цены", href: "/product/bez-ceny-222/"},
		),
	)

	result, err := extractor.ExtractCatalogCards(html)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrElementNotFound))
	assert.Contains(t, err.Error(), "layer 0 position 1")
}

func TestExtractCatalogCards_MissingIsland(t *testing.T) {
	extractor, _ := newTestExtractor()

	html := `<div class="container c"><div><div><div>no markers here</div></div></div></div>`

	_, err := extractor.ExtractCatalogCards(html)
	require.Error(t, err)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "lastIslandChild", stepErr.Step)
}

func TestProductURL(t *testing.T) {
	extractor, _ := newTestExtractor()

	tests := []struct {
		href     string
		expected string
	}{
		{"/product/x-1/", "https://ozon.ru/product/x-1/"},
		{"product/x-1/", "https://ozon.ru/product/x-1/"},
		{" /product/x-1/ ", "https://ozon.ru/product/x-1/"},
		{"https://www.ozon.ru/product/x-1/", "https://www.ozon.ru/product/x-1/"},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractor.productURL(tt.href))
		})
	}
}
