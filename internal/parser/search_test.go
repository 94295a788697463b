package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSearchCards(t *testing.T) {
	extractor, _ := newTestExtractor()

	html := searchPage(
		searchGrid(
			tile{name: "Кружка", href: "/product/kruzhka-101/?at=abc", price: "450 ₽"},
		),
		searchGrid(
			tile{name: "Тарелка", href: "/product/tarelka-202/?at=def", price: "1 200 ₽"},
			tile{name: "Ложка", href: "/product/lozhka-303/", price: "99 ₽"},
		)+searchGrid(
			tile{name: "Вилка", href: "/product/vilka-404/?at=ghi", price: "120 ₽"},
		),
	)

	result, err := extractor.ExtractSearchCards(html)
	require.NoError(t, err)
	require.Len(t, result.Layers, 3)

	assert.Equal(t, []string{"101", "202", "303", "404"}, result.ProductIDs())

	first := result.Layers[0][0]
	assert.Equal(t, "Кружка", first.Name)
	assert.Equal(t, "450₽", first.Price)
	assert.Equal(t, "https://ozon.ru/product/kruzhka-101/?at=abc", first.URL)

	assert.Equal(t, "1200₽", result.Layers[1][0].Price)
}

func TestExtractSearchCards_SkipsBrokenItem(t *testing.T) {
	extractor, logs := newTestExtractor()

	html := searchPage(searchGrid(
		tile{name: "Кружка", href: "/product/kruzhka-101/", price: "450 ₽"},
		tile{name: "Без цены", href: "/product/bez-ceny-102/"},
		tile{name: "Стакан", href: "/product/stakan-103/", price: "300 ₽"},
	))

	result, err := extractor.ExtractSearchCards(html)
	require.NoError(t, err)
	require.Len(t, result.Layers, 1)
	assert.Len(t, result.Layers[0], 2)
	assert.Equal(t, []string{"101", "103"}, result.ProductIDs())

	assert.Equal(t, 1, strings.Count(logs.String(), `"level":"CRITICAL"`))
	assert.Contains(t, logs.String(), "Error processing card")
}

func TestExtractSearchCards_KeepsPriceWithoutDigits(t *testing.T) {
	extractor, logs := newTestExtractor()

	html := searchPage(searchGrid(
		tile{name: "Кружка", href: "/product/kruzhka-101/", price: "450 ₽"},
		tile{name: "Стакан", href: "/product/stakan-102/", price: "Нет в наличии"},
	))

	result, err := extractor.ExtractSearchCards(html)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102"}, result.ProductIDs())

	out := result.Layers[0][1]
	assert.Equal(t, "Стакан", out.Name)
	assert.Empty(t, out.Price)
	assert.Equal(t, "https://ozon.ru/product/stakan-102/", out.URL)

	assert.NotContains(t, logs.String(), "CRITICAL")
}

func TestExtractSearchCards_MissingID(t *testing.T) {
	extractor, logs := newTestExtractor()

	html := searchPage(searchGrid(
		tile{name: "Без ссылки", href: "/promo/", price: "10 ₽"},
	))

	result, err := extractor.ExtractSearchCards(html)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalItems())
	assert.Contains(t, logs.String(), "productID")
}

func TestExtractSearchCards_NoPaginatedSection(t *testing.T) {
	extractor, logs := newTestExtractor()

	html := searchPage(searchGrid(
		tile{name: "Кружка", href: "/product/kruzhka-101/", price: "450 ₽"},
	))

	result, err := extractor.ExtractSearchCards(html)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalItems())
	assert.Contains(t, logs.String(), "no paginated section")
}

func TestExtractSearchCards_NoPaginator(t *testing.T) {
	extractor, _ := newTestExtractor()

	_, err := extractor.ExtractSearchCards(`<div class="container c"><div>nothing</div></div>`)
	require.Error(t, err)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "scrollPaginator", stepErr.Step)
}

func TestExtractSearchCards_MissingContainer(t *testing.T) {
	extractor, _ := newTestExtractor()

	_, err := extractor.ExtractSearchCards(`<html><body></body></html>`)
	assert.ErrorIs(t, err, ErrContentNotFound)
}
