package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selection(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc.Find("#root")
}

func TestStepError(t *testing.T) {
	err := stepErr("itemName", "no %s", nameSelector)

	assert.Equal(t, "step itemName: element not found: no span.tsBody500Medium", err.Error())
	assert.True(t, errors.Is(err, ErrElementNotFound))

	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "itemName", se.Step)
}

func TestNestedFirstDiv(t *testing.T) {
	root := selection(t, `<div id="root"><div class="a"><div class="b"><span>x</span></div></div></div>`)

	sel, err := nestedFirstDiv(root, 2)
	require.NoError(t, err)
	assert.True(t, sel.HasClass("b"))

	_, err = nestedFirstDiv(root, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth 3 of 3")
}

func TestNthStyledDiv(t *testing.T) {
	root := selection(t, `<div id="root"><div style="a" class="one"></div><div><div style="b" class="two"></div></div></div>`)

	sel, err := nthStyledDiv(root, 1)
	require.NoError(t, err)
	assert.True(t, sel.HasClass("two"))

	_, err = nthStyledDiv(root, 2)
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestLastIslandChild(t *testing.T) {
	root := selection(t, `<div id="root">
		<div class="a" data-state="island-1"></div>
		<div class="b"></div>
		<div class="c"><div data-x="island-2"></div></div>
	</div>`)

	sel, err := lastIslandChild(root)
	require.NoError(t, err)
	assert.True(t, sel.HasClass("c"))
}

func TestLastChildFirstDiv(t *testing.T) {
	root := selection(t, `<div id="root"><div></div><section><p></p></section></div>`)

	_, err := lastChildFirstDiv(root)
	require.Error(t, err)

	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "lastChildFirstDiv", se.Step)
}

func TestPaginatorSection(t *testing.T) {
	root := selection(t, `<div id="root"><div class="fixed"></div></div>`)

	sel, err := paginatorSection(root, 0)
	require.NoError(t, err)
	assert.True(t, sel.HasClass("fixed"))

	_, err = paginatorSection(root, 1)
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestItemPrice(t *testing.T) {
	root := selection(t, `<div id="root"><span class="a1 tsHeadline500Medium b2">1 990 ₽<span>old</span></span></div>`)

	price, err := itemPrice(root)
	require.NoError(t, err)
	assert.Equal(t, "1 990 ₽", price)
}

func TestItemName_Empty(t *testing.T) {
	root := selection(t, `<div id="root"><span class="tsBody500Medium"></span></div>`)

	_, err := itemName(root)
	assert.ErrorIs(t, err, ErrElementNotFound)
}
