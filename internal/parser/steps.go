package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrContentNotFound = errors.New("content container not found")
	ErrElementNotFound = errors.New("element not found")
)

// StepError names the traversal step that stopped matching the page.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step, format string, args ...any) error {
	return &StepError{Step: step, Err: fmt.Errorf("%w: "+format, append([]any{ErrElementNotFound}, args...)...)}
}

// Selectors the loader can wait on before a page is parsed.
const (
	ContentSelector  = "div.container.c"
	TileGridSelector = `[data-widget="tileGridDesktop"]`
	PayloadSelector  = "pre"
)

const (
	paginatorSelector = "#contentScrollPaginator"
	nameSelector      = "span.tsBody500Medium"
	linkSelector      = "a[href]"
	islandMarker      = "island"
)

// The price span carries generated suffixes next to this class.
var priceClass = regexp.MustCompile(`tsHeadline500Medium`)

// contentRoot requires the page-wide content container. Without it the page
// did not render and nothing below can be trusted.
func contentRoot(doc *goquery.Document) (*goquery.Selection, error) {
	root := doc.Find(ContentSelector).First()
	if root.Length() == 0 {
		return nil, &StepError{Step: "contentRoot", Err: ErrContentNotFound}
	}
	return root, nil
}

// lastChildFirstDiv requires at least one child whose subtree holds a div.
func lastChildFirstDiv(sel *goquery.Selection) (*goquery.Selection, error) {
	children := sel.Children()
	if children.Length() == 0 {
		return nil, stepErr("lastChildFirstDiv", "no children")
	}

	div := children.Last().Find("div").First()
	if div.Length() == 0 {
		return nil, stepErr("lastChildFirstDiv", "last child has no div")
	}
	return div, nil
}

// lastIslandChild requires a direct child whose markup mentions the island
// marker; the last such child wins.
func lastIslandChild(sel *goquery.Selection) (*goquery.Selection, error) {
	islands := sel.Children().FilterFunction(func(_ int, s *goquery.Selection) bool {
		html, err := goquery.OuterHtml(s)
		return err == nil && strings.Contains(html, islandMarker)
	})
	if islands.Length() == 0 {
		return nil, stepErr("lastIslandChild", "no child mentions %q", islandMarker)
	}
	return islands.Last(), nil
}

// nestedFirstDiv descends depth times into the first descendant div.
func nestedFirstDiv(sel *goquery.Selection, depth int) (*goquery.Selection, error) {
	for i := 0; i < depth; i++ {
		sel = sel.Find("div").First()
		if sel.Length() == 0 {
			return nil, stepErr("nestedFirstDiv", "no div at depth %d of %d", i+1, depth)
		}
	}
	return sel, nil
}

// nthStyledDiv requires at least n+1 descendant divs with a style attribute.
func nthStyledDiv(sel *goquery.Selection, n int) (*goquery.Selection, error) {
	styled := sel.Find("div[style]")
	if styled.Length() <= n {
		return nil, stepErr("nthStyledDiv", "want styled div #%d, found %d", n, styled.Length())
	}
	return styled.Eq(n), nil
}

// layerCards resolves the card containers of one catalog layer.
func layerCards(layer *goquery.Selection) (*goquery.Selection, error) {
	grid, err := nestedFirstDiv(layer, 3)
	if err != nil {
		return nil, &StepError{Step: "layerCards", Err: err}
	}
	return grid.Children(), nil
}

// scrollPaginator requires a paginator under the content root; the last one
// holds the current results.
func scrollPaginator(root *goquery.Selection) (*goquery.Selection, error) {
	paginators := root.Find(paginatorSelector)
	if paginators.Length() == 0 {
		return nil, stepErr("scrollPaginator", "no %s", paginatorSelector)
	}
	return paginators.Last(), nil
}

// paginatorSection returns the i-th direct child of the paginator.
func paginatorSection(paginator *goquery.Selection, i int) (*goquery.Selection, error) {
	children := paginator.Children()
	if children.Length() <= i {
		return nil, stepErr("paginatorSection", "want section %d, found %d", i, children.Length())
	}
	return children.Eq(i), nil
}

// tileGrids returns the tile grids of a section. None is a valid answer.
func tileGrids(section *goquery.Selection) *goquery.Selection {
	return section.Find(TileGridSelector)
}

// catalogPrice follows the catalog tile layout: last child, two nested divs,
// then the price span.
func catalogPrice(item *goquery.Selection) (string, error) {
	last := item.Children().Last()
	if last.Length() == 0 {
		return "", stepErr("catalogPrice", "item has no children")
	}

	box, err := nestedFirstDiv(last, 2)
	if err != nil {
		return "", &StepError{Step: "catalogPrice", Err: err}
	}
	return itemPrice(box)
}

func itemName(item *goquery.Selection) (string, error) {
	span := item.Find(nameSelector).First()
	if span.Length() == 0 {
		return "", stepErr("itemName", "no %s", nameSelector)
	}

	text, ok := firstContent(span)
	if !ok {
		return "", stepErr("itemName", "name span is empty")
	}
	return text, nil
}

func itemLink(item *goquery.Selection) (string, error) {
	href, ok := item.Find(linkSelector).First().Attr("href")
	if !ok {
		return "", stepErr("itemLink", "no %s", linkSelector)
	}
	return strings.TrimSpace(href), nil
}

func itemPrice(item *goquery.Selection) (string, error) {
	el := item.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return priceClass.MatchString(class)
	}).First()
	if el.Length() == 0 {
		return "", stepErr("itemPrice", "no element with class %s", priceClass)
	}

	text, ok := firstContent(el)
	if !ok {
		return "", stepErr("itemPrice", "price element is empty")
	}
	return text, nil
}

// firstContent is the text of the first child node, element or text.
func firstContent(sel *goquery.Selection) (string, bool) {
	contents := sel.Contents()
	if contents.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(contents.First().Text()), true
}
