package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var ErrPayloadNotFound = errors.New("json payload not found")

// ExtractJSONPayload returns the JSON text Chromium wraps in a <pre> when it
// renders an API response.
func ExtractJSONPayload(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	pre := doc.Find(PayloadSelector).First()
	if pre.Length() == 0 {
		return "", ErrPayloadNotFound
	}

	text := strings.TrimSpace(pre.Text())
	if text == "" {
		return "", ErrPayloadNotFound
	}
	return text, nil
}

// HasWidgetStates reports whether the payload carries any widget state.
// Products without other sellers come back without it.
func HasWidgetStates(payload string) bool {
	return strings.Contains(payload, "widgetStates")
}
