package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/maltedev/marketplace-scraper/internal/scraper"
)

const menu = `Choose a command:
  0 - search and export cards by query
  1 - cheaper offers for a product url or id
  2 - cheaper offers for a list of product urls or ids
  3 - search, then cheaper offers for every result
> `

var inputPrompts = map[scraper.Mode]string{
	scraper.ModeSearch:       "Search query: ",
	scraper.ModeOffers:       "Product url or id: ",
	scraper.ModeBatchOffers:  "Product urls or ids, separated by spaces: ",
	scraper.ModeSearchOffers: "Search query: ",
}

// promptRequest asks for a mode and its input. Only the four menu modes are
// offered; catalog runs have their own subcommand.
func promptRequest(in io.Reader, out io.Writer) (scraper.Request, error) {
	r := bufio.NewReader(in)

	fmt.Fprint(out, menu)
	choice, err := readLine(r)
	if err != nil {
		return scraper.Request{}, err
	}

	mode, err := scraper.ParseMode(choice)
	if err != nil {
		return scraper.Request{}, err
	}
	prompt, ok := inputPrompts[mode]
	if !ok {
		return scraper.Request{}, fmt.Errorf("%w: %q", scraper.ErrInvalidMode, choice)
	}

	fmt.Fprint(out, prompt)
	input, err := readLine(r)
	if err != nil {
		return scraper.Request{}, err
	}
	if input == "" {
		return scraper.Request{}, fmt.Errorf("%w: %s", scraper.ErrEmptyInput, strings.TrimSpace(strings.TrimSuffix(prompt, ": ")))
	}

	return scraper.Request{Mode: mode, Input: input}, nil
}

// readLine returns the next line without its terminator. A last line without
// a newline is returned as is.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
