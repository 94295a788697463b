// Package main is the marketplace-scraper command.
//
// Usage:
//
//	marketplace-scraper                 interactive mode menu
//	marketplace-scraper search <query>
//	marketplace-scraper offers <url|id>...
//	marketplace-scraper serve
//
// See --help for all commands and options.
package main

func main() {
	Execute()
}
