package parser

import (
	"regexp"
)

// Product links end in "-<id>/" and search tiles add "?at=..." after it.
var productIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`-(\d+)/\?at`),
	regexp.MustCompile(`-(\d+)/`),
}

// ResolveProductID pulls the numeric product id out of a product URL or
// markup containing one. It returns false when nothing matches; callers
// then treat the input as an id already.
func ResolveProductID(input string) (string, bool) {
	for _, re := range productIDPatterns {
		if m := re.FindStringSubmatch(input); len(m) > 1 {
			return m[1], true
		}
	}
	return "", false
}
