package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/maltedev/marketplace-scraper/internal/logger"
)

const testProductHost = "https://ozon.ru"

func newTestExtractor() (*CardExtractor, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewCardExtractor(testProductHost, logger.New("debug", "json", &buf)), &buf
}

func discardLogger() *slog.Logger {
	return logger.New("error", "json", io.Discard)
}

type tile struct {
	name  string
	href  string
	price string
}

func catalogItem(t tile) string {
	price := ""
	if t.price != "" {
		price = fmt.Sprintf(`<span class="c3118-a1 tsHeadline500Medium c3118-b9">%s</span>`, t.price)
	}
	return fmt.Sprintf(`<div class="item">
	<a href="%s"><span class="tsBody500Medium">%s</span></a>
	<div><div><div>%s</div></div></div>
</div>`, t.href, t.name, price)
}

// catalogLayer renders one layer holding a single card with the given items.
func catalogLayer(items ...tile) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(catalogItem(it))
	}
	return fmt.Sprintf(`<div class="layer"><div><div><div class="grid"><div class="card">%s</div></div></div></div></div>`, b.String())
}

func catalogPage(layers ...string) string {
	return fmt.Sprintf(`<html><body>
<div class="container c">
	<div class="header">header</div>
	<div class="main">
		<div class="wrap">
			<div class="plain">banner</div>
			<div data-state="island-catalog">
				<div><div><div>
					<div style="height:1px">spacer</div>
					<div style="display:block">%s</div>
				</div></div></div>
			</div>
		</div>
	</div>
</div>
</body></html>`, strings.Join(layers, ""))
}

func searchItem(t tile) string {
	price := ""
	if t.price != "" {
		price = fmt.Sprintf(`<div><span class="tsHeadline500Medium x1">%s</span></div>`, t.price)
	}
	return fmt.Sprintf(`<div class="tile">
	<a href="%s"><span class="tsBody500Medium">%s</span></a>
	%s
</div>`, t.href, t.name, price)
}

func searchGrid(items ...tile) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(searchItem(it))
	}
	return fmt.Sprintf(`<div data-widget="tileGridDesktop">%s</div>`, b.String())
}

func searchPage(fixed string, paginated ...string) string {
	sections := fmt.Sprintf(`<div class="fixed">%s</div>`, fixed)
	for _, p := range paginated {
		sections += fmt.Sprintf(`<div class="paginated">%s</div>`, p)
	}
	return fmt.Sprintf(`<html><body>
<div class="container c">
	<div id="contentScrollPaginator">%s</div>
</div>
</body></html>`, sections)
}
