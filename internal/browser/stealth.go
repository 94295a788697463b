package browser

import (
	"encoding/json"
	"fmt"

	"github.com/go-rod/stealth"
)

// fingerprintTemplate pins the navigator and WebGL values that bot checks
// read. It runs after the stealth bundle so these values win.
const fingerprintTemplate = `(() => {
	const languages = %s;
	const vendor = %s;
	const platform = %s;
	const webglVendor = %s;
	const renderer = %s;

	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'languages', { get: () => languages });
	Object.defineProperty(navigator, 'vendor', { get: () => vendor });
	Object.defineProperty(navigator, 'platform', { get: () => platform });

	const patch = (proto) => {
		if (!proto) return;
		const getParameter = proto.getParameter;
		proto.getParameter = function (parameter) {
			if (parameter === 37445) return webglVendor;
			if (parameter === 37446) return renderer;
			return getParameter.call(this, parameter);
		};
	};
	patch(window.WebGLRenderingContext && WebGLRenderingContext.prototype);
	patch(window.WebGL2RenderingContext && WebGL2RenderingContext.prototype);

	// hairline fix: report a retina-safe offsetHeight for the modernizr probe
	const offsetHeight = Object.getOwnPropertyDescriptor(HTMLElement.prototype, 'offsetHeight');
	if (offsetHeight && offsetHeight.get) {
		Object.defineProperty(HTMLDivElement.prototype, 'offsetHeight', {
			get: function () {
				if (this.id === 'modernizr') return 1;
				return offsetHeight.get.call(this);
			},
		});
	}
})();`

// evasionScripts returns the init scripts run on every new document.
func evasionScripts(opts *Options) []string {
	return []string{
		stealth.JS,
		fingerprintScript(opts),
	}
}

func fingerprintScript(opts *Options) string {
	return fmt.Sprintf(fingerprintTemplate,
		jsValue(opts.Languages),
		jsValue(opts.Vendor),
		jsValue(opts.Platform),
		jsValue(opts.WebGLVendor),
		jsValue(opts.Renderer),
	)
}

func jsValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
