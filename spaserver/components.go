package spaserver

import (
	"fmt"
	"strings"
)

// HeaderKind distinguishes the three header item flavors the rendered
// document supports.
type HeaderKind uint8

const (
	HeaderCSS HeaderKind = iota
	HeaderScript
	HeaderModule
)

// HeaderItem is one <link>/<script> entry in the rendered document's head,
// deduplicated by URI across every registered service.
type HeaderItem struct {
	Kind HeaderKind
	URI  string
}

func (h HeaderItem) render() string {
	switch h.Kind {
	case HeaderCSS:
		return fmt.Sprintf(`<link rel="stylesheet" href="%s">`, h.URI)
	case HeaderModule:
		return fmt.Sprintf(`<script type="module" src="%s"></script>`, h.URI)
	default:
		return fmt.Sprintf(`<script src="%s"></script>`, h.URI)
	}
}

// AssetLookupFunc resolves a filename within one service's asset namespace
// to its bytes, or an error if the file doesn't exist.
type AssetLookupFunc func(filename string) ([]byte, error)

// SpaComponents is the accumulator every registered service's AddComponents
// populates: header items, body fragments, routes, proxies, and asset
// lookup functions, in the exact shape spec.md §3/§4.9 describes.
type SpaComponents struct {
	headers      []HeaderItem
	headerSeen   map[string]bool
	body         []string
	routes       []registeredRoute
	proxies      map[string]string
	assets       map[string]AssetLookupFunc
}

type registeredRoute struct {
	fn serviceRouteFn
}

// NewSpaComponents returns an empty accumulator.
func NewSpaComponents() *SpaComponents {
	return &SpaComponents{
		headerSeen: make(map[string]bool),
		proxies:    make(map[string]string),
		assets:     make(map[string]AssetLookupFunc),
	}
}

// AddHeaderItem appends item unless its URI was already registered by an
// earlier service.
func (c *SpaComponents) AddHeaderItem(item HeaderItem) {
	if c.headerSeen[item.URI] {
		return
	}
	c.headerSeen[item.URI] = true
	c.headers = append(c.headers, item)
}

func (c *SpaComponents) AddCSS(uri string)    { c.AddHeaderItem(HeaderItem{HeaderCSS, uri}) }
func (c *SpaComponents) AddScript(uri string) { c.AddHeaderItem(HeaderItem{HeaderScript, uri}) }
func (c *SpaComponents) AddModule(uri string) { c.AddHeaderItem(HeaderItem{HeaderModule, uri}) }

// AddBodyFragment appends raw HTML to the document body. No dedup: a
// service that contributes the same fragment twice gets it twice.
func (c *SpaComponents) AddBodyFragment(html string) {
	c.body = append(c.body, html)
}

// AddRoute registers a route-installation callback, invoked once when the
// server builds its router.
func (c *SpaComponents) AddRoute(fn serviceRouteFn) {
	c.routes = append(c.routes, registeredRoute{fn: fn})
}

// AddProxy registers key to forward to baseURI; any trailing slash on
// baseURI is stripped at registration so the proxy route can always insert
// exactly one '/' before the forwarded path.
func (c *SpaComponents) AddProxy(key, baseURI string) {
	c.proxies[key] = strings.TrimRight(baseURI, "/")
}

// AddAssets registers a crate/module-scoped asset lookup function under
// key.
func (c *SpaComponents) AddAssets(key string, fn AssetLookupFunc) {
	c.assets[key] = fn
}

// ModuleURIs returns every registered module-script URI, in the order they
// were added, for the trailing inline import block.
func (c *SpaComponents) ModuleURIs() []string {
	var uris []string
	for _, h := range c.headers {
		if h.Kind == HeaderModule {
			uris = append(uris, h.URI)
		}
	}
	return uris
}

// RenderHTML renders the composed document for name, ported verbatim from
// the original ODIN server's to_html/post_init_js_modules algorithm:
// doctype, title, <base href>, header items in order, body fragments in
// order, then one trailing inline module script that imports every module
// asset and invokes its optional postInitialize().
func (c *SpaComponents) RenderHTML(name string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", name)
	fmt.Fprintf(&b, `<base href="/%s/">`, name)
	b.WriteString("\n")
	for _, h := range c.headers {
		b.WriteString(h.render())
		b.WriteString("\n")
	}
	b.WriteString("</head>\n<body>\n")
	for _, frag := range c.body {
		b.WriteString(frag)
		b.WriteString("\n")
	}
	b.WriteString(c.postInitJsModules())
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func (c *SpaComponents) postInitJsModules() string {
	modules := c.ModuleURIs()
	if len(modules) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<script type=\"module\">\n")
	names := make([]string, len(modules))
	for i, uri := range modules {
		names[i] = fmt.Sprintf("m%d", i)
		fmt.Fprintf(&b, "import * as %s from '%s';\n", names[i], uri)
	}
	for _, name := range names {
		fmt.Fprintf(&b, "if (%s.postInitialize) { %s.postInitialize(); }\n", name, name)
	}
	b.WriteString("console.log('all js modules initialized');\n")
	b.WriteString("</script>\n")
	return b.String()
}
