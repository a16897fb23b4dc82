package spaserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpaComponents_HeaderDedupByURI(t *testing.T) {
	c := NewSpaComponents()
	c.AddCSS("/asset/a/style.css")
	c.AddCSS("/asset/a/style.css") // duplicate URI, should be dropped
	c.AddScript("/asset/a/script.js")

	require.Len(t, c.headers, 2)
	assert.Equal(t, HeaderCSS, c.headers[0].Kind)
	assert.Equal(t, "/asset/a/style.css", c.headers[0].URI)
	assert.Equal(t, HeaderScript, c.headers[1].Kind)
}

func TestSpaComponents_BodyFragmentsNeverDeduped(t *testing.T) {
	c := NewSpaComponents()
	c.AddBodyFragment("<div>x</div>")
	c.AddBodyFragment("<div>x</div>")

	assert.Len(t, c.body, 2, "body fragments are append-only, unlike header items")
}

func TestSpaComponents_ProxyRegistrationStripsTrailingSlash(t *testing.T) {
	c := NewSpaComponents()
	c.AddProxy("upstream", "http://localhost:9000/api/")

	assert.Equal(t, "http://localhost:9000/api", c.proxies["upstream"])
}

func TestSpaComponents_ModuleURIsPreservesOrder(t *testing.T) {
	c := NewSpaComponents()
	c.AddCSS("/a.css")
	c.AddModule("/m1.js")
	c.AddScript("/plain.js")
	c.AddModule("/m2.js")

	assert.Equal(t, []string{"/m1.js", "/m2.js"}, c.ModuleURIs())
}

func TestSpaComponents_RenderHTML_NoModules(t *testing.T) {
	c := NewSpaComponents()
	c.AddCSS("/a.css")
	c.AddBodyFragment("<p>hello</p>")

	html := c.RenderHTML("demo")
	assert.Contains(t, html, "<title>demo</title>")
	assert.Contains(t, html, `<base href="/demo/">`)
	assert.Contains(t, html, `<link rel="stylesheet" href="/a.css">`)
	assert.Contains(t, html, "<p>hello</p>")
	assert.NotContains(t, html, "<script type=\"module\">", "no trailing inline script block without any registered modules")
}

func TestSpaComponents_RenderHTML_ModulesGetPostInitTrailer(t *testing.T) {
	c := NewSpaComponents()
	c.AddModule("/one.js")
	c.AddModule("/two.js")

	html := c.RenderHTML("demo")
	assert.Contains(t, html, "import * as m0 from '/one.js';")
	assert.Contains(t, html, "import * as m1 from '/two.js';")
	assert.Contains(t, html, "if (m0.postInitialize) { m0.postInitialize(); }")
	assert.Contains(t, html, "if (m1.postInitialize) { m1.postInitialize(); }")
	assert.Contains(t, html, "console.log('all js modules initialized');")

	// the trailer must appear exactly once even with multiple modules
	assert.Equal(t, 1, countOccurrences(html, "all js modules initialized"))
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
			i += len(needle) - 1
		}
	}
	return count
}
