package spaserver

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// handleProxy forwards a request under /proxy/:key/* to the base URI a
// service registered under key via SpaComponents.AddProxy. There is no
// caching library anywhere in the retrieval pack, so this streams the
// upstream response straight through with net/http's own client/transport
// (pooled and reused across requests, which is this port's reading of
// spec.md §5's "shared cache manager" — see DESIGN.md); a dedicated
// reverse-proxy-with-cache package would be the natural fit if one ever
// appears in the dependency set.
func (s *Server) handleProxy(c *gin.Context) {
	key := c.Param("key")
	base, ok := s.components.proxies[key]
	if !ok {
		c.Status(http.StatusBadRequest)
		return
	}

	rest := strings.TrimPrefix(c.Param("rest"), "/")
	target := base + "/" + rest
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, c.Request.Body)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	req.Header = c.Request.Header.Clone()

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		c.Status(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Writer.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(c.Writer, resp.Body)
}
