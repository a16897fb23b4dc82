package spaserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// yService has no dependencies of its own; xService depends on it. Separate
// concrete types are required here: dedup is keyed by reflect.TypeOf, so two
// services sharing a Go type would collapse into one registration regardless
// of identity.
type yService struct {
	BaseService
	tag string
}

func (y *yService) AddComponents(spa *SpaComponents) {
	spa.AddBodyFragment("<div>" + y.tag + "</div>")
}

type xService struct {
	BaseService
	dep SpaService
}

func (x *xService) AddDependencies(b *SpaServiceListBuilder) *SpaServiceListBuilder {
	return b.Add(x.dep)
}

func (x *xService) AddComponents(spa *SpaComponents) {
	spa.AddBodyFragment("<div>x</div>")
}

// zService depends on the same concrete *yService instance x does, to
// exercise cross-root dedup.
type zService struct {
	BaseService
	dep SpaService
}

func (z *zService) AddDependencies(b *SpaServiceListBuilder) *SpaServiceListBuilder {
	return b.Add(z.dep)
}

func (z *zService) AddComponents(spa *SpaComponents) {
	spa.AddBodyFragment("<div>z</div>")
}

// S6: a service that depends on another must render with its dependency
// first, and re-adding an already-registered service (by concrete type) is a
// silent no-op that doesn't duplicate or reorder the list.
func TestSpaServiceListBuilder_DependencyFirstOrdering(t *testing.T) {
	y := &yService{tag: "y"}
	x := &xService{dep: y}

	b := NewSpaServiceListBuilder()
	b.Add(x)
	list := b.Build()

	require.Len(t, list, 2)
	assert.Same(t, y, list[0], "dependency Y must render before the service X that depends on it")
	assert.Same(t, x, list[1])
}

func TestSpaServiceListBuilder_ReAddIsNoOp(t *testing.T) {
	y := &yService{tag: "y"}
	x := &xService{dep: y}

	b := NewSpaServiceListBuilder()
	b.Add(x)
	b.Add(x) // re-adding the same concrete type must not duplicate or reorder the list
	list := b.Build()

	require.Len(t, list, 2)
	assert.Same(t, y, list[0])
	assert.Same(t, x, list[1])
}

func TestSpaServiceListBuilder_SharedDependencyDedupedAcrossRoots(t *testing.T) {
	shared := &yService{tag: "shared"}
	x := &xService{dep: shared}
	z := &zService{dep: shared}

	b := NewSpaServiceListBuilder()
	b.Add(x)
	b.Add(z)
	list := b.Build()

	require.Len(t, list, 3, "the shared dependency must appear exactly once")
	assert.Same(t, shared, list[0])
	assert.Same(t, x, list[1])
	assert.Same(t, z, list[2])
}

// NewServer must build its component set from the same dependency-first,
// deduplicated ordering, so rendered output reflects Y-before-X.
func TestNewServer_UsesDependencyFirstServiceList(t *testing.T) {
	y := &yService{tag: "y"}
	x := &xService{dep: y}

	server := NewServer(DefaultServerConfig("test", "127.0.0.1:0"), []SpaService{x}, nil)

	require.Len(t, server.services, 2)
	assert.Same(t, y, server.services[0])
	assert.Same(t, x, server.services[1])

	html := server.components.RenderHTML("test")
	yIdx := indexOf(html, "<div>y</div>")
	xIdx := indexOf(html, "<div>x</div>")
	require.NotEqual(t, -1, yIdx)
	require.NotEqual(t, -1, xIdx)
	assert.Less(t, yIdx, xIdx, "dependency fragment must render before the dependent service's own fragment")
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
