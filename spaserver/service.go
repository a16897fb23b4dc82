// Package spaserver implements the actor-hosted SPA Server described in
// SPEC_FULL.md §4.8/§4.9: an HTTP/WebSocket server assembled from
// independently-registered micro-services.
package spaserver

import (
	"encoding/json"
	"reflect"

	"github.com/gin-gonic/gin"

	"github.com/odin-fire/odin-go/actor"
)

// ServerState is handed to each service's route-registration callbacks: its
// own name (the URL base) and a handle back to the server actor so routes
// can post messages (e.g. forwarding an HTTP-triggered event as
// DataAvailable).
type ServerState struct {
	Name       string
	SelfHandle *actor.ActorHandle
}

// WsFrame is the {mod_path, msg_type, payload} envelope spec.md's Design
// Notes make mandatory for every service's WebSocket contract.
type WsFrame struct {
	ModPath string          `json:"mod_path"`
	MsgType string          `json:"msg_type"`
	Payload json.RawMessage `json:"payload"`
}

// SpaService is the contract every composable micro-service implements.
type SpaService interface {
	// AddDependencies lets a service register its own dependencies (added
	// by value, already-constructed instances) before itself, via b.Add.
	// Services with no dependencies return b unchanged.
	AddDependencies(b *SpaServiceListBuilder) *SpaServiceListBuilder

	// AddComponents records this service's header items, body fragments,
	// routes, proxies, and assets into spa.
	AddComponents(spa *SpaComponents)

	// IsWebsocket reports whether this service needs the WebSocket route
	// mounted.
	IsWebsocket() bool

	// InitConnection pushes initial data to a newly-accepted client. It
	// MUST NOT await a send back to the server actor — conn is a
	// buffered-channel sink, not a server handle, which makes that
	// structurally impossible rather than merely documented (see
	// DESIGN.md's Open Question resolution).
	InitConnection(conn *Connection)

	// DataAvailable reacts to an upstream notification by broadcasting or
	// unicasting through server.
	DataAvailable(server *actor.ActorHandle, senderID, dataType string)

	// HandleIncomingWsMsg dispatches one parsed inbound frame.
	HandleIncomingWsMsg(conn *Connection, frame WsFrame) error
}

// BaseService gives services sensible no-op defaults for the methods most
// services don't need to override, matching the teacher's convention of
// small embeddable base structs (e.g. commonlib/actor's BaseMessage).
type BaseService struct{}

func (BaseService) AddDependencies(b *SpaServiceListBuilder) *SpaServiceListBuilder { return b }
func (BaseService) IsWebsocket() bool                                              { return false }
func (BaseService) InitConnection(*Connection)                                     {}
func (BaseService) DataAvailable(*actor.ActorHandle, string, string)                {}
func (BaseService) HandleIncomingWsMsg(*Connection, WsFrame) error                  { return nil }

// serviceRouteFn registers a service's HTTP routes on the shared router.
type serviceRouteFn func(r gin.IRouter, state ServerState)

// SpaServiceListBuilder accumulates the flat, dependency-first, deduplicated
// service list described in spec.md §4.9. Dedup key is the service's
// concrete Go type (spec.md's Design Note explicitly names "Go reflect" as
// this language's equivalent of Rust's type_name).
type SpaServiceListBuilder struct {
	seen map[string]bool
	list []SpaService
}

// NewSpaServiceListBuilder returns an empty builder.
func NewSpaServiceListBuilder() *SpaServiceListBuilder {
	return &SpaServiceListBuilder{seen: make(map[string]bool)}
}

// Add registers svc, first recursively adding its own dependencies. A
// second Add of a service with the same concrete type is a silent no-op,
// so registering it twice produces identical output (spec.md's S6
// scenario).
func (b *SpaServiceListBuilder) Add(svc SpaService) *SpaServiceListBuilder {
	key := typeKey(svc)
	if b.seen[key] {
		return b
	}
	b.seen[key] = true
	svc.AddDependencies(b)
	b.list = append(b.list, svc)
	return b
}

// Build returns the flat, ordered service list.
func (b *SpaServiceListBuilder) Build() []SpaService {
	return append([]SpaService(nil), b.list...)
}

func typeKey(svc SpaService) string {
	t := reflect.TypeOf(svc)
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}
