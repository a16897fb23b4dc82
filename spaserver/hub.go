package spaserver

import (
	"sync"

	"go.uber.org/zap"
)

// hub is the connection registry behind the server actor: adapted from the
// teacher's services/conn_rpc/biz/hub.go Hub, generalized from a single
// broadcast target to spec.md §4.8's four dispatch shapes (unicast,
// broadcast, all-others, group).
type hub struct {
	mu      sync.RWMutex
	conns   map[string]*Connection // keyed by connection ID (not RemoteAddr: a client may reconnect from the same address)
	groups  map[string]map[string]bool
	logger  *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		conns:  make(map[string]*Connection),
		groups: make(map[string]map[string]bool),
		logger: logger,
	}
}

func (h *hub) add(id string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = conn
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
	for _, members := range h.groups {
		delete(members, id)
	}
}

func (h *hub) joinGroup(group, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]bool)
		h.groups[group] = members
	}
	members[id] = true
}

func (h *hub) leaveGroup(group, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[group]; ok {
		delete(members, id)
	}
}

// sendTo unicasts data to one connection by ID. A full outbound buffer is
// treated as the connection being unresponsive: it is dropped from the
// registry rather than allowed to back-pressure the sender, matching the
// teacher's Hub.sendToConnection eviction behavior.
func (h *hub) sendTo(id string, data []byte) {
	h.mu.RLock()
	conn, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.Write(data); err != nil {
		h.logger.Debug("evicting unresponsive connection", zap.String("conn_id", id), zap.Error(err))
		conn.close()
		h.remove(id)
	}
}

// broadcast sends data to every registered connection.
func (h *hub) broadcast(data []byte) {
	h.mu.RLock()
	targets := make([]string, 0, len(h.conns))
	for id := range h.conns {
		targets = append(targets, id)
	}
	h.mu.RUnlock()
	for _, id := range targets {
		h.sendTo(id, data)
	}
}

// broadcastExcept sends data to every registered connection other than
// exceptID, for "tell everyone else" notifications.
func (h *hub) broadcastExcept(exceptID string, data []byte) {
	h.mu.RLock()
	targets := make([]string, 0, len(h.conns))
	for id := range h.conns {
		if id != exceptID {
			targets = append(targets, id)
		}
	}
	h.mu.RUnlock()
	for _, id := range targets {
		h.sendTo(id, data)
	}
}

// sendGroup sends data to every connection that joined group.
func (h *hub) sendGroup(group string, data []byte) {
	h.mu.RLock()
	members, ok := h.groups[group]
	targets := make([]string, 0, len(members))
	if ok {
		for id := range members {
			targets = append(targets, id)
		}
	}
	h.mu.RUnlock()
	for _, id := range targets {
		h.sendTo(id, data)
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
