// Package idgen generates unique, sortable identities for actors,
// connections, and queries, adapted from the teacher's commonlib/snowflake
// package: the same timestamp|node|sequence Snowflake layout, retargeted
// from chat-domain entity types (user/agent/message/thread) to ODIN's own
// (actor/connection/query).
package idgen

import (
	"fmt"
	"sync"
	"time"
)

// Default epoch: 2024-01-01 00:00:00 UTC.
var defaultEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

const (
	nodeBits     = 10
	sequenceBits = 12
	maxNodeID    = -1 ^ (-1 << nodeBits)
	maxSequence  = -1 ^ (-1 << sequenceBits)
	timeShift    = nodeBits + sequenceBits
	nodeShift    = sequenceBits
)

// Snowflake generates unique distributed IDs.
// Structure: timestamp(41) | node(10) | sequence(12)
type Snowflake struct {
	nodeID   int64
	epoch    int64
	sequence int64
	lastTime int64
	mu       sync.Mutex
}

// New creates a new Snowflake generator.
func New(nodeID int64) (*Snowflake, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("node ID must be between 0 and %d", maxNodeID)
	}
	return &Snowflake{nodeID: nodeID, epoch: defaultEpoch}, nil
}

// NewWithEpoch creates a generator with a custom epoch.
func NewWithEpoch(nodeID int64, epoch time.Time) (*Snowflake, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		return nil, fmt.Errorf("node ID must be between 0 and %d", maxNodeID)
	}
	return &Snowflake{epoch: epoch.UnixMilli(), nodeID: nodeID}, nil
}

// Generate generates a new unique ID.
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == s.lastTime {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.lastTime {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastTime = now

	return ((now - s.epoch) << timeShift) | (s.nodeID << nodeShift) | s.sequence
}

// GenerateString generates an ID as a string.
func (s *Snowflake) GenerateString() string {
	return fmt.Sprintf("%d", s.Generate())
}

// Parse decomposes id into its timestamp/node/sequence parts.
func (s *Snowflake) Parse(id int64) (timestamp, nodeID, sequence int64) {
	timestamp = (id >> timeShift) + s.epoch
	nodeID = (id >> nodeShift) & maxNodeID
	sequence = id & maxSequence
	return
}

// Timestamp extracts the wall-clock time an ID was minted at.
func (s *Snowflake) Timestamp(id int64) time.Time {
	ts := (id >> timeShift) + s.epoch
	return time.UnixMilli(ts)
}

var (
	globalGenerator *Snowflake
	globalOnce      sync.Once
	initErr         error
)

// Init initializes the global generator with the given node ID. nodeID
// should be unique per odind process in a multi-node deployment.
func Init(nodeID int64) error {
	globalOnce.Do(func() {
		gen, err := New(nodeID)
		if err != nil {
			initErr = err
			return
		}
		globalGenerator = gen
	})
	return initErr
}

// Generate generates an ID using the global generator, auto-initializing
// with node 0 if Init was never called.
func Generate() int64 {
	if globalGenerator == nil {
		Init(0)
	}
	return globalGenerator.Generate()
}

// Kind distinguishes which ODIN entity an ID was minted for, so IDs stay
// visually distinguishable in logs (e.g. conn_7123456789012345 vs
// actor_7123456789012346).
type Kind byte

const (
	KindActor Kind = iota + 1
	KindConnection
	KindQuery
)

func kindPrefix(k Kind) string {
	switch k {
	case KindActor:
		return "actor"
	case KindConnection:
		return "conn"
	case KindQuery:
		return "query"
	default:
		return "id"
	}
}

// TypedID mints prefixed IDs for a single ODIN entity kind.
type TypedID struct {
	sf *Snowflake
}

// NewTypedID creates a typed ID generator.
func NewTypedID(nodeID int64) (*TypedID, error) {
	sf, err := New(nodeID)
	if err != nil {
		return nil, err
	}
	return &TypedID{sf: sf}, nil
}

// Generate mints a kind-prefixed ID, e.g. "conn_7123456789012345".
func (t *TypedID) Generate(kind Kind) string {
	return fmt.Sprintf("%s_%d", kindPrefix(kind), t.sf.Generate())
}

var (
	globalTypedGen  *TypedID
	globalTypedOnce sync.Once
)

// InitTyped initializes the global typed generator.
func InitTyped(nodeID int64) error {
	var err error
	globalTypedOnce.Do(func() {
		gen, genErr := NewTypedID(nodeID)
		if genErr != nil {
			err = genErr
			return
		}
		globalTypedGen = gen
	})
	return err
}

// NewActorID generates a new actor ID.
func NewActorID() string {
	if globalTypedGen == nil {
		InitTyped(0)
	}
	return globalTypedGen.Generate(KindActor)
}

// NewConnectionID generates a new connection ID.
func NewConnectionID() string {
	if globalTypedGen == nil {
		InitTyped(0)
	}
	return globalTypedGen.Generate(KindConnection)
}

// NewQueryID generates a new query ID.
func NewQueryID() string {
	if globalTypedGen == nil {
		InitTyped(0)
	}
	return globalTypedGen.Generate(KindQuery)
}
