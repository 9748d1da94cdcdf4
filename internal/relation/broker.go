package relation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/loadops/k6ctl/internal/metrics"
)

// Outbound relation endpoints. Both carry exactly one URL and accept at most
// one remote unit.
const (
	RemoteWrite = "send-remote-write"
	Logging     = "logging"
)

// ErrRelationLimit is returned when a second remote unit tries to populate a
// limit-1 relation. The first joiner stays active.
var ErrRelationLimit = errors.New("relation limit exceeded")

// ErrUnknownRelation is returned for relation names the controller does not
// consume.
var ErrUnknownRelation = errors.New("unknown relation")

type endpoint struct {
	remoteUnit string
	url        string
}

// Broker tracks leadership and the externally owned relation data. It is a
// read-mostly projection: the orchestration layer feeds it through
// Join/Depart/SetLeader, reconciliation reads consistent Views.
type Broker struct {
	mu        sync.Mutex
	leader    bool
	endpoints map[string]*endpoint
	conflicts map[string]string // relation -> rejected extra unit
}

func NewBroker() *Broker {
	return &Broker{
		endpoints: map[string]*endpoint{
			RemoteWrite: nil,
			Logging:     nil,
		},
		conflicts: make(map[string]string),
	}
}

// View is the immutable per-event projection of relation state. Each
// reconciliation receives a fresh copy; never a live reference.
type View struct {
	Leader         bool
	RemoteWriteURL string
	LogURL         string
	// Conflict names a limit-1 relation with a rejected extra joiner, if any.
	Conflict string
}

// SetLeader records the leadership signal from the peer relation.
func (b *Broker) SetLeader(leader bool) {
	b.mu.Lock()
	b.leader = leader
	b.mu.Unlock()
}

// Join records a remote unit populating a relation. A second distinct unit on
// a limit-1 relation is rejected with ErrRelationLimit; the rejection is
// remembered so the unit status can surface it until the extra unit departs.
// Re-joining by the active unit updates its URL.
func (b *Broker) Join(relation, remoteUnit, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.known(relation) {
		return fmt.Errorf("%w: %s", ErrUnknownRelation, relation)
	}
	ep := b.endpoints[relation]
	if ep != nil && ep.remoteUnit != remoteUnit {
		b.conflicts[relation] = remoteUnit
		return fmt.Errorf("%w: %s already joined by %s", ErrRelationLimit, relation, ep.remoteUnit)
	}
	b.endpoints[relation] = &endpoint{remoteUnit: remoteUnit, url: url}
	metrics.SetRelationJoined(relation, true)
	return nil
}

// Depart removes a remote unit from a relation. Departing a unit that was
// rejected clears the recorded conflict; departing an unknown unit is a no-op.
func (b *Broker) Depart(relation, remoteUnit string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conflicts[relation] == remoteUnit {
		delete(b.conflicts, relation)
	}
	ep := b.endpoints[relation]
	if ep != nil && ep.remoteUnit == remoteUnit {
		b.endpoints[relation] = nil
		metrics.SetRelationJoined(relation, false)
	}
}

// View returns a consistent snapshot of leadership and endpoint data.
func (b *Broker) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := View{Leader: b.leader}
	if ep := b.endpoints[RemoteWrite]; ep != nil {
		v.RemoteWriteURL = ep.url
	}
	if ep := b.endpoints[Logging]; ep != nil {
		v.LogURL = ep.url
	}
	for _, rel := range []string{RemoteWrite, Logging} {
		if _, ok := b.conflicts[rel]; ok {
			v.Conflict = rel
			break
		}
	}
	return v
}

func (b *Broker) known(relation string) bool {
	return relation == RemoteWrite || relation == Logging
}
