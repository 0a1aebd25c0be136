package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/queue"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

var t0 = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return t0 }

func testOperations(t *testing.T) *model.Operations {
	t.Helper()
	ops, err := model.NewOperations([]model.Operation{
		{ID: 1, Name: "created", Kind: model.OperationCreate},
		{ID: 2, Name: "modified", Kind: model.OperationUpdate},
		{ID: 3, Name: "deleted", Kind: model.OperationDelete},
	})
	require.NoError(t, err)
	return ops
}

// newTestGroup returns a group with two origins sharing one target.
func newTestGroup() *model.Group {
	g := model.NewGroup(1, "billing", 0, 0, 24*time.Hour, t0.Add(-time.Hour))
	g.AddTarget(&model.Target{ID: 5, Name: "crm", EndpointURL: "http://crm/events", TokenURL: "http://crm/token", Timeout: time.Second})
	for _, o := range []struct {
		id    int64
		name  string
		order int
	}{{11, "accounts", 2}, {10, "lines", 1}} {
		g.AddOrigin(&model.Origin{
			ID: o.id, Name: o.name, GroupOrder: o.order, TargetID: 5,
			Queue: model.QueueConfig{Kind: model.QueueJetStream, NATSURL: "nats://q", Stream: "S", Consumer: "c"},
		})
	}
	return g
}

func payload(op, identification string) string {
	return fmt.Sprintf(`{"eventData":{"operation":%q,"type":"line","trxId":"trx-%s","identification":%q,"publishDate":"01-05-2024T10:00:00"}}`,
		op, identification, identification)
}

// memStore is an in-memory store.Store.
type memStore struct {
	mu     sync.Mutex
	events []*model.Event
	nextID int64
	// newGroup builds the configured group; LoadGroup applies the
	// persisted pointers to it, as the database store does.
	newGroup func() *model.Group
	ops      *model.Operations

	groupPointers model.GroupPointers
	pointerWrites int
	mutations     int

	failInsertAt int // 1-based insert call that fails; 0 = never
	inserts      int
}

func newMemStore(newGroup func() *model.Group, ops *model.Operations) *memStore {
	return &memStore{newGroup: newGroup, ops: ops, nextID: 1, groupPointers: newGroup().Pointers()}
}

// seed stores an event directly with the given id.
func (m *memStore) seed(id, originID int64, identification string, state model.State, updatedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, _ := m.ops.ByName("modified")
	m.events = append(m.events, &model.Event{
		ID: id, OriginID: originID, Operation: op, Identification: identification, Type: "line",
		State: state, UpdatedAt: updatedAt, Source: payload("modified", identification),
	})
	sort.Slice(m.events, func(i, j int) bool { return m.events[i].ID < m.events[j].ID })
	if id >= m.nextID {
		m.nextID = id + 1
	}
}

func (m *memStore) event(id int64) *model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			c := *e
			return &c
		}
	}
	return nil
}

func (m *memStore) InsertEvent(_ context.Context, e *model.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.failInsertAt == m.inserts {
		return 0, errors.New("connection reset")
	}
	c := *e
	c.ID = m.nextID
	m.nextID++
	m.events = append(m.events, &c)
	m.mutations++
	return c.ID, nil
}

func (m *memStore) updateResult(upd model.ResultUpdate) error {
	for _, e := range m.events {
		if e.ID == upd.EventID {
			e.State = upd.State
			e.ProcessingInfo = upd.Info
			e.UpdatedAt = upd.UpdatedAt
			m.mutations++
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) UpdateResult(_ context.Context, upd model.ResultUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateResult(upd)
}

func (m *memStore) UpdateResultAndGroupPointers(_ context.Context, upd model.ResultUpdate, ptr model.GroupPointers) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateResult(upd); err != nil {
		return err
	}
	m.groupPointers = ptr
	m.pointerWrites++
	return nil
}

func containsState(states []model.State, s model.State) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}

func containsID(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (m *memStore) QueryEvents(_ context.Context, f store.EventFilter, _ *model.Operations) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Event
	for _, e := range m.events {
		if e.ID < f.MinID || (e.ID == f.MinID && !f.Inclusive) {
			continue
		}
		if len(f.States) > 0 && !containsState(f.States, e.State) {
			continue
		}
		if len(f.OriginIDs) > 0 && !containsID(f.OriginIDs, e.OriginID) {
			continue
		}
		if !f.UpdatedSince.IsZero() && e.UpdatedAt.Before(f.UpdatedSince) {
			continue
		}
		c := *e
		out = append(out, &c)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) CountEventsByState(_ context.Context, originIDs []int64) (map[model.State]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.State]int)
	for _, e := range m.events {
		if containsID(originIDs, e.OriginID) {
			counts[e.State]++
		}
	}
	return counts, nil
}

func (m *memStore) MinErrorIDInWindow(_ context.Context, since time.Time, originIDs []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.State == model.StateError && !e.UpdatedAt.Before(since) && containsID(originIDs, e.OriginID) {
			return e.ID, nil
		}
	}
	return 0, store.ErrNotFound
}

func (m *memStore) MinErrorIDPerElement(_ context.Context, startID int64, originIDs []int64) ([]store.ElementError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []store.ElementError
	for _, e := range m.events {
		if e.ID < startID || e.State != model.StateError || !containsID(originIDs, e.OriginID) || seen[e.Identification] {
			continue
		}
		seen[e.Identification] = true
		out = append(out, store.ElementError{Identification: e.Identification, EventID: e.ID, OriginID: e.OriginID})
	}
	return out, nil
}

func (m *memStore) MinSuccessIDAfter(_ context.Context, startID int64, identification string, originID int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID > startID && e.Identification == identification && e.OriginID == originID && e.State.IsSuccess() {
			return e.ID, true, nil
		}
	}
	return 0, false, nil
}

func (m *memStore) BulkMarkObsolete(_ context.Context, identification string, startID, beforeID, originID int64, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Identification == identification && e.OriginID == originID && e.ID >= startID && e.ID < beforeID && e.State == model.StateError {
			e.State = model.StateObsolete
			e.UpdatedAt = at
			n++
		}
	}
	m.mutations += n
	return n, nil
}

func (m *memStore) LoadGroup(_ context.Context, name string) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.newGroup()
	if g.Name != name {
		return nil, fmt.Errorf("group %q: %w", name, store.ErrNotFound)
	}
	g.SetPointers(m.groupPointers, g.UpdatedAt)
	return g, nil
}

func (m *memStore) LoadOperations(context.Context) (*model.Operations, error) {
	return m.ops, nil
}

func (m *memStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *memStore) Close() error { return nil }

// fakeQueue is an in-memory queue.Queue.
type fakeQueue struct {
	messages []string
	inFlight bool
	closed   bool
	confirms int
	aborts   int
}

func (q *fakeQueue) FetchNext(context.Context) (string, bool, error) {
	if q.inFlight {
		return "", false, errors.New("unit of work still open")
	}
	if len(q.messages) == 0 {
		return "", false, nil
	}
	q.inFlight = true
	return q.messages[0], true, nil
}

func (q *fakeQueue) Confirm(context.Context) error {
	if q.inFlight {
		q.messages = q.messages[1:]
		q.inFlight = false
		q.confirms++
	}
	return nil
}

func (q *fakeQueue) Abort(context.Context) error {
	if q.inFlight {
		q.inFlight = false
		q.aborts++
	}
	return nil
}

func (q *fakeQueue) Close() error {
	q.closed = true
	return q.Abort(context.Background())
}

// fakeOpener hands out fakeQueues by origin id.
type fakeOpener struct {
	queues  map[int64]*fakeQueue
	failing map[int64]error
	opened  []int64
}

func (o *fakeOpener) Open(_ context.Context, origin *model.Origin) (queue.Queue, error) {
	o.opened = append(o.opened, origin.ID)
	if err := o.failing[origin.ID]; err != nil {
		return nil, err
	}
	q, ok := o.queues[origin.ID]
	if !ok {
		q = &fakeQueue{}
		if o.queues == nil {
			o.queues = make(map[int64]*fakeQueue)
		}
		o.queues[origin.ID] = q
	}
	return q, nil
}

// fakeExecutor returns canned HTTP outcomes per event id; unlisted events get 204.
type fakeExecutor struct {
	statuses  map[int64]int
	tokenErr  error
	prepared  []int64
	delivered []int64
}

func (x *fakeExecutor) PrepareToken(_ context.Context, t *model.Target) error {
	x.prepared = append(x.prepared, t.ID)
	return x.tokenErr
}

func (x *fakeExecutor) Execute(_ context.Context, _ *model.Target, e *model.Event) model.ProcessingResult {
	if x.tokenErr != nil {
		return model.TokenErrorResult(e.ID, x.tokenErr.Error())
	}
	x.delivered = append(x.delivered, e.ID)
	status, ok := x.statuses[e.ID]
	if !ok {
		status = 204
	}
	body := ""
	switch status {
	case 200:
		body = `{"warnings":[{"description":"late"}]}`
	case 401, 404, 409, 500:
		body = `{"errorMessage":"failed"}`
	}
	return model.ClassifyResponse(e.ID, status, []byte(body))
}

// recordingPublisher captures published topics.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

type harness struct {
	store     *memStore
	opener    *fakeOpener
	exec      *fakeExecutor
	publisher *recordingPublisher
	collector *Collector
}

func newHarness(t *testing.T, maxEvents int) *harness {
	t.Helper()
	h := &harness{
		opener:    &fakeOpener{queues: make(map[int64]*fakeQueue), failing: make(map[int64]error)},
		exec:      &fakeExecutor{statuses: make(map[int64]int)},
		publisher: &recordingPublisher{},
	}
	h.store = newMemStore(newTestGroup, testOperations(t))
	h.load(t, maxEvents)
	return h
}

// load builds a fresh collector, as a new process run would.
func (h *harness) load(t *testing.T, maxEvents int) {
	t.Helper()
	c, err := Load(context.Background(), Options{
		Group:     "billing",
		Store:     h.store,
		Queues:    h.opener,
		Executor:  h.exec,
		Publisher: h.publisher,
		MaxEvents: maxEvents,
		RunID:     "run-test",
		Clock:     fixedClock,
	})
	require.NoError(t, err)
	h.collector = c
}
