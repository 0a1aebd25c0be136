package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

func TestCollector_Collect(t *testing.T) {
	h := newHarness(t, 0)
	h.opener.queues[10] = &fakeQueue{messages: []string{payload("created", "A")}}
	h.opener.queues[11] = &fakeQueue{messages: []string{payload("modified", "B"), payload("deleted", "A")}}

	require.NoError(t, h.collector.Collect(context.Background()))

	// Origins are drained in group order, so ids follow it.
	require.Equal(t, []int64{10, 11}, h.opener.opened)
	require.Equal(t, int64(10), h.store.event(1).OriginID)
	require.Equal(t, []int64{1, 2, 3}, h.exec.delivered)
	require.Equal(t, model.GroupPointers{GroupID: 1, LastExecutedEventID: 3}, h.store.groupPointers)
}

func TestCollector_FailingOriginStopsRetrieval(t *testing.T) {
	h := newHarness(t, 0)
	h.store.seed(1, 11, "old", model.StatePending, t0)
	h.opener.failing[10] = errors.New("queue unavailable")
	h.opener.queues[11] = &fakeQueue{messages: []string{payload("created", "B")}}

	err := h.collector.Collect(context.Background())
	require.ErrorContains(t, err, "queue unavailable")
	require.Equal(t, []int64{10}, h.opener.opened, "origins after the failing one are not attempted")

	// Processing still ran for what was already stored.
	require.Equal(t, []int64{1}, h.exec.delivered)
	require.Len(t, h.opener.queues[11].messages, 1)
}

func TestCollector_BothPhaseErrors(t *testing.T) {
	h := newHarness(t, 0)
	h.store.seed(1, 10, "A", model.StatePending, t0)
	h.opener.failing[10] = errors.New("queue unavailable")
	h.exec.statuses[1] = 503

	err := h.collector.Collect(context.Background())
	require.ErrorContains(t, err, "queue unavailable")
	require.ErrorIs(t, err, ErrProcessingAborted)
}

func TestLoad_ConfigErrors(t *testing.T) {
	ops := testOperations(t)
	for _, tc := range []struct {
		name     string
		group    string
		newGroup func() *model.Group
		wantCfg  bool
	}{
		{"UnknownGroup", "missing", newTestGroup, false},
		{"OriginWithoutTarget", "billing", func() *model.Group {
			g := newTestGroup()
			g.AddOrigin(&model.Origin{ID: 12, Name: "orphan", GroupOrder: 3, TargetID: 77, Queue: model.QueueConfig{Kind: model.QueueJetStream}})
			return g
		}, true},
		{"BadSQLDriver", "billing", func() *model.Group {
			g := newTestGroup()
			g.AddOrigin(&model.Origin{ID: 12, Name: "legacy", GroupOrder: 3, TargetID: 5, Queue: model.QueueConfig{
				Kind: model.QueueSQL, Driver: "oracle", DSN: "x", Command: "c", Consumer: "c",
			}})
			return g
		}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			st := newMemStore(tc.newGroup, ops)
			_, err := Load(context.Background(), Options{
				Group: tc.group, Store: st, Queues: &fakeOpener{}, Executor: &fakeExecutor{}, Clock: fixedClock,
			})
			require.Error(t, err)
			var cfgErr *model.ConfigError
			require.Equal(t, tc.wantCfg, errors.As(err, &cfgErr), "err = %v", err)
			if !tc.wantCfg {
				require.ErrorIs(t, err, store.ErrNotFound)
			}
		})
	}
}

func TestGroupService_CountByState(t *testing.T) {
	h := newHarness(t, 0)
	h.store.seed(1, 10, "A", model.StateOK, t0)
	h.store.seed(2, 11, "B", model.StateError, t0)
	h.store.seed(3, 11, "C", model.StateError, t0)
	h.store.seed(4, 99, "D", model.StateError, t0)

	counts, err := h.collector.Group().CountByState(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[model.State]int{model.StateOK: 1, model.StateError: 2}, counts)
}
