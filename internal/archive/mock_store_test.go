package archive

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/store"
)

// mockStore serves QueryEvents from memory. Other Store methods are not
// used by the exporter and panic through the nil embedded interface.
type mockStore struct {
	store.Store
	events  []*model.Event
	filters []store.EventFilter
	err     error
}

func (m *mockStore) QueryEvents(_ context.Context, f store.EventFilter, _ *model.Operations) ([]*model.Event, error) {
	m.filters = append(m.filters, f)
	if m.err != nil {
		return nil, m.err
	}
	var out []*model.Event
	for _, e := range m.events {
		if !f.UpdatedSince.IsZero() && e.UpdatedAt.Before(f.UpdatedSince) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

var errBoom = errors.New("boom")
