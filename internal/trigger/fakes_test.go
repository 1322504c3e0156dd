package trigger

import (
	"context"
	"sync"
	"time"

	"farewatch/internal/notifications/email"
	"farewatch/internal/types"
)

// scriptedProvider answers each Search call with the next scripted step.
type scriptedProvider struct {
	name  string
	steps []func(ctx context.Context, req types.SearchRequest) ([]types.NormalizedOffer, error)
	calls []types.SearchRequest
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Search(ctx context.Context, req types.SearchRequest) ([]types.NormalizedOffer, error) {
	i := len(p.calls)
	p.calls = append(p.calls, req)
	if i >= len(p.steps) {
		return nil, nil
	}
	return p.steps[i](ctx, req)
}

func offers(list ...types.NormalizedOffer) func(context.Context, types.SearchRequest) ([]types.NormalizedOffer, error) {
	return func(context.Context, types.SearchRequest) ([]types.NormalizedOffer, error) { return list, nil }
}

func failWith(code types.ErrorCode) func(context.Context, types.SearchRequest) ([]types.NormalizedOffer, error) {
	return func(context.Context, types.SearchRequest) ([]types.NormalizedOffer, error) {
		return nil, types.NewAppError(code, string(code), nil)
	}
}

func offer(price float64, carrier string, stops int) types.NormalizedOffer {
	return types.NormalizedOffer{TotalPrice: price, Currency: "USD", CarrierCode: carrier, StopsOutbound: stops}
}

// memStore is an in-memory WatchStore with version checks.
type memStore struct {
	mu      sync.Mutex
	watches map[string]types.Watch
	updates int
	// beforeUpdate runs inside Update before the version check.
	beforeUpdate func(w *types.Watch)
}

func newMemStore(ws ...types.Watch) *memStore {
	s := &memStore{watches: map[string]types.Watch{}}
	for _, w := range ws {
		s.watches[w.ID] = w
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*types.Watch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundWatch, "watch not found", nil)
	}
	return &w, nil
}

func (s *memStore) Update(_ context.Context, id string, p types.WatchPatch, expected int64) (*types.Watch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundWatch, "watch not found", nil)
	}
	if s.beforeUpdate != nil {
		s.beforeUpdate(&w)
	}
	if w.Version != expected {
		return nil, types.NewAppError(types.ErrCodeConflictConcurrent, "watch was modified concurrently", nil)
	}
	if p.LastBestUSD != nil {
		w.LastBestUSD = p.LastBestUSD
	}
	if p.LastNotifiedUSD != nil {
		w.LastNotifiedUSD = p.LastNotifiedUSD
	}
	if p.LastProvider != nil {
		w.LastProvider = *p.LastProvider
	}
	if p.LastSourceLink != nil {
		w.LastSourceLink = *p.LastSourceLink
	}
	if p.UpdatedAt != nil && p.UpdatedAt.After(w.UpdatedAt) {
		w.UpdatedAt = *p.UpdatedAt
	}
	w.Version++
	s.watches[id] = w
	s.updates++
	return &w, nil
}

type staticResolver struct {
	provider types.FareSearchProvider
	err      error
	asked    []string
}

func (r *staticResolver) Resolve(name string) (types.FareSearchProvider, error) {
	r.asked = append(r.asked, name)
	return r.provider, r.err
}

type linkFunc func(types.NormalizedOffer, types.Route, types.DateCombination) string

func (f linkFunc) Build(o types.NormalizedOffer, r types.Route, d types.DateCombination) string {
	return f(o, r, d)
}

type recordingNotifier struct {
	sent   []types.OutboundMessage
	sendFn func(msg types.OutboundMessage) (types.DeliveryReport, error)
}

func (n *recordingNotifier) Send(_ context.Context, msg types.OutboundMessage) (types.DeliveryReport, error) {
	n.sent = append(n.sent, msg)
	if n.sendFn != nil {
		return n.sendFn(msg)
	}
	return types.DeliveryReport{Delivered: true, MessageID: "msg-1", ProviderName: "test"}, nil
}

type stubRenderer struct {
	alerts []types.PriceAlert
	err    error
}

func (r *stubRenderer) Render(a types.PriceAlert) (*email.RenderedEmail, error) {
	r.alerts = append(r.alerts, a)
	if r.err != nil {
		return nil, r.err
	}
	return &email.RenderedEmail{Subject: "alert", BodyHTML: "<p>alert</p>", BodyText: "alert"}, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingMetrics struct {
	outcomes []*types.TriggerOutcome
}

func (m *recordingMetrics) RecordTriggerOutcome(_ context.Context, o *types.TriggerOutcome) {
	m.outcomes = append(m.outcomes, o)
}
func (m *recordingMetrics) RecordWatchesEnqueued(context.Context, int)              {}
func (m *recordingMetrics) RecordAPILatency(context.Context, string, time.Duration) {}
