package external

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"

	"farewatch/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stubs allow the application to boot in local/test mode without real
// credentials. They log all actions and return predictable values.
// ---------------------------------------------------------------------------

// StubFareProvider returns one deterministic offer per request, priced from
// a hash of the route and dates so repeated runs see stable prices.
type StubFareProvider struct {
	logger *slog.Logger
}

// NewStubFareProvider creates a new StubFareProvider.
func NewStubFareProvider(logger *slog.Logger) *StubFareProvider {
	return &StubFareProvider{logger: logger}
}

func (s *StubFareProvider) Name() string     { return "stub" }
func (s *StubFareProvider) Configured() bool { return true }

func (s *StubFareProvider) Search(ctx context.Context, req types.SearchRequest) ([]types.NormalizedOffer, error) {
	key := ResultCacheKey(s.Name(), req)
	h := fnv.New32a()
	h.Write([]byte(key))
	price := 150 + float64(h.Sum32()%600)

	s.logger.InfoContext(ctx, "stub: fare Search called", "key", key, "price", price)

	offer := types.NormalizedOffer{
		TotalPrice:    price,
		Currency:      req.Currency,
		CarrierCode:   "ZZ",
		StopsOutbound: int(h.Sum32() % 2),
	}
	if req.Dates.Return != nil {
		stops := 0
		offer.StopsReturn = &stops
	}
	return []types.NormalizedOffer{offer}, nil
}

// StubEmailProvider implements EmailProvider by logging calls and returning
// a fake message ID.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Name() string { return "stub" }

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"subject", input.Subject,
		"from", input.From.Address,
		"reference_id", input.ReferenceID,
	)
	return fmt.Sprintf("msg_stub_%s", input.ReferenceID), nil
}

var _ FareProvider = (*StubFareProvider)(nil)
var _ EmailProvider = (*StubEmailProvider)(nil)
