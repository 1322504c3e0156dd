package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"farewatch/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func watchRow(w *types.Watch) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error { return fillWatch(dest, w) }}
}

// --- Mock Rows for Query ---

// mockRows implements pgx.Rows over a fixed list of watches.
type mockRows struct {
	data    []*types.Watch
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data ...*types.Watch) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return fillWatch(dest, r.data[r.idx])
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// fillWatch writes w into scan destinations in watchColumns order.
func fillWatch(dest []any, w *types.Watch) error {
	str := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	*dest[0].(*string) = w.ID
	*dest[1].(*string) = w.UserID
	*dest[2].(*string) = w.Origin
	*dest[3].(*string) = w.Destination
	*dest[4].(*time.Time) = w.Start
	*dest[5].(*time.Time) = w.End
	*dest[6].(*types.TripType) = w.TripType
	*dest[7].(*int) = w.FlexDays
	*dest[8].(*types.Cabin) = w.Cabin
	*dest[9].(*int) = w.MaxStops
	*dest[10].(*int) = w.Adults
	*dest[11].(*string) = w.Currency
	*dest[12].(*float64) = w.TargetUSD
	*dest[13].(*bool) = w.Active
	*dest[14].(**float64) = w.LastBestUSD
	*dest[15].(**float64) = w.LastNotifiedUSD
	*dest[16].(**string) = str(w.Email)
	*dest[17].(**string) = str(w.Provider)
	*dest[18].(**string) = str(w.LastProvider)
	*dest[19].(**string) = str(w.LastSourceLink)
	*dest[20].(*int64) = w.Version
	*dest[21].(*time.Time) = w.CreatedAt
	*dest[22].(*time.Time) = w.UpdatedAt
	return nil
}

func sampleWatch() *types.Watch {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &types.Watch{
		ID:          "wch_1",
		UserID:      "usr_1",
		Origin:      "JFK",
		Destination: "LHR",
		Start:       time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC),
		TripType:    types.TripRoundTrip,
		FlexDays:    1,
		Cabin:       types.CabinEconomy,
		MaxStops:    1,
		Adults:      1,
		Currency:    "USD",
		TargetUSD:   500,
		Active:      true,
		Email:       "traveler@example.com",
		Version:     3,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}
