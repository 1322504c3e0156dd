package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"farewatch/internal/types"
)

func sqlContaining(fragment string) any {
	return mock.MatchedBy(func(sql string) bool { return strings.Contains(sql, fragment) })
}

func TestWatchRepository_Get_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)
	want := sampleWatch()
	best := 480.0
	want.LastBestUSD = &best

	db.On("QueryRow", mock.Anything, sqlContaining("deleted_at IS NULL"), []any{"wch_1"}).
		Return(watchRow(want))

	got, err := repo.Get(context.Background(), "wch_1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	db.AssertExpectations(t)
}

func TestWatchRepository_Get_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)

	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Get(context.Background(), "wch_missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeNotFoundWatch, types.CodeOf(err))
}

func TestWatchRepository_Get_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)

	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection reset")})

	_, err := repo.Get(context.Background(), "wch_1")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestWatchRepository_Update_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)

	best := 450.0
	provider := "amadeus"
	link := "https://example.com/book"
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	patch := types.WatchPatch{
		LastBestUSD:     &best,
		LastNotifiedUSD: &best,
		LastProvider:    &provider,
		LastSourceLink:  &link,
		UpdatedAt:       &at,
	}

	updated := sampleWatch()
	updated.LastBestUSD = &best
	updated.LastNotifiedUSD = &best
	updated.LastProvider = provider
	updated.LastSourceLink = link
	updated.Version = 4
	updated.UpdatedAt = at

	var gotSQL string
	var gotArgs []any
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotSQL = args.String(1)
			gotArgs = args.Get(2).([]any)
		}).
		Return(watchRow(updated))

	got, err := repo.Update(context.Background(), "wch_1", patch, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
	assert.Equal(t, link, got.LastSourceLink)

	assert.Contains(t, gotSQL, "last_best_usd = $1")
	assert.Contains(t, gotSQL, "last_notified_usd = $2")
	assert.Contains(t, gotSQL, "last_provider = $3")
	assert.Contains(t, gotSQL, "last_source_link = $4")
	assert.Contains(t, gotSQL, "updated_at = GREATEST(updated_at, $5)")
	assert.Contains(t, gotSQL, "version = version + 1")
	assert.Contains(t, gotSQL, "WHERE id = $6 AND version = $7")

	require.Len(t, gotArgs, 7)
	assert.Equal(t, "wch_1", gotArgs[5])
	assert.Equal(t, int64(3), gotArgs[6])
}

func TestWatchRepository_Update_ClearsEmailWithNull(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)

	empty := ""
	var gotArgs []any
	db.On("QueryRow", mock.Anything, sqlContaining("email = $1"), mock.Anything).
		Run(func(args mock.Arguments) { gotArgs = args.Get(2).([]any) }).
		Return(watchRow(sampleWatch()))

	_, err := repo.Update(context.Background(), "wch_1", types.WatchPatch{Email: &empty}, 3)
	require.NoError(t, err)
	assert.Nil(t, gotArgs[0])
}

func TestWatchRepository_Update_VersionConflict(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)

	current := sampleWatch()
	current.Version = 5
	best := 400.0

	db.On("QueryRow", mock.Anything, sqlContaining("UPDATE watches"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows}).Once()
	db.On("QueryRow", mock.Anything, sqlContaining("SELECT"), []any{"wch_1"}).
		Return(watchRow(current)).Once()

	_, err := repo.Update(context.Background(), "wch_1", types.WatchPatch{LastBestUSD: &best}, 3)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConflictConcurrent, types.CodeOf(err))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, int64(5), appErr.Details["current_version"])
	db.AssertExpectations(t)
}

func TestWatchRepository_Update_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)
	best := 400.0

	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Update(context.Background(), "wch_gone", types.WatchPatch{LastBestUSD: &best}, 1)
	assert.Equal(t, types.ErrCodeNotFoundWatch, types.CodeOf(err))
}

func TestWatchRepository_Update_EmptyPatchReads(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)

	db.On("QueryRow", mock.Anything, sqlContaining("SELECT"), []any{"wch_1"}).
		Return(watchRow(sampleWatch()))

	got, err := repo.Update(context.Background(), "wch_1", types.WatchPatch{}, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	db.AssertNotCalled(t, "QueryRow", mock.Anything, sqlContaining("UPDATE"), mock.Anything)
}

func TestWatchRepository_SetActive(t *testing.T) {
	t.Run("pause active watch", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWatchRepository(db)
		paused := sampleWatch()
		paused.Active = false

		db.On("QueryRow", mock.Anything, sqlContaining("active <> $2"), []any{"wch_1", false}).
			Return(watchRow(paused))

		got, err := repo.SetActive(context.Background(), "wch_1", false)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})

	t.Run("already paused", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWatchRepository(db)
		paused := sampleWatch()
		paused.Active = false

		db.On("QueryRow", mock.Anything, sqlContaining("UPDATE"), mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})
		db.On("QueryRow", mock.Anything, sqlContaining("SELECT"), mock.Anything).
			Return(watchRow(paused))

		_, err := repo.SetActive(context.Background(), "wch_1", false)
		assert.Equal(t, types.ErrCodeConflictPaused, types.CodeOf(err))
	})

	t.Run("already active", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWatchRepository(db)

		db.On("QueryRow", mock.Anything, sqlContaining("UPDATE"), mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})
		db.On("QueryRow", mock.Anything, sqlContaining("SELECT"), mock.Anything).
			Return(watchRow(sampleWatch()))

		_, err := repo.SetActive(context.Background(), "wch_1", true)
		assert.Equal(t, types.ErrCodeConflictActive, types.CodeOf(err))
	})
}

func TestWatchRepository_Delete(t *testing.T) {
	t.Run("soft deletes", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWatchRepository(db)
		db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
			return strings.Contains(sql, "deleted_at = NOW()") &&
				strings.Contains(sql, "updated_at = GREATEST(updated_at, NOW())") &&
				strings.Contains(sql, "version = version + 1")
		}), []any{"wch_1"}).
			Return(pgconn.NewCommandTag("UPDATE 1"), nil)

		require.NoError(t, repo.Delete(context.Background(), "wch_1"))
		db.AssertExpectations(t)
	})

	t.Run("missing watch", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWatchRepository(db)
		db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
			Return(pgconn.NewCommandTag("UPDATE 0"), nil)

		err := repo.Delete(context.Background(), "wch_1")
		assert.Equal(t, types.ErrCodeNotFoundWatch, types.CodeOf(err))
	})

	t.Run("database failure", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWatchRepository(db)
		db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
			Return(pgconn.CommandTag{}, errors.New("boom"))

		err := repo.Delete(context.Background(), "wch_1")
		assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	})
}

func TestWatchRepository_ListActive_Paging(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)

	a, b, c := sampleWatch(), sampleWatch(), sampleWatch()
	a.ID, b.ID, c.ID = "wch_a", "wch_b", "wch_c"
	today := time.Date(2026, 4, 2, 15, 30, 0, 0, time.UTC)

	var gotArgs []any
	db.On("Query", mock.Anything, sqlContaining("end_date + flex_days >= $1::date"), mock.Anything).
		Run(func(args mock.Arguments) { gotArgs = args.Get(2).([]any) }).
		Return(newMockRows(a, b, c), nil)

	got, page, err := repo.ListActive(context.Background(), ListActiveParams{Cursor: "wch_0", Limit: 2, Today: today})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "wch_a", got[0].ID)
	assert.True(t, page.HasMore)
	assert.Equal(t, "wch_b", page.NextCursor)

	assert.Equal(t, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), gotArgs[0])
	assert.Equal(t, "wch_0", gotArgs[1])
	assert.Equal(t, 3, gotArgs[2])
}

func TestWatchRepository_ListActive_LastPage(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)

	db.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(newMockRows(sampleWatch()), nil)

	got, page, err := repo.ListActive(context.Background(), ListActiveParams{Limit: 10, Today: time.Now()})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
}

func TestWatchRepository_ListActive_Errors(t *testing.T) {
	t.Run("query fails", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWatchRepository(db)
		db.On("Query", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("timeout"))

		_, _, err := repo.ListActive(context.Background(), ListActiveParams{})
		assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	})

	t.Run("iteration fails", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewWatchRepository(db)
		rows := newMockRows()
		rows.errVal = errors.New("broken pipe")
		db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)

		_, _, err := repo.ListActive(context.Background(), ListActiveParams{})
		assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
		assert.True(t, rows.closed)
	})
}

func TestWatchRepository_PurgeDeleted(t *testing.T) {
	db := new(mockDBTX)
	repo := NewWatchRepository(db)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	db.On("Exec", mock.Anything, sqlContaining("DELETE FROM watches"), []any{cutoff}).
		Return(pgconn.NewCommandTag("DELETE 4"), nil)

	n, err := repo.PurgeDeleted(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestApplySchema(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, sqlContaining("CREATE TABLE IF NOT EXISTS watches"), mock.Anything).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil)

	require.NoError(t, ApplySchema(context.Background(), db))
	db.AssertExpectations(t)
}
