package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"farewatch/internal/types"
)

// WatchRepository provides data access for the watches table. Every update
// bumps version, which Update uses for optimistic concurrency.
type WatchRepository struct {
	db DBTX
}

// NewWatchRepository creates a new WatchRepository backed by the given
// database connection (pool or transaction).
func NewWatchRepository(db DBTX) *WatchRepository {
	return &WatchRepository{db: db}
}

// watchColumns defines the standard set of columns selected for watch queries.
// Money columns are NUMERIC and cast to float8 for scanning.
const watchColumns = `id, user_id, origin, destination, start_date, end_date,
	trip_type, flex_days, cabin, max_stops, adults, currency,
	target_usd::float8, active, last_best_usd::float8, last_notified_usd::float8,
	email, provider, last_provider, last_source_link,
	version, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// scanWatch scans one row in watchColumns order. It serves both pgx.Row and
// pgx.Rows.
func scanWatch(row scanner) (*types.Watch, error) {
	var w types.Watch
	var email, provider, lastProvider, lastLink *string

	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Origin,
		&w.Destination,
		&w.Start,
		&w.End,
		&w.TripType,
		&w.FlexDays,
		&w.Cabin,
		&w.MaxStops,
		&w.Adults,
		&w.Currency,
		&w.TargetUSD,
		&w.Active,
		&w.LastBestUSD,
		&w.LastNotifiedUSD,
		&email,
		&provider,
		&lastProvider,
		&lastLink,
		&w.Version,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Email = deref(email)
	w.Provider = deref(provider)
	w.LastProvider = deref(lastProvider)
	w.LastSourceLink = deref(lastLink)
	return &w, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Get returns the watch with the given id. Deleted watches are not found.
func (r *WatchRepository) Get(ctx context.Context, id string) (*types.Watch, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+watchColumns+`
		 FROM watches
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)

	w, err := scanWatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundWatch, "watch not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve watch", err)
	}
	return w, nil
}

// Update applies the non-nil fields of patch if the stored version still
// equals expectedVersion. updated_at never moves backwards: it becomes the
// later of its current value and patch.UpdatedAt (or NOW()).
//
// Errors:
//   - ErrCodeNotFoundWatch when the watch does not exist
//   - ErrCodeConflictConcurrent when the version changed since it was read
func (r *WatchRepository) Update(ctx context.Context, id string, patch types.WatchPatch, expectedVersion int64) (*types.Watch, error) {
	sets, args := buildPatch(patch)
	if len(sets) == 0 && patch.UpdatedAt == nil {
		return r.Get(ctx, id)
	}

	args = append(args, id, expectedVersion)
	query := fmt.Sprintf(
		`UPDATE watches SET %s
		 WHERE id = $%d AND version = $%d AND deleted_at IS NULL
		 RETURNING %s`,
		strings.Join(sets, ", "),
		len(args)-1, len(args),
		watchColumns,
	)

	w, err := scanWatch(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update watch", err)
	}

	// Nothing matched: tell a missing watch apart from a stale version.
	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, types.NewAppErrorWithDetails(
		types.ErrCodeConflictConcurrent,
		"watch was modified concurrently",
		nil,
		map[string]any{"expected_version": expectedVersion, "current_version": current.Version},
	)
}

// buildPatch renders the SET clauses for patch. Placeholders are numbered
// from $1 in the order of the returned args. version and updated_at are
// always included.
func buildPatch(p types.WatchPatch) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Active != nil {
		add("active", *p.Active)
	}
	if p.TargetUSD != nil {
		add("target_usd", *p.TargetUSD)
	}
	if p.Email != nil {
		add("email", nullable(*p.Email))
	}
	if p.LastBestUSD != nil {
		add("last_best_usd", *p.LastBestUSD)
	}
	if p.LastNotifiedUSD != nil {
		add("last_notified_usd", *p.LastNotifiedUSD)
	}
	if p.LastProvider != nil {
		add("last_provider", nullable(*p.LastProvider))
	}
	if p.LastSourceLink != nil {
		add("last_source_link", nullable(*p.LastSourceLink))
	}
	if len(sets) == 0 && p.UpdatedAt == nil {
		return nil, nil
	}

	if p.UpdatedAt != nil {
		args = append(args, *p.UpdatedAt)
		sets = append(sets, fmt.Sprintf("updated_at = GREATEST(updated_at, $%d)", len(args)))
	} else {
		sets = append(sets, "updated_at = GREATEST(updated_at, NOW())")
	}
	sets = append(sets, "version = version + 1")
	return sets, args
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SetActive pauses or resumes a watch. Setting the state it already has is
// a conflict (ErrCodeConflictPaused / ErrCodeConflictActive).
func (r *WatchRepository) SetActive(ctx context.Context, id string, active bool) (*types.Watch, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE watches SET
			active = $2,
			updated_at = GREATEST(updated_at, NOW()),
			version = version + 1
		 WHERE id = $1 AND active <> $2 AND deleted_at IS NULL
		 RETURNING `+watchColumns,
		id, active,
	)

	w, err := scanWatch(row)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update watch state", err)
	}

	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	if active {
		return nil, types.NewAppError(types.ErrCodeConflictActive, "watch is already active", nil)
	}
	return nil, types.NewAppError(types.ErrCodeConflictPaused, "watch is already paused", nil)
}

// Delete soft-deletes a watch. Deleted watches are never triggered again.
func (r *WatchRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE watches SET
			deleted_at = NOW(),
			active = FALSE,
			updated_at = GREATEST(updated_at, NOW()),
			version = version + 1
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete watch", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundWatch, "watch not found", nil)
	}
	return nil
}

// PurgeDeleted permanently removes watches soft-deleted before the cutoff and
// returns how many were removed.
func (r *WatchRepository) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM watches WHERE deleted_at IS NOT NULL AND deleted_at < $1`,
		before,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge deleted watches", err)
	}
	return tag.RowsAffected(), nil
}

// ListActiveParams controls ListActive paging.
type ListActiveParams struct {
	// Cursor is the id of the last watch of the previous page.
	Cursor string
	Limit  int
	// Today excludes watches whose window (including flex days) has passed.
	Today time.Time
}

// ListActive pages through active watches ordered by id. Watches whose
// latest possible departure is before Today are skipped.
func (r *WatchRepository) ListActive(ctx context.Context, params ListActiveParams) ([]*types.Watch, types.PageInfo, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+watchColumns+`
		 FROM watches
		 WHERE active AND deleted_at IS NULL
		   AND end_date + flex_days >= $1::date
		   AND id > $2
		 ORDER BY id
		 LIMIT $3`,
		types.Day(params.Today), params.Cursor, limit+1,
	)
	if err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to list active watches", err)
	}
	defer rows.Close()

	var results []*types.Watch
	for rows.Next() {
		w, scanErr := scanWatch(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan watch row", scanErr)
		}
		results = append(results, w)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, types.NewAppError(types.ErrCodeInternalDB, "error iterating watch rows", err)
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].ID
		results = results[:limit]
	}
	return results, pageInfo, nil
}

var _ types.WatchStore = (*WatchRepository)(nil)
