package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DALE-GH/location-tracker/internal/domain"
	"github.com/DALE-GH/location-tracker/internal/geo"
	"github.com/DALE-GH/location-tracker/pkg/e"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const locationColumns = `id, type, note, latitude, longitude, observed_at, address, created_at, updated_at`

type LocationRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewLocationRepo(pool *pgxpool.Pool, logger *slog.Logger) *LocationRepo {
	return &LocationRepo{pool: pool, logger: logger}
}

// Upsert inserts or overwrites the row keyed by loc.ID. An absent address on the
// incoming record never clears one that is already stored.
func (p *LocationRepo) Upsert(ctx context.Context, loc *domain.Location) error {
	const op = "postgres.Location.Upsert"

	if loc == nil {
		return fmt.Errorf("%s: %w", op, e.ErrInvalidInput)
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now().UTC()
	}

	const query = `
		INSERT INTO locations (id, type, note, latitude, longitude, observed_at, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET type        = EXCLUDED.type,
			note        = EXCLUDED.note,
			latitude    = EXCLUDED.latitude,
			longitude   = EXCLUDED.longitude,
			observed_at = EXCLUDED.observed_at,
			address     = COALESCE(EXCLUDED.address, locations.address),
			updated_at  = NOW()
		RETURNING ` + locationColumns

	got, err := scanLocation(p.pool.QueryRow(ctx, query,
		loc.ID,
		loc.Type,
		loc.Note,
		loc.Lat,
		loc.Lng,
		loc.Timestamp,
		loc.Address,
	))
	if err != nil {
		p.logger.Error("db upsert failed",
			slog.String("op", op),
			slog.Int64("id", loc.ID),
			slog.Any("error", err),
		)
		return e.WrapError(ctx, op, err)
	}

	*loc = *got
	return nil
}

// InsertIfAbsent is the import path: existing ids are left untouched.
func (p *LocationRepo) InsertIfAbsent(ctx context.Context, loc *domain.Location) (bool, error) {
	const op = "postgres.Location.InsertIfAbsent"

	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now().UTC()
	}

	const query = `
		INSERT INTO locations (id, type, note, latitude, longitude, observed_at, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	cmd, err := p.pool.Exec(ctx, query,
		loc.ID,
		loc.Type,
		loc.Note,
		loc.Lat,
		loc.Lng,
		loc.Timestamp,
		loc.Address,
	)
	if err != nil {
		p.logger.Error("db exec failed", slog.String("op", op), slog.Int64("id", loc.ID), slog.Any("error", err))
		return false, e.WrapError(ctx, op, err)
	}

	return cmd.RowsAffected() == 1, nil
}

func (p *LocationRepo) Get(ctx context.Context, id int64) (*domain.Location, error) {
	const op = "postgres.Location.Get"

	const query = `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`

	loc, err := scanLocation(p.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		p.logger.Error("db queryrow scan failed", slog.String("op", op), slog.Int64("id", id), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}

	return loc, nil
}

func (p *LocationRepo) List(ctx context.Context, f domain.ListFilter) ([]*domain.Location, error) {
	const op = "postgres.Location.List"

	f = f.Normalize()

	const query = `
		SELECT ` + locationColumns + `
		FROM locations
		WHERE ($1::text = '' OR type = $1::text)
		ORDER BY observed_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := p.pool.Query(ctx, query, string(f.Type), f.Limit, f.Offset)
	if err != nil {
		p.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}

	return p.collect(ctx, op, rows)
}

func (p *LocationRepo) All(ctx context.Context) ([]*domain.Location, error) {
	const op = "postgres.Location.All"

	const query = `SELECT ` + locationColumns + ` FROM locations ORDER BY observed_at DESC, id DESC`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		p.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}

	return p.collect(ctx, op, rows)
}

// Update applies a partial patch. Nil fields bind as NULL and COALESCE keeps the
// stored value, so the statement text never changes with the patch shape.
func (p *LocationRepo) Update(ctx context.Context, id int64, patch domain.LocationPatch) (*domain.Location, error) {
	const op = "postgres.Location.Update"

	const query = `
		UPDATE locations
		SET note       = COALESCE($2::text, note),
			address    = COALESCE($3::text, address),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + locationColumns

	loc, err := scanLocation(p.pool.QueryRow(ctx, query, id, patch.Note, patch.Address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		p.logger.Error("db update failed", slog.String("op", op), slog.Int64("id", id), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}

	return loc, nil
}

func (p *LocationRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgres.Location.Delete"

	cmd, err := p.pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		p.logger.Error("db exec failed", slog.String("op", op), slog.Int64("id", id), slog.Any("error", err))
		return e.WrapError(ctx, op, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, e.ErrNotFound)
	}

	return nil
}

func (p *LocationRepo) DeleteAll(ctx context.Context) (int64, error) {
	const op = "postgres.Location.DeleteAll"

	cmd, err := p.pool.Exec(ctx, `DELETE FROM locations`)
	if err != nil {
		p.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err))
		return 0, e.WrapError(ctx, op, err)
	}

	return cmd.RowsAffected(), nil
}

// Nearby prefilters with a square box of radius/111320 degrees and ranks the
// survivors by haversine distance. Rows in the box corners are kept.
func (p *LocationRepo) Nearby(ctx context.Context, q domain.NearbyQuery) ([]*domain.NearbyLocation, error) {
	const op = "postgres.Location.Nearby"

	const query = `
		SELECT ` + locationColumns + `, distance
		FROM (
			SELECT ` + locationColumns + `,
				2 * $5::double precision * ASIN(LEAST(1, SQRT(
					POWER(SIN(RADIANS(latitude - $1::double precision) / 2), 2) +
					COS(RADIANS($1::double precision)) * COS(RADIANS(latitude)) *
					POWER(SIN(RADIANS(longitude - $2::double precision) / 2), 2)
				))) AS distance
			FROM locations
			WHERE latitude  BETWEEN $1::double precision - $3::double precision AND $1::double precision + $3::double precision
			  AND longitude BETWEEN $2::double precision - $3::double precision AND $2::double precision + $3::double precision
			  AND ($4::text = '' OR type = $4::text)
		) AS candidates
		ORDER BY distance ASC, id ASC
		LIMIT $6
	`

	rows, err := p.pool.Query(ctx, query,
		q.Lat,
		q.Lng,
		geo.RadiusDegrees(q.RadiusM),
		string(q.Type),
		geo.EarthRadiusM,
		geo.MaxNearbyResults,
	)
	if err != nil {
		p.logger.Error("db query failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	out := make([]*domain.NearbyLocation, 0, 8)
	for rows.Next() {
		var (
			n       domain.NearbyLocation
			created time.Time
			updated time.Time
		)
		if err := rows.Scan(
			&n.ID,
			&n.Type,
			&n.Note,
			&n.Lat,
			&n.Lng,
			&n.Timestamp,
			&n.Address,
			&created,
			&updated,
			&n.DistanceM,
		); err != nil {
			p.logger.Error("row scan failed", slog.String("op", op), slog.Any("error", err))
			return nil, e.WrapError(ctx, op, err)
		}
		n.CreatedAt, n.UpdatedAt = &created, &updated
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		p.logger.Error("rows err", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}

	return out, nil
}

func (p *LocationRepo) Stats(ctx context.Context) (*domain.LocationStats, error) {
	const op = "postgres.Location.Stats"

	const query = `
		SELECT COUNT(*),
			   COUNT(*) FILTER (WHERE type = 'plant'),
			   COUNT(*) FILTER (WHERE type = 'litter'),
			   COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW() AT TIME ZONE 'UTC') AT TIME ZONE 'UTC')
		FROM locations
	`

	var s domain.LocationStats
	if err := p.pool.QueryRow(ctx, query).Scan(&s.Total, &s.Plants, &s.Litter, &s.SyncedToday); err != nil {
		p.logger.Error("db queryrow scan failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}

	return &s, nil
}

func (p *LocationRepo) collect(ctx context.Context, op string, rows pgx.Rows) ([]*domain.Location, error) {
	defer rows.Close()

	locations := make([]*domain.Location, 0, 16)
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			p.logger.Error("row scan failed", slog.String("op", op), slog.Any("error", err))
			return nil, e.WrapError(ctx, op, err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		p.logger.Error("rows err", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}

	return locations, nil
}

func scanLocation(row pgx.Row) (*domain.Location, error) {
	var (
		loc     domain.Location
		created time.Time
		updated time.Time
	)
	if err := row.Scan(
		&loc.ID,
		&loc.Type,
		&loc.Note,
		&loc.Lat,
		&loc.Lng,
		&loc.Timestamp,
		&loc.Address,
		&created,
		&updated,
	); err != nil {
		return nil, err
	}
	loc.CreatedAt, loc.UpdatedAt = &created, &updated
	return &loc, nil
}
