package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/doorgate/internal/config"
	"github.com/your-org/doorgate/internal/models"
)

//go:embed schema/postgres.sql
var postgresSchema string

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates missing tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Owners ---

func (s *PostgresStore) CreateOwner(ctx context.Context, o *models.Owner) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO owners (id, name, email, password_hash) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		o.ID, o.Name, o.Email, o.PasswordHash,
	).Scan(&o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create owner: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOwner(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	return s.getOwner(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetOwnerByEmail(ctx context.Context, email string) (*models.Owner, error) {
	return s.getOwner(ctx, `WHERE email = $1`, email)
}

func (s *PostgresStore) getOwner(ctx context.Context, where string, arg any) (*models.Owner, error) {
	o := &models.Owner{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at FROM owners `+where, arg,
	).Scan(&o.ID, &o.Name, &o.Email, &o.PasswordHash, &o.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get owner: %w", err)
	}
	return o, nil
}

// --- Visitors ---

func (s *PostgresStore) CreateVisitor(ctx context.Context, v *models.Visitor) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO visitors (id, name, profile_image_url) VALUES ($1, $2, $3) RETURNING created_at`,
		v.ID, v.Name, v.ProfileImageURL,
	).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("create visitor: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVisitor(ctx context.Context, id uuid.UUID) (*models.Visitor, error) {
	v := &models.Visitor{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, profile_image_url, created_at FROM visitors WHERE id = $1`, id,
	).Scan(&v.ID, &v.Name, &v.ProfileImageURL, &v.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get visitor: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ListVisitors(ctx context.Context) ([]models.Visitor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, profile_image_url, created_at FROM visitors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list visitors: %w", err)
	}
	defer rows.Close()

	var visitors []models.Visitor
	for rows.Next() {
		var v models.Visitor
		if err := rows.Scan(&v.ID, &v.Name, &v.ProfileImageURL, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan visitor: %w", err)
		}
		visitors = append(visitors, v)
	}
	return visitors, rows.Err()
}

func (s *PostgresStore) UpdateVisitor(ctx context.Context, v *models.Visitor) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE visitors SET name = $1, profile_image_url = $2 WHERE id = $3`,
		v.Name, v.ProfileImageURL, v.ID)
	if err != nil {
		return false, fmt.Errorf("update visitor: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteVisitor(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM visitors WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete visitor: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- Face templates ---

func (s *PostgresStore) AddFaceTemplate(ctx context.Context, t *models.FaceTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	vec := pgvector.NewVector(t.Embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_templates (id, visitor_id, embedding, quality, source_key) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		t.ID, t.VisitorID, vec, t.Quality, t.SourceKey,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("add face template: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFaceTemplates(ctx context.Context) ([]models.FaceTemplate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ft.id, ft.visitor_id, v.name, ft.embedding, ft.quality, ft.source_key, ft.created_at
		 FROM face_templates ft
		 JOIN visitors v ON v.id = ft.visitor_id
		 ORDER BY ft.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list face templates: %w", err)
	}
	defer rows.Close()

	var templates []models.FaceTemplate
	for rows.Next() {
		var t models.FaceTemplate
		var vec pgvector.Vector
		if err := rows.Scan(&t.ID, &t.VisitorID, &t.VisitorName, &vec, &t.Quality, &t.SourceKey, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face template: %w", err)
		}
		t.Embedding = vec.Slice()
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *PostgresStore) CountFaceTemplates(ctx context.Context, visitorID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_templates WHERE visitor_id = $1`, visitorID,
	).Scan(&count)
	return count, err
}

// --- Devices ---

// RegisterDevice upserts by push token; a token moves to the latest owner.
func (s *PostgresStore) RegisterDevice(ctx context.Context, d *models.DeviceRegistration) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO devices (id, owner_id, push_token, platform, device_name, app_version)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (push_token) DO UPDATE SET
		   owner_id = EXCLUDED.owner_id,
		   platform = EXCLUDED.platform,
		   device_name = EXCLUDED.device_name,
		   app_version = EXCLUDED.app_version
		 RETURNING id, created_at`,
		d.ID, d.OwnerID, d.PushToken, d.Platform, d.DeviceName, d.AppVersion,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDevicesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.DeviceRegistration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, push_token, platform, device_name, app_version, created_at
		 FROM devices WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.DeviceRegistration
	for rows.Next() {
		var d models.DeviceRegistration
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.PushToken, &d.Platform, &d.DeviceName, &d.AppVersion, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *PostgresStore) UnregisterDevice(ctx context.Context, ownerID uuid.UUID, token string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM devices WHERE owner_id = $1 AND push_token = $2`, ownerID, token)
	if err != nil {
		return false, fmt.Errorf("unregister device: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) RemoveDevices(ctx context.Context, tokens []string) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM devices WHERE push_token = ANY($1)`, tokens)
	if err != nil {
		return 0, fmt.Errorf("remove devices: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// --- Visits ---

const visitColumns = `id, visitor_id, owner_id, image_url, detected_label, status, created_at, decided_at, unlocked_at`

func scanVisit(row pgx.Row) (*models.Visit, error) {
	v := &models.Visit{}
	err := row.Scan(&v.ID, &v.VisitorID, &v.OwnerID, &v.ImageURL, &v.DetectedLabel,
		&v.Status, &v.CreatedAt, &v.DecidedAt, &v.UnlockedAt)
	return v, err
}

func (s *PostgresStore) CreateVisit(ctx context.Context, v *models.Visit) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO visits (`+visitColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.VisitorID, v.OwnerID, v.ImageURL, v.DetectedLabel, v.Status, v.CreatedAt, v.DecidedAt, v.UnlockedAt)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVisit(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	v, err := scanVisit(s.pool.QueryRow(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

// UpdateVisitStatus sets the status only while the row still holds from.
func (s *PostgresStore) UpdateVisitStatus(ctx context.Context, id uuid.UUID, from, to models.VisitStatus, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE visits SET status = $1, decided_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from)
	if err != nil {
		return false, fmt.Errorf("update visit status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ClaimUnlock(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE visits SET unlocked_at = $1 WHERE id = $2 AND status = 'granted' AND unlocked_at IS NULL`,
		at, id)
	if err != nil {
		return false, fmt.Errorf("claim unlock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListVisits(ctx context.Context, f models.VisitFilter) ([]models.Visit, error) {
	where := "WHERE TRUE"
	var args []interface{}
	argIdx := 1

	if f.OwnerID != nil {
		where += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, *f.OwnerID)
		argIdx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, f.Status)
		argIdx++
	}

	query := fmt.Sprintf(`SELECT %s FROM visits %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		visitColumns, where, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var visits []models.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

func (s *PostgresStore) VisitStats(ctx context.Context, ownerID uuid.UUID, since time.Time) (*models.VisitStats, error) {
	st := &models.VisitStats{}
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'pending'),
		        COUNT(*) FILTER (WHERE status = 'granted'),
		        COUNT(*) FILTER (WHERE status = 'denied'),
		        COUNT(*) FILTER (WHERE created_at >= $2)
		 FROM visits WHERE owner_id = $1`, ownerID, since,
	).Scan(&st.Total, &st.Pending, &st.Granted, &st.Denied, &st.Today)
	if err != nil {
		return nil, fmt.Errorf("visit stats: %w", err)
	}
	return st, nil
}
