package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/your-org/doorgate/internal/models"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SQLiteStore is the single-node Store. Timestamps are unix milliseconds and
// embeddings are little-endian float32 blobs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dsn, which may be a
// path or a file: URI.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		slog.Warn("sqlite WAL mode unavailable", "error", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func uuidPtrString(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func (s *SQLiteStore) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *SQLiteStore) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}
	return s.db.QueryRowContext(ctx, query, args...), nil
}

func (s *SQLiteStore) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}
	return s.db.QueryContext(ctx, query, args...)
}

func affected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

// --- Owners ---

func (s *SQLiteStore) CreateOwner(ctx context.Context, o *models.Owner) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now().UTC()
	_, err := s.exec(ctx, qb.Insert("owners").
		Columns("id", "name", "email", "password_hash", "created_at").
		Values(o.ID.String(), o.Name, o.Email, o.PasswordHash, toMillis(o.CreatedAt)))
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicate
		}
		return fmt.Errorf("create owner: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetOwner(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	return s.getOwner(ctx, sq.Eq{"id": id.String()})
}

func (s *SQLiteStore) GetOwnerByEmail(ctx context.Context, email string) (*models.Owner, error) {
	return s.getOwner(ctx, sq.Eq{"email": email})
}

func (s *SQLiteStore) getOwner(ctx context.Context, where sq.Eq) (*models.Owner, error) {
	row, err := s.queryRow(ctx, qb.Select("id", "name", "email", "password_hash", "created_at").
		From("owners").Where(where).Limit(1))
	if err != nil {
		return nil, err
	}
	o := &models.Owner{}
	var created int64
	if err := row.Scan(&o.ID, &o.Name, &o.Email, &o.PasswordHash, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get owner: %w", err)
	}
	o.CreatedAt = fromMillis(created)
	return o, nil
}

// --- Visitors ---

func (s *SQLiteStore) CreateVisitor(ctx context.Context, v *models.Visitor) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	v.CreatedAt = time.Now().UTC()
	_, err := s.exec(ctx, qb.Insert("visitors").
		Columns("id", "name", "profile_image_url", "created_at").
		Values(v.ID.String(), v.Name, v.ProfileImageURL, toMillis(v.CreatedAt)))
	if err != nil {
		return fmt.Errorf("create visitor: %w", err)
	}
	return nil
}

func scanVisitor(scanner interface{ Scan(...any) error }) (*models.Visitor, error) {
	v := &models.Visitor{}
	var created int64
	if err := scanner.Scan(&v.ID, &v.Name, &v.ProfileImageURL, &created); err != nil {
		return nil, err
	}
	v.CreatedAt = fromMillis(created)
	return v, nil
}

func (s *SQLiteStore) GetVisitor(ctx context.Context, id uuid.UUID) (*models.Visitor, error) {
	row, err := s.queryRow(ctx, qb.Select("id", "name", "profile_image_url", "created_at").
		From("visitors").Where(sq.Eq{"id": id.String()}))
	if err != nil {
		return nil, err
	}
	v, err := scanVisitor(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get visitor: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) ListVisitors(ctx context.Context) ([]models.Visitor, error) {
	rows, err := s.query(ctx, qb.Select("id", "name", "profile_image_url", "created_at").
		From("visitors").OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("list visitors: %w", err)
	}
	defer rows.Close()

	var visitors []models.Visitor
	for rows.Next() {
		v, err := scanVisitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visitor: %w", err)
		}
		visitors = append(visitors, *v)
	}
	return visitors, rows.Err()
}

func (s *SQLiteStore) UpdateVisitor(ctx context.Context, v *models.Visitor) (bool, error) {
	res, err := s.exec(ctx, qb.Update("visitors").
		Set("name", v.Name).
		Set("profile_image_url", v.ProfileImageURL).
		Where(sq.Eq{"id": v.ID.String()}))
	if err != nil {
		return false, fmt.Errorf("update visitor: %w", err)
	}
	return affected(res) > 0, nil
}

func (s *SQLiteStore) DeleteVisitor(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.exec(ctx, qb.Delete("visitors").Where(sq.Eq{"id": id.String()}))
	if err != nil {
		return false, fmt.Errorf("delete visitor: %w", err)
	}
	return affected(res) > 0, nil
}

// --- Face templates ---

func (s *SQLiteStore) AddFaceTemplate(ctx context.Context, t *models.FaceTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()
	_, err := s.exec(ctx, qb.Insert("face_templates").
		Columns("id", "visitor_id", "embedding", "quality", "source_key", "created_at").
		Values(t.ID.String(), t.VisitorID.String(), encodeEmbedding(t.Embedding), t.Quality, t.SourceKey, toMillis(t.CreatedAt)))
	if err != nil {
		return fmt.Errorf("add face template: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListFaceTemplates(ctx context.Context) ([]models.FaceTemplate, error) {
	rows, err := s.query(ctx, qb.Select("ft.id", "ft.visitor_id", "v.name", "ft.embedding", "ft.quality", "ft.source_key", "ft.created_at").
		From("face_templates ft").
		Join("visitors v ON v.id = ft.visitor_id").
		OrderBy("ft.created_at", "ft.id"))
	if err != nil {
		return nil, fmt.Errorf("list face templates: %w", err)
	}
	defer rows.Close()

	var templates []models.FaceTemplate
	for rows.Next() {
		var t models.FaceTemplate
		var blob []byte
		var created int64
		if err := rows.Scan(&t.ID, &t.VisitorID, &t.VisitorName, &blob, &t.Quality, &t.SourceKey, &created); err != nil {
			return nil, fmt.Errorf("scan face template: %w", err)
		}
		t.Embedding = decodeEmbedding(blob)
		t.CreatedAt = fromMillis(created)
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *SQLiteStore) CountFaceTemplates(ctx context.Context, visitorID uuid.UUID) (int, error) {
	row, err := s.queryRow(ctx, qb.Select("COUNT(*)").From("face_templates").
		Where(sq.Eq{"visitor_id": visitorID.String()}))
	if err != nil {
		return 0, err
	}
	var n int
	return n, row.Scan(&n)
}

// --- Devices ---

func (s *SQLiteStore) RegisterDevice(ctx context.Context, d *models.DeviceRegistration) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	row, err := s.queryRow(ctx, qb.Insert("devices").
		Columns("id", "owner_id", "push_token", "platform", "device_name", "app_version", "created_at").
		Values(d.ID.String(), d.OwnerID.String(), d.PushToken, string(d.Platform), d.DeviceName, d.AppVersion, toMillis(now)).
		Suffix("ON CONFLICT(push_token) DO UPDATE SET").
		Suffix("owner_id = excluded.owner_id,").
		Suffix("platform = excluded.platform,").
		Suffix("device_name = excluded.device_name,").
		Suffix("app_version = excluded.app_version").
		Suffix("RETURNING id, created_at"))
	if err != nil {
		return err
	}
	var created int64
	if err := row.Scan(&d.ID, &created); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	d.CreatedAt = fromMillis(created)
	return nil
}

func (s *SQLiteStore) ListDevicesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.DeviceRegistration, error) {
	rows, err := s.query(ctx, qb.Select("id", "owner_id", "push_token", "platform", "device_name", "app_version", "created_at").
		From("devices").
		Where(sq.Eq{"owner_id": ownerID.String()}).
		OrderBy("created_at", "id"))
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.DeviceRegistration
	for rows.Next() {
		var d models.DeviceRegistration
		var created int64
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.PushToken, &d.Platform, &d.DeviceName, &d.AppVersion, &created); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.CreatedAt = fromMillis(created)
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *SQLiteStore) UnregisterDevice(ctx context.Context, ownerID uuid.UUID, token string) (bool, error) {
	res, err := s.exec(ctx, qb.Delete("devices").
		Where(sq.Eq{"owner_id": ownerID.String(), "push_token": token}))
	if err != nil {
		return false, fmt.Errorf("unregister device: %w", err)
	}
	return affected(res) > 0, nil
}

func (s *SQLiteStore) RemoveDevices(ctx context.Context, tokens []string) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res, err := s.exec(ctx, qb.Delete("devices").Where(sq.Eq{"push_token": tokens}))
	if err != nil {
		return 0, fmt.Errorf("remove devices: %w", err)
	}
	return affected(res), nil
}

// --- Visits ---

var visitCols = []string{"id", "visitor_id", "owner_id", "image_url", "detected_label", "status", "created_at", "decided_at", "unlocked_at"}

func scanSQLiteVisit(scanner interface{ Scan(...any) error }) (*models.Visit, error) {
	v := &models.Visit{}
	var visitorID sql.NullString
	var created int64
	var decided, unlocked sql.NullInt64
	if err := scanner.Scan(&v.ID, &visitorID, &v.OwnerID, &v.ImageURL, &v.DetectedLabel,
		&v.Status, &created, &decided, &unlocked); err != nil {
		return nil, err
	}
	if visitorID.Valid {
		id, err := uuid.Parse(visitorID.String)
		if err != nil {
			return nil, fmt.Errorf("parse visitor id: %w", err)
		}
		v.VisitorID = &id
	}
	v.CreatedAt = fromMillis(created)
	v.DecidedAt = timePtr(decided)
	v.UnlockedAt = timePtr(unlocked)
	return v, nil
}

func (s *SQLiteStore) CreateVisit(ctx context.Context, v *models.Visit) error {
	_, err := s.exec(ctx, qb.Insert("visits").
		Columns(visitCols...).
		Values(v.ID.String(), uuidPtrString(v.VisitorID), v.OwnerID.String(), v.ImageURL, v.DetectedLabel,
			string(v.Status), toMillis(v.CreatedAt), nullMillis(v.DecidedAt), nullMillis(v.UnlockedAt)))
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetVisit(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	row, err := s.queryRow(ctx, qb.Select(visitCols...).From("visits").Where(sq.Eq{"id": id.String()}))
	if err != nil {
		return nil, err
	}
	v, err := scanSQLiteVisit(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

func (s *SQLiteStore) UpdateVisitStatus(ctx context.Context, id uuid.UUID, from, to models.VisitStatus, at time.Time) (bool, error) {
	res, err := s.exec(ctx, qb.Update("visits").
		Set("status", string(to)).
		Set("decided_at", toMillis(at)).
		Where(sq.Eq{"id": id.String(), "status": string(from)}))
	if err != nil {
		return false, fmt.Errorf("update visit status: %w", err)
	}
	return affected(res) == 1, nil
}

func (s *SQLiteStore) ClaimUnlock(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := s.exec(ctx, qb.Update("visits").
		Set("unlocked_at", toMillis(at)).
		Where(sq.Eq{"id": id.String(), "status": string(models.VisitStatusGranted), "unlocked_at": nil}))
	if err != nil {
		return false, fmt.Errorf("claim unlock: %w", err)
	}
	return affected(res) == 1, nil
}

func (s *SQLiteStore) ListVisits(ctx context.Context, f models.VisitFilter) ([]models.Visit, error) {
	b := qb.Select(visitCols...).From("visits").OrderBy("created_at DESC", "id")
	if f.OwnerID != nil {
		b = b.Where(sq.Eq{"owner_id": f.OwnerID.String()})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var visits []models.Visit
	for rows.Next() {
		v, err := scanSQLiteVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, *v)
	}
	return visits, rows.Err()
}

func (s *SQLiteStore) VisitStats(ctx context.Context, ownerID uuid.UUID, since time.Time) (*models.VisitStats, error) {
	row, err := s.queryRow(ctx, qb.Select(
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN status = 'granted' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN status = 'denied' THEN 1 ELSE 0 END), 0)",
	).Column(sq.Expr("COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)", toMillis(since))).
		From("visits").
		Where(sq.Eq{"owner_id": ownerID.String()}))
	if err != nil {
		return nil, err
	}
	st := &models.VisitStats{}
	if err := row.Scan(&st.Total, &st.Pending, &st.Granted, &st.Denied, &st.Today); err != nil {
		return nil, fmt.Errorf("visit stats: %w", err)
	}
	return st, nil
}
