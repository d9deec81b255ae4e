package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/doorgate/internal/api/handlers"
	"github.com/your-org/doorgate/internal/api/ws"
	"github.com/your-org/doorgate/internal/auth"
	"github.com/your-org/doorgate/internal/burst"
	"github.com/your-org/doorgate/internal/gate"
	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/notify"
	"github.com/your-org/doorgate/internal/quality"
	"github.com/your-org/doorgate/internal/recognition"
	"github.com/your-org/doorgate/internal/storage"
	"github.com/your-org/doorgate/internal/visit"
)

const testAPIKey = "door-key"

type faceEverywhere struct{}

func (faceEverywhere) Detect(img image.Image) ([]recognition.Detection, error) {
	b := img.Bounds()
	r0, _, _, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	r1, _, _, _ := img.At(b.Min.X+4, b.Min.Y).RGBA()
	if r0 == r1 {
		return nil, nil
	}
	return []recognition.Detection{{Box: b, Score: 0.9}}, nil
}

type alwaysFirst struct{}

func (alwaysFirst) Predict(image.Image) (int, float64, error) { return 0, 25, nil }

type acceptAll struct {
	mu    sync.Mutex
	sends int
}

func (t *acceptAll) Send(context.Context, models.DeviceRegistration, notify.Message) (notify.Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends++
	return notify.OutcomeAccepted, nil
}

type testEnv struct {
	router    http.Handler
	db        *storage.SQLiteStore
	tokens    *auth.TokenIssuer
	transport *acceptAll
	visitor   *models.Visitor
}

type envOption func(*RouterConfig, *recognition.Matcher)

func newEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	files, err := storage.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	visitor := &models.Visitor{Name: "alice"}
	require.NoError(t, db.CreateVisitor(ctx, visitor))

	transport := &acceptAll{}
	fanout := notify.NewFanout(db, transport, 2, time.Second)
	visits := visit.NewLifecycle(db, nil)

	matcher := recognition.NewMatcher(faceEverywhere{}, recognition.NewGallery(alwaysFirst{}, []recognition.Label{
		{Name: visitor.Name, VisitorID: &visitor.ID},
	}), 50, 8)
	svc := gate.NewService(
		burst.NewSelector(quality.NewScorer()),
		recognition.NewResolver(matcher),
		visits,
		files,
		gate.NewFetcher(time.Second, 0),
		gate.Policy{},
	)

	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	cfg := RouterConfig{
		APIKey:         testAPIKey,
		Tokens:         tokens,
		DB:             db,
		Images:         files,
		Visits:         visits,
		Gate:           svc,
		Fanout:         fanout,
		Hub:            ws.NewHub(),
		Checks:         []handlers.Check{{Name: "sqlite", Ping: db.Ping}},
		MaxUploadBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(&cfg, matcher)
	}

	return &testEnv{router: NewRouter(cfg), db: db, tokens: tokens, transport: transport, visitor: visitor}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

var deviceHeaders = map[string]string{"X-API-Key": testAPIKey}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) registerOwner(t *testing.T, email string) (uuid.UUID, string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/auth/register", map[string]string{
		"name": "Dana", "email": email, "password": "correct-horse",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[struct {
		Token string `json:"token"`
		Owner struct {
			ID uuid.UUID `json:"id"`
		} `json:"owner"`
	}](t, w)
	return resp.Owner.ID, resp.Token
}

func pngFrame(t *testing.T, textured bool) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			v := uint8(128)
			if textured && (x/4+y/4)%2 == 0 {
				v = 240
			} else if textured {
				v = 10
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) submitBurst(t *testing.T, ownerID uuid.UUID, frames ...[]byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("owner_id", ownerID.String()))
	for i, f := range frames {
		part, err := mw.CreateFormFile("frames", fmt.Sprintf("frame_%d.png", i+1))
		require.NoError(t, err)
		_, err = part.Write(f)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/recognitions/burst", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestOwnerRegisterAndLogin(t *testing.T) {
	env := newEnv(t)
	ownerID, token := env.registerOwner(t, "dana@example.com")

	got, err := env.tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, ownerID, got)

	w := env.do(t, http.MethodPost, "/v1/auth/register", map[string]string{
		"name": "Dana", "email": "DANA@example.com", "password": "correct-horse",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "dana@example.com", "password": "correct-horse",
	}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/v1/auth/login", map[string]string{
		"email": "dana@example.com", "password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBurstToUnlockFlow(t *testing.T) {
	env := newEnv(t)
	ownerID, token := env.registerOwner(t, "dana@example.com")
	ownerHeaders := map[string]string{"Authorization": "Bearer " + token}

	w := env.submitBurst(t, ownerID, pngFrame(t, false), pngFrame(t, true), pngFrame(t, false))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[struct {
		Identity  string `json:"identity"`
		Known     bool   `json:"known"`
		Selection struct {
			FrameID string `json:"frame_id"`
			Index   int    `json:"index"`
		} `json:"selection"`
		Visit struct {
			ID     uuid.UUID `json:"id"`
			Status string    `json:"status"`
		} `json:"visit"`
	}](t, w)
	assert.Equal(t, "alice", rec.Identity)
	assert.True(t, rec.Known)
	assert.Equal(t, 1, rec.Selection.Index)
	assert.Equal(t, "frame_2.png", rec.Selection.FrameID)
	assert.Equal(t, "pending", rec.Visit.Status)

	base := "/v1/visits/" + rec.Visit.ID.String()

	w = env.do(t, http.MethodGet, base+"/unlock", nil, deviceHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[struct{ Unlock bool }](t, w).Unlock)

	w = env.do(t, http.MethodPut, base+"/status", map[string]string{"status": "granted"}, ownerHeaders)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, base+"/status", map[string]string{"status": "granted"}, ownerHeaders)
	assert.Equal(t, http.StatusOK, w.Code, "repeating the decision is idempotent")

	w = env.do(t, http.MethodPut, base+"/status", map[string]string{"status": "denied"}, ownerHeaders)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPut, base+"/status", map[string]string{"status": "pending"}, ownerHeaders)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, base+"/status", nil, ownerHeaders)
	assert.Equal(t, "granted", decode[struct{ Status string }](t, w).Status)

	w = env.do(t, http.MethodPost, base+"/unlock", nil, deviceHeaders)
	assert.True(t, decode[struct{ Unlock bool }](t, w).Unlock)
	w = env.do(t, http.MethodPost, base+"/unlock", nil, deviceHeaders)
	assert.False(t, decode[struct{ Unlock bool }](t, w).Unlock)

	w = env.do(t, http.MethodGet, "/v1/visits?status=granted", nil, ownerHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[struct{ Total int }](t, w).Total)

	w = env.do(t, http.MethodGet, "/v1/owners/"+ownerID.String()+"/stats", nil, ownerHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.VisitStats](t, w)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Granted)
}

func TestVisitAccessControl(t *testing.T) {
	env := newEnv(t)
	ownerID, _ := env.registerOwner(t, "dana@example.com")
	_, otherToken := env.registerOwner(t, "eve@example.com")

	w := env.submitBurst(t, ownerID, pngFrame(t, true))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	visitID := decode[struct {
		Visit struct{ ID uuid.UUID } `json:"visit"`
	}](t, w).Visit.ID

	w = env.do(t, http.MethodGet, "/v1/visits/"+visitID.String(), nil,
		map[string]string{"Authorization": "Bearer " + otherToken})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/v1/visits/"+uuid.NewString(), nil, deviceHeaders)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/v1/visits/not-a-uuid", nil, deviceHeaders)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/v1/visits/"+visitID.String(), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBurstErrors(t *testing.T) {
	env := newEnv(t)
	ownerID, _ := env.registerOwner(t, "dana@example.com")

	w := env.submitBurst(t, ownerID)
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty burst")

	w = env.submitBurst(t, ownerID, []byte("not an image"), []byte("still not"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.submitBurst(t, uuid.New(), pngFrame(t, true))
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown owner")
}

func TestBurst_GalleryUnavailable(t *testing.T) {
	env := newEnv(t, func(_ *RouterConfig, m *recognition.Matcher) { m.SetGallery(nil) })
	ownerID, _ := env.registerOwner(t, "dana@example.com")

	w := env.submitBurst(t, ownerID, pngFrame(t, true))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
}

func TestBurst_PipelineMissing(t *testing.T) {
	env := newEnv(t, func(cfg *RouterConfig, _ *recognition.Matcher) { cfg.Gate = nil })
	ownerID, _ := env.registerOwner(t, "dana@example.com")

	w := env.submitBurst(t, ownerID, pngFrame(t, true))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, http.MethodPost, "/v1/visitors/"+env.visitor.ID.String()+"/faces", nil, deviceHeaders)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDevicesAndNotify(t *testing.T) {
	env := newEnv(t)
	ownerID, token := env.registerOwner(t, "dana@example.com")
	ownerHeaders := map[string]string{"Authorization": "Bearer " + token}

	w := env.do(t, http.MethodPost, "/v1/notify/owners/"+ownerID.String(),
		map[string]string{"title": "Hi", "body": "Test"}, ownerHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no registered devices", decode[notify.DeliveryReport](t, w).Reason)

	w = env.do(t, http.MethodPost, "/v1/devices", map[string]any{
		"owner_id": ownerID, "push_token": "short", "platform": "android",
	}, ownerHeaders)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/v1/devices", map[string]any{
		"owner_id": ownerID, "push_token": "fcm-token-0123456789abcdef", "platform": "windows",
	}, ownerHeaders)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/v1/devices", map[string]any{
		"owner_id": ownerID, "push_token": "fcm-token-0123456789abcdef", "platform": "ios", "device_name": "iPhone",
	}, ownerHeaders)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/v1/owners/"+ownerID.String()+"/devices", nil, ownerHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[struct{ Total int }](t, w).Total)
	assert.NotContains(t, w.Body.String(), "fcm-token-0123456789abcdef")

	w = env.do(t, http.MethodPost, "/v1/notify/owners/"+ownerID.String(),
		map[string]string{"title": "Hi", "body": "Test"}, ownerHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[notify.DeliveryReport](t, w).Sent)
	assert.Equal(t, 1, env.transport.sends)

	w = env.do(t, http.MethodDelete, "/v1/devices", map[string]any{
		"owner_id": ownerID, "push_token": "fcm-token-0123456789abcdef",
	}, ownerHeaders)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/devices", map[string]any{
		"owner_id": ownerID, "push_token": "fcm-token-0123456789abcdef",
	}, ownerHeaders)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVisitorsCRUD(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/v1/visitors", map[string]string{"name": "bob"}, deviceHeaders)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[struct{ ID uuid.UUID }](t, w).ID

	w = env.do(t, http.MethodPut, "/v1/visitors/"+id.String(), map[string]string{"name": "robert"}, deviceHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "robert", decode[struct{ Name string }](t, w).Name)

	w = env.do(t, http.MethodGet, "/v1/visitors", nil, deviceHeaders)
	assert.Equal(t, 2, decode[struct{ Total int }](t, w).Total)

	w = env.do(t, http.MethodDelete, "/v1/visitors/"+id.String(), nil, deviceHeaders)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/v1/visitors/"+id.String(), nil, deviceHeaders)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVisitors_OwnerTokenRejected(t *testing.T) {
	env := newEnv(t)
	_, token := env.registerOwner(t, "eve@example.com")
	ownerHeaders := map[string]string{"Authorization": "Bearer " + token}
	face := "/v1/visitors/" + env.visitor.ID.String()

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/v1/visitors", map[string]string{"name": "mallory"}},
		{http.MethodGet, "/v1/visitors", nil},
		{http.MethodGet, face, nil},
		{http.MethodPut, face, map[string]string{"name": "mallory"}},
		{http.MethodDelete, face, nil},
		{http.MethodPost, face + "/faces", nil},
	} {
		w := env.do(t, tc.method, tc.path, tc.body, ownerHeaders)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", tc.method, tc.path)
	}

	v, err := env.db.GetVisitor(context.Background(), env.visitor.ID)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "alice", v.Name)
}

func TestReadyz(t *testing.T) {
	env := newEnv(t, func(cfg *RouterConfig, _ *recognition.Matcher) {
		cfg.Checks = append(cfg.Checks, handlers.Check{
			Name: "nats",
			Ping: func(context.Context) error { return errors.New("not connected") },
		})
	})

	w := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not connected")
}

func TestUploadAndFetchImage(t *testing.T) {
	env := newEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "door.png")
	require.NoError(t, err)
	_, err = part.Write(pngFrame(t, true))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	key := decode[struct{ URL string }](t, w).URL

	w = env.do(t, http.MethodGet, "/v1/images/"+key, nil, deviceHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = env.do(t, http.MethodGet, "/v1/images/captures/nope.png", nil, deviceHeaders)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
