package gate

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/doorgate/internal/burst"
	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/notify"
	"github.com/your-org/doorgate/internal/quality"
	"github.com/your-org/doorgate/internal/recognition"
	"github.com/your-org/doorgate/internal/storage"
	"github.com/your-org/doorgate/internal/visit"
)

func flatFrame() image.Image {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func checkerFrame() image.Image {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (x/4+y/4)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 240})
			} else {
				img.SetGray(x, y, color.Gray{Y: 10})
			}
		}
	}
	return img
}

// texturedDetector reports one full-frame face on frames with visible contrast.
type texturedDetector struct{}

func (texturedDetector) Detect(img image.Image) ([]recognition.Detection, error) {
	b := img.Bounds()
	lo, hi := uint32(0xffff), uint32(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			lo = min(lo, r)
			hi = max(hi, r)
		}
	}
	if hi-lo < 0x4000 {
		return nil, nil
	}
	return []recognition.Detection{{Box: b, Score: 0.99}}, nil
}

type fixedClassifier struct {
	label int
	conf  float64
}

func (c fixedClassifier) Predict(image.Image) (int, float64, error) {
	return c.label, c.conf, nil
}

type countingTransport struct {
	mu    sync.Mutex
	sends map[string]int
}

func (t *countingTransport) Send(_ context.Context, d models.DeviceRegistration, _ notify.Message) (notify.Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends[d.PushToken]++
	return notify.OutcomeAccepted, nil
}

// syncPublisher delivers events inline so tests can inspect the reports.
type syncPublisher struct {
	notifier *notify.VisitNotifier
	mu       sync.Mutex
	reports  map[models.VisitEventType]*notify.DeliveryReport
}

func (p *syncPublisher) PublishVisitEvent(ctx context.Context, ev models.VisitEvent) error {
	report, err := p.notifier.HandleVisitEvent(ctx, ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports[ev.Type] = report
	return nil
}

type harness struct {
	store     *storage.SQLiteStore
	visits    *visit.Lifecycle
	service   *Service
	publisher *syncPublisher
	transport *countingTransport
	owner     *models.Owner
	visitor   *models.Visitor
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "gate.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	files, err := storage.NewFileStore(t.TempDir(), "http://files.test")
	require.NoError(t, err)

	owner := &models.Owner{Name: "Dana", Email: "dana@example.com", PasswordHash: "x"}
	require.NoError(t, store.CreateOwner(ctx, owner))
	visitor := &models.Visitor{Name: "alice"}
	require.NoError(t, store.CreateVisitor(ctx, visitor))

	for _, token := range []string{"phone-token-0000000000001", "tablet-token-000000000002"} {
		require.NoError(t, store.RegisterDevice(ctx, &models.DeviceRegistration{
			OwnerID: owner.ID, PushToken: token, Platform: models.PlatformAndroid,
		}))
	}

	transport := &countingTransport{sends: map[string]int{}}
	fanout := notify.NewFanout(store, transport, 4, time.Second)
	publisher := &syncPublisher{
		notifier: notify.NewVisitNotifier(fanout),
		reports:  map[models.VisitEventType]*notify.DeliveryReport{},
	}
	visits := visit.NewLifecycle(store, publisher)

	gallery := recognition.NewGallery(fixedClassifier{label: 0, conf: 20}, []recognition.Label{
		{Name: visitor.Name, VisitorID: &visitor.ID},
	})
	matcher := recognition.NewMatcher(texturedDetector{}, gallery, 50, 16)

	service := NewService(
		burst.NewSelector(quality.NewScorer()),
		recognition.NewResolver(matcher),
		visits,
		files,
		NewFetcher(time.Second, 0),
		policy,
	)
	return &harness{
		store: store, visits: visits, service: service, publisher: publisher,
		transport: transport, owner: owner, visitor: visitor,
	}
}

func TestSubmitBurst_KnownVisitorAutoGranted(t *testing.T) {
	h := newHarness(t, Policy{AutoGrantKnown: true})
	ctx := context.Background()

	out, err := h.service.SubmitBurst(ctx, h.owner.ID, []burst.Frame{
		{ID: "frame_1", Image: flatFrame()},
		{ID: "frame_2", Image: checkerFrame()},
		{ID: "frame_3", Image: flatFrame()},
	})
	require.NoError(t, err)

	require.NotNil(t, out.Selection)
	assert.Equal(t, 1, out.Selection.Index)
	assert.Equal(t, "alice", out.Resolution.Identity)
	assert.True(t, out.AutoGranted)
	assert.Equal(t, models.VisitStatusGranted, out.Visit.Status)
	require.NotNil(t, out.Visit.VisitorID)
	assert.Equal(t, h.visitor.ID, *out.Visit.VisitorID)
	assert.True(t, strings.HasPrefix(out.Visit.ImageURL, "http://files.test/captures/"))

	stored, err := h.visits.Get(ctx, out.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitStatusGranted, stored.Status)
	assert.NotNil(t, stored.DecidedAt)

	eligible, err := h.visits.IsUnlockEligible(ctx, out.Visit.ID)
	require.NoError(t, err)
	assert.True(t, eligible)

	claimed, err := h.visits.ClaimUnlock(ctx, out.Visit.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = h.visits.ClaimUnlock(ctx, out.Visit.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "unlock is consumed once")

	require.Contains(t, h.publisher.reports, models.VisitEventCreated)
	require.Contains(t, h.publisher.reports, models.VisitEventGranted)
	assert.Equal(t, 2, h.publisher.reports[models.VisitEventGranted].Sent)
	assert.Equal(t, map[string]int{
		"phone-token-0000000000001": 2,
		"tablet-token-000000000002": 2,
	}, h.transport.sends)
}

func TestSubmitBurst_UnknownStaysPending(t *testing.T) {
	h := newHarness(t, Policy{AutoGrantKnown: true})
	ctx := context.Background()

	out, err := h.service.SubmitBurst(ctx, h.owner.ID, []burst.Frame{
		{ID: "frame_1", Image: flatFrame()},
	})
	require.NoError(t, err)

	assert.Equal(t, recognition.Unknown, out.Resolution.Identity)
	assert.False(t, out.AutoGranted)
	assert.Equal(t, models.VisitStatusPending, out.Visit.Status)
	assert.Nil(t, out.Visit.VisitorID)
	assert.Equal(t, "unknown", out.Visit.DetectedLabel)

	eligible, err := h.visits.IsUnlockEligible(ctx, out.Visit.ID)
	require.NoError(t, err)
	assert.False(t, eligible)
}

func TestSubmitBurst_PolicyOffLeavesKnownPending(t *testing.T) {
	h := newHarness(t, Policy{})

	out, err := h.service.SubmitBurst(context.Background(), h.owner.ID, []burst.Frame{
		{ID: "frame_1", Image: checkerFrame()},
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", out.Resolution.Identity)
	assert.Equal(t, models.VisitStatusPending, out.Visit.Status)
	assert.NotContains(t, h.publisher.reports, models.VisitEventGranted)
}

func TestSubmitBurst_Empty(t *testing.T) {
	h := newHarness(t, Policy{})
	_, err := h.service.SubmitBurst(context.Background(), h.owner.ID, nil)
	assert.ErrorIs(t, err, burst.ErrEmptyBurst)
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectVisitor_UsesRepresentativeURL(t *testing.T) {
	h := newHarness(t, Policy{})
	flat := pngBytes(t, flatFrame())
	checker := pngBytes(t, checkerFrame())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flat.png":
			_, _ = w.Write(flat)
		case "/checker.png":
			_, _ = w.Write(checker)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := h.service.DetectVisitor(context.Background(), h.owner.ID, []string{
		srv.URL + "/missing.png",
		srv.URL + "/flat.png",
		srv.URL + "/checker.png",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", out.Resolution.Identity)
	assert.Equal(t, srv.URL+"/checker.png", out.Visit.ImageURL)
	assert.Nil(t, out.Selection)
}

func TestDetectVisitor_NothingLoads(t *testing.T) {
	h := newHarness(t, Policy{})

	_, err := h.service.DetectVisitor(context.Background(), h.owner.ID, []string{"ftp://nope/a.png"})
	assert.ErrorIs(t, err, burst.ErrNoDecodableFrame)

	_, err = h.service.DetectVisitor(context.Background(), h.owner.ID, nil)
	assert.ErrorIs(t, err, burst.ErrEmptyBurst)
}

type fakeEmbedder struct{ err error }

func (e fakeEmbedder) EmbedBestFace(image.Image) ([]float32, float32, error) {
	if e.err != nil {
		return nil, 0, e.err
	}
	return []float32{1, 0, 0}, 0.97, nil
}

type gallerySink struct{ g *recognition.Gallery }

func (s *gallerySink) SetGallery(g *recognition.Gallery) { s.g = g }

func TestEnroller_StoresTemplateAndReloads(t *testing.T) {
	h := newHarness(t, Policy{})
	ctx := context.Background()
	files, err := storage.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)

	sink := &gallerySink{}
	loader := recognition.TemplateLoader{Source: h.store}
	enroller := NewEnroller(fakeEmbedder{}, h.store, files, loader, sink)

	tmpl, err := enroller.Enroll(ctx, h.visitor.ID, pngBytes(t, checkerFrame()), "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, tmpl.ID)
	assert.True(t, strings.HasSuffix(tmpl.SourceKey, ".png"))

	n, err := h.store.CountFaceTemplates(ctx, h.visitor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NotNil(t, sink.g)
	require.Equal(t, 1, sink.g.Size())
	assert.Equal(t, "alice", sink.g.Labels()[0].Name)

	_, err = enroller.Enroll(ctx, uuid.New(), pngBytes(t, checkerFrame()), "image/png")
	assert.ErrorIs(t, err, ErrVisitorNotFound)

	failing := NewEnroller(fakeEmbedder{err: recognition.ErrDetection}, h.store, files, loader, sink)
	_, err = failing.Enroll(ctx, h.visitor.ID, pngBytes(t, flatFrame()), "image/png")
	assert.ErrorIs(t, err, recognition.ErrDetection)
}
