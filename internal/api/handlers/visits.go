package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/auth"
	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/notify"
	"github.com/your-org/doorgate/internal/visit"
	"github.com/your-org/doorgate/pkg/dto"
)

type VisitHandler struct {
	visits   *visit.Lifecycle
	notifier *notify.VisitNotifier
}

func NewVisitHandler(visits *visit.Lifecycle, notifier *notify.VisitNotifier) *VisitHandler {
	return &VisitHandler{visits: visits, notifier: notifier}
}

// load fetches the visit named by :id and checks the caller may see it.
func (h *VisitHandler) load(c *gin.Context) (*models.Visit, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}
	v, err := h.visits.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if !allowOwner(c, v.OwnerID) {
		return nil, false
	}
	return v, true
}

func (h *VisitHandler) Get(c *gin.Context) {
	v, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewVisitResponse(v))
}

func (h *VisitHandler) Status(c *gin.Context) {
	v, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.VisitStatusResponse{VisitID: v.ID, Status: string(v.Status)})
}

// UpdateStatus records the owner's decision on a pending visit.
func (h *VisitHandler) UpdateStatus(c *gin.Context) {
	v, ok := h.load(c)
	if !ok {
		return
	}
	var req dto.UpdateVisitStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target := models.VisitStatus(req.Status)
	if !target.Terminal() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be granted or denied"})
		return
	}

	updated, err := h.visits.Transition(c.Request.Context(), v.ID, target)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewVisitResponse(updated))
}

// UnlockStatus reports eligibility without consuming the unlock.
func (h *VisitHandler) UnlockStatus(c *gin.Context) {
	v, ok := h.load(c)
	if !ok {
		return
	}
	eligible, err := h.visits.IsUnlockEligible(c.Request.Context(), v.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.UnlockResponse{VisitID: v.ID, Unlock: eligible})
}

// ClaimUnlock answers true to exactly one lock controller per granted visit.
func (h *VisitHandler) ClaimUnlock(c *gin.Context) {
	v, ok := h.load(c)
	if !ok {
		return
	}
	claimed, err := h.visits.ClaimUnlock(c.Request.Context(), v.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.UnlockResponse{VisitID: v.ID, Unlock: claimed})
}

// Notify re-sends the notification for the visit's current state.
func (h *VisitHandler) Notify(c *gin.Context) {
	v, ok := h.load(c)
	if !ok {
		return
	}
	ev := models.NewVisitEvent(models.EventTypeFor(v.Status), v)
	report, err := h.notifier.HandleVisitEvent(c.Request.Context(), ev)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *VisitHandler) List(c *gin.Context) {
	var q dto.VisitQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := models.VisitFilter{Limit: q.Limit, Offset: q.Offset}
	if q.OwnerID != "" {
		id, err := uuid.Parse(q.OwnerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_id"})
			return
		}
		f.OwnerID = &id
	} else if id, ok := auth.OwnerID(c); ok {
		f.OwnerID = &id
	}
	if f.OwnerID != nil && !allowOwner(c, *f.OwnerID) {
		return
	}
	if q.Status != "" {
		f.Status = models.VisitStatus(q.Status)
		if !f.Status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
	}

	visits, err := h.visits.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]dto.VisitResponse, 0, len(visits))
	for i := range visits {
		resp = append(resp, dto.NewVisitResponse(&visits[i]))
	}
	c.JSON(http.StatusOK, dto.VisitListResponse{Visits: resp, Total: len(resp)})
}

func (h *VisitHandler) Stats(c *gin.Context) {
	ownerID, ok := parseID(c, "id")
	if !ok || !allowOwner(c, ownerID) {
		return
	}
	stats, err := h.visits.Stats(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
