package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/gate"
	"github.com/your-org/doorgate/internal/quality"
)

type DetectRequest struct {
	OwnerID uuid.UUID `json:"owner_id" binding:"required"`
	Images  []string  `json:"images" binding:"required,min=1,dive,required"`
}

type SelectionResponse struct {
	FrameID string          `json:"frame_id"`
	Index   int             `json:"index"`
	Score   float64         `json:"score"`
	Metrics quality.Metrics `json:"metrics"`
}

type RecognitionResponse struct {
	Identity            string             `json:"identity"`
	VisitorID           *uuid.UUID         `json:"visitor_id,omitempty"`
	Known               bool               `json:"known"`
	Votes               map[string]int     `json:"votes"`
	Faces               int                `json:"faces"`
	RepresentativeIndex int                `json:"representative_index"`
	AutoGranted         bool               `json:"auto_granted"`
	Selection           *SelectionResponse `json:"selection,omitempty"`
	Visit               VisitResponse      `json:"visit"`
}

func NewRecognitionResponse(out *gate.Outcome) RecognitionResponse {
	r := RecognitionResponse{
		Identity:            out.Resolution.Identity,
		VisitorID:           out.Resolution.VisitorID,
		Known:               out.Resolution.Known(),
		Votes:               out.Resolution.Votes,
		Faces:               out.Resolution.Faces,
		RepresentativeIndex: out.Resolution.RepresentativeIndex,
		AutoGranted:         out.AutoGranted,
		Visit:               NewVisitResponse(out.Visit),
	}
	if out.Selection != nil {
		r.Selection = &SelectionResponse{
			FrameID: out.Selection.ID,
			Index:   out.Selection.Index,
			Score:   out.Selection.Score,
			Metrics: out.Selection.Metrics,
		}
	}
	return r
}
