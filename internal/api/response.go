package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/adverant/nexus/mrz-worker/internal/mrz"
	"github.com/adverant/nexus/mrz-worker/internal/storage"
)

type scanResponse struct {
	FrameID      string                 `json:"frameId"`
	SessionID    string                 `json:"sessionId,omitempty"`
	Outcome      string                 `json:"outcome"`
	Format       string                 `json:"format,omitempty"`
	Record       *mrz.Record            `json:"record,omitempty"`
	ErrorCode    string                 `json:"errorCode,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	ElapsedMs    int64                  `json:"elapsedMs"`
	Frame        map[string]int         `json:"frame"`
	CreatedAt    time.Time              `json:"createdAt"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

func toResponse(o *storage.ScanOutcome) scanResponse {
	return scanResponse{
		FrameID:      o.FrameID,
		SessionID:    o.SessionID,
		Outcome:      o.Outcome,
		Format:       o.Format,
		Record:       o.Record,
		ErrorCode:    o.ErrorCode,
		ErrorMessage: o.ErrorMessage,
		ElapsedMs:    o.ElapsedMs,
		Frame:        map[string]int{"width": o.Width, "height": o.Height, "rotation": o.Rotation},
		CreatedAt:    o.CreatedAt,
		Details:      o.ErrorDetails,
	}
}

// toResponses never returns nil so empty lists encode as []
func toResponses(outcomes []*storage.ScanOutcome) []scanResponse {
	resp := make([]scanResponse, 0, len(outcomes))
	for _, o := range outcomes {
		resp = append(resp, toResponse(o))
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
