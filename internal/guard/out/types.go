package out

import (
	"encoding/json"
)

const (
	TypeDetectionRefreshed = "detection_refreshed"
	TypeReviewSubmitted    = "review_submitted"
	TypeRoundCleared       = "round_cleared"
)

type Envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"` // e.g. "detection_refreshed"
	TS   int64           `json:"ts"`   // unix milli
	Data json.RawMessage `json:"data"`
}

// RoundEvent is the common payload; fields that do not apply stay zero.
type RoundEvent struct {
	RunID     string `json:"run_id,omitempty"`
	Round     string `json:"round"`
	Lifecycle string `json:"lifecycle"`
	State     string `json:"state,omitempty"`

	Clusters  int  `json:"clusters,omitempty"`
	Bots      int  `json:"bots,omitempty"`
	Recyclers int  `json:"recyclers,omitempty"`
	Failed    int  `json:"failed,omitempty"`
	Degraded  bool `json:"degraded,omitempty"`

	Mode    string `json:"mode,omitempty"`
	Entries int    `json:"entries,omitempty"`
}
