package model

import "time"

// Vote is one contribution row from the indexer.
type Vote struct {
	ID        string  `json:"id"`
	Voter     string  `json:"voter"`
	Grantee   string  `json:"grantee"`
	ProjectID string  `json:"project_id"`
	Project   string  `json:"project"`
	AmountUSD float64 `json:"amount_usd"`
	Block     int64   `json:"block"`
	Timestamp int64   `json:"timestamp"` // unix seconds, 0 when unknown
}

// LabeledVote is a vote row with the voter's threat type attached.
type LabeledVote struct {
	Vote
	Threat ThreatType `json:"threat_type"`
}

// Lifecycle of a round relative to the evaluation time.
type Lifecycle string

const (
	Active    Lifecycle = "Active"
	Concluded Lifecycle = "Concluded"
)

// Round is the unit of detection and review.
type Round struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name,omitempty"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	UniqueContributors int       `json:"unique_contributors"`
}

// LifecycleAt reports Active when the round's end day is today or later.
// Comparison is by UTC calendar day.
func (r Round) LifecycleAt(now time.Time) Lifecycle {
	end := truncDay(r.End)
	today := truncDay(now)
	if !end.Before(today) {
		return Active
	}
	return Concluded
}

func truncDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Transfer is one explorer transaction record.
type Transfer struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // wei, decimal string
	TimeStamp   int64  `json:"timeStamp"`
	BlockNumber int64  `json:"blockNumber"`
}
