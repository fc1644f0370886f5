// Package model holds the records served by the mock explorer and indexer.
package model

import "encoding/json"

type Round struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Start              int64  `json:"start"` // unix seconds
	End                int64  `json:"end"`
	UniqueContributors int    `json:"unique_contributors"`
}

type Application struct {
	ProjectID string `json:"project_id"`
	Title     string `json:"title"`
	Status    string `json:"status"` // APPROVED | PENDING | REJECTED
	Grantee   string `json:"grantee"`
}

type Vote struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Voter     string  `json:"voter"`
	Grantee   string  `json:"grantee"`
	AmountUSD float64 `json:"amount_usd"`
	Block     int64   `json:"block"`
}

type Transfer struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // wei
	Token       bool   `json:"token,omitempty"`
	TimeStamp   int64  `json:"ts"`
	BlockNumber int64  `json:"block"`
}

// RoundData is everything the indexer serves for one round.
type RoundData struct {
	Round        Round         `json:"round"`
	Applications []Application `json:"applications"`
	Votes        []Vote        `json:"votes"`
}

// Scenario is one generated world.
type Scenario struct {
	ChainID   int64           `json:"chain_id"`
	Rounds    []RoundData     `json:"rounds"`
	Transfers []Transfer      `json:"transfers"`
	Blocks    map[int64]int64 `json:"blocks"` // number -> unix seconds
}

func Encode(v any) ([]byte, error) { return json.Marshal(v) }

func Decode[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
