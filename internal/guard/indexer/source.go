// Package indexer reads rounds, votes and contributors from a
// grants-stack-indexer compatible HTTP data feed.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

type Source interface {
	Rounds(ctx context.Context) ([]model.Round, error)
	Votes(ctx context.Context, roundID string) ([]model.Vote, error)
	Contributors(ctx context.Context, roundID string) ([]string, error)
}

const statusApproved = "APPROVED"

type HTTPSource struct {
	base    string
	chainID int64
	hc      *http.Client
}

func NewHTTPSource(base string, chainID int64, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		base:    strings.TrimRight(base, "/"),
		chainID: chainID,
		hc:      &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) getJSON(ctx context.Context, path string, out any) error {
	u := fmt.Sprintf("%s/%d%s", s.base, s.chainID, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("indexer %s status=%d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// flexTime accepts unix seconds as a number or string, or RFC 3339.
type flexTime struct{ time.Time }

func (t *flexTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		t.Time = time.Unix(int64(n), 0).UTC()
		return nil
	}
	p, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("bad time %q", s)
	}
	t.Time = p.UTC()
	return nil
}

type roundJSON struct {
	ID                 string   `json:"id"`
	UniqueContributors int      `json:"uniqueContributors"`
	RoundStartTime     flexTime `json:"roundStartTime"`
	RoundEndTime       flexTime `json:"roundEndTime"`
	Metadata           struct {
		Name string `json:"name"`
	} `json:"metadata"`
}

type voteJSON struct {
	ID           string  `json:"id"`
	BlockNumber  int64   `json:"blockNumber"`
	ProjectID    string  `json:"projectId"`
	Voter        string  `json:"voter"`
	GrantAddress string  `json:"grantAddress"`
	AmountUSD    float64 `json:"amountUSD"`
}

type applicationJSON struct {
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
	Metadata  struct {
		Application struct {
			Project struct {
				Title string `json:"title"`
			} `json:"project"`
		} `json:"application"`
	} `json:"metadata"`
}

type contributorJSON struct {
	ID string `json:"id"`
}

func (s *HTTPSource) Rounds(ctx context.Context) ([]model.Round, error) {
	var raw []roundJSON
	if err := s.getJSON(ctx, "/rounds.json", &raw); err != nil {
		return nil, err
	}
	out := make([]model.Round, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.Round{
			ID:                 r.ID,
			Name:               r.Metadata.Name,
			Start:              r.RoundStartTime.Time,
			End:                r.RoundEndTime.Time,
			UniqueContributors: r.UniqueContributors,
		})
	}
	return out, nil
}

// Votes returns votes for approved applications, with project titles.
// Timestamps are left at zero; see BlockClock.
func (s *HTTPSource) Votes(ctx context.Context, roundID string) ([]model.Vote, error) {
	var apps []applicationJSON
	if err := s.getJSON(ctx, "/rounds/"+roundID+"/applications.json", &apps); err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(apps))
	for _, a := range apps {
		if a.Status != statusApproved {
			continue
		}
		if t := a.Metadata.Application.Project.Title; t != "" {
			titles[a.ProjectID] = t
		}
	}

	var raw []voteJSON
	if err := s.getJSON(ctx, "/rounds/"+roundID+"/votes.json", &raw); err != nil {
		return nil, err
	}
	out := make([]model.Vote, 0, len(raw))
	for _, v := range raw {
		title, ok := titles[v.ProjectID]
		if !ok {
			continue
		}
		out = append(out, model.Vote{
			ID:        v.ID,
			Voter:     v.Voter,
			Grantee:   v.GrantAddress,
			ProjectID: v.ProjectID,
			Project:   title,
			AmountUSD: v.AmountUSD,
			Block:     v.BlockNumber,
		})
	}
	return out, nil
}

func (s *HTTPSource) Contributors(ctx context.Context, roundID string) ([]string, error) {
	var raw []contributorJSON
	if err := s.getJSON(ctx, "/rounds/"+roundID+"/contributors.json", &raw); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		out = append(out, c.ID)
	}
	return out, nil
}

// FindRound returns the round with id from src.
func FindRound(ctx context.Context, src Source, id string) (model.Round, error) {
	rounds, err := src.Rounds(ctx)
	if err != nil {
		return model.Round{}, err
	}
	for _, r := range rounds {
		if strings.EqualFold(r.ID, id) {
			return r, nil
		}
	}
	return model.Round{}, fmt.Errorf("round %s: %w", id, model.ErrNotFound)
}
