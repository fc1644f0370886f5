// Package rpc serves a stored scenario through an Etherscan-style explorer
// API and a grants-stack-indexer style data feed.
package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/mockexplorer/model"
	"github.com/chenzhangda16/grantguard/internal/mockexplorer/store"
)

type Reader interface {
	Rounds() ([]model.Round, error)
	Round(id string) (model.RoundData, error)
	Transfers(address string, token bool) ([]model.Transfer, error)
	BlockTime(n int64) (int64, error)
}

type Config struct {
	ChainID int64
	// FailEvery makes every n-th explorer call answer with a rate limit error.
	FailEvery int64
	Logger    *zap.Logger
}

type Server struct {
	st    Reader
	cfg   Config
	log   *zap.Logger
	calls atomic.Int64
}

func NewServer(st Reader, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{st: st, cfg: cfg, log: cfg.Logger.Named("rpc")}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// explorer
	mux.HandleFunc("GET /api", s.handleAPI)

	// indexer
	mux.HandleFunc("GET /data/{chain}/rounds.json", s.handleRounds)
	mux.HandleFunc("GET /data/{chain}/rounds/{round}/{file}", s.handleRoundFile)

	return mux
}

// -------------------- helpers --------------------

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

func ok(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, envelope{Status: "1", Message: "OK", Result: result})
}

// notOK mirrors the explorer: errors still answer 200.
func notOK(w http.ResponseWriter, message string, result any) {
	writeJSON(w, http.StatusOK, envelope{Status: "0", Message: message, Result: result})
}

// -------------------- explorer --------------------

type rawTransfer struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	TimeStamp   string `json:"timeStamp"`
	BlockNumber string `json:"blockNumber"`
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n := s.calls.Add(1)
	if s.cfg.FailEvery > 0 && n%s.cfg.FailEvery == 0 {
		notOK(w, "NOTOK", "Max rate limit reached")
		return
	}

	switch q.Get("action") {
	case "txlist":
		s.transfers(w, r, false)
	case "tokentx":
		s.transfers(w, r, true)
	case "getblockreward":
		s.blockReward(w, r)
	default:
		notOK(w, "NOTOK", "Error! Missing Or invalid Action name")
	}
}

func (s *Server) transfers(w http.ResponseWriter, r *http.Request, token bool) {
	q := r.URL.Query()
	address := strings.TrimSpace(q.Get("address"))
	if !strings.HasPrefix(strings.ToLower(address), "0x") {
		notOK(w, "NOTOK", "Error! Invalid address format")
		return
	}
	from, to := int64(0), int64(-1)
	if v := q.Get("startblock"); v != "" {
		from, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("endblock"); v != "" {
		to, _ = strconv.ParseInt(v, 10, 64)
	}

	txs, err := s.st.Transfers(address, token)
	if err != nil {
		s.log.Error("transfers", zap.String("address", address), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]rawTransfer, 0, len(txs))
	for _, tx := range txs {
		if tx.BlockNumber < from || (to >= 0 && tx.BlockNumber > to) {
			continue
		}
		out = append(out, rawTransfer{
			Hash:        tx.Hash,
			From:        tx.From,
			To:          tx.To,
			Value:       tx.Value,
			TimeStamp:   strconv.FormatInt(tx.TimeStamp, 10),
			BlockNumber: strconv.FormatInt(tx.BlockNumber, 10),
		})
	}
	if q.Get("sort") == "desc" {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if len(out) == 0 {
		notOK(w, "No transactions found", []rawTransfer{})
		return
	}
	ok(w, out)
}

func (s *Server) blockReward(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseInt(r.URL.Query().Get("blockno"), 10, 64)
	if err != nil || n < 0 {
		notOK(w, "NOTOK", "Error! Invalid block number")
		return
	}
	ts, err := s.st.BlockTime(n)
	if errors.Is(err, store.ErrNotFound) {
		notOK(w, "NOTOK", "Error! Block number too large")
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ok(w, map[string]string{
		"blockNumber": strconv.FormatInt(n, 10),
		"timeStamp":   strconv.FormatInt(ts, 10),
	})
}

// -------------------- indexer --------------------

func (s *Server) chainOK(w http.ResponseWriter, r *http.Request) bool {
	if r.PathValue("chain") != strconv.FormatInt(s.cfg.ChainID, 10) {
		http.Error(w, "unknown chain", http.StatusNotFound)
		return false
	}
	return true
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	if !s.chainOK(w, r) {
		return
	}
	rounds, err := s.st.Rounds()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	type meta struct {
		Name string `json:"name"`
	}
	type roundJSON struct {
		ID                 string `json:"id"`
		UniqueContributors int    `json:"uniqueContributors"`
		RoundStartTime     string `json:"roundStartTime"`
		RoundEndTime       string `json:"roundEndTime"`
		Metadata           meta   `json:"metadata"`
	}
	out := make([]roundJSON, 0, len(rounds))
	for _, rd := range rounds {
		out = append(out, roundJSON{
			ID:                 rd.ID,
			UniqueContributors: rd.UniqueContributors,
			RoundStartTime:     strconv.FormatInt(rd.Start, 10),
			RoundEndTime:       strconv.FormatInt(rd.End, 10),
			Metadata:           meta{Name: rd.Name},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRoundFile(w http.ResponseWriter, r *http.Request) {
	if !s.chainOK(w, r) {
		return
	}
	rd, err := s.st.Round(r.PathValue("round"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "round not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	switch r.PathValue("file") {
	case "applications.json":
		writeJSON(w, http.StatusOK, applications(rd.Applications))
	case "votes.json":
		writeJSON(w, http.StatusOK, votes(rd.Votes))
	case "contributors.json":
		writeJSON(w, http.StatusOK, contributors(rd.Votes))
	default:
		http.NotFound(w, r)
	}
}

func applications(apps []model.Application) []map[string]any {
	out := make([]map[string]any, 0, len(apps))
	for _, a := range apps {
		out = append(out, map[string]any{
			"projectId": a.ProjectID,
			"status":    a.Status,
			"metadata": map[string]any{
				"application": map[string]any{
					"recipient": a.Grantee,
					"project":   map[string]any{"title": a.Title},
				},
			},
		})
	}
	return out
}

func votes(vs []model.Vote) []map[string]any {
	out := make([]map[string]any, 0, len(vs))
	for _, v := range vs {
		out = append(out, map[string]any{
			"id":           v.ID,
			"blockNumber":  v.Block,
			"projectId":    v.ProjectID,
			"voter":        v.Voter,
			"grantAddress": v.Grantee,
			"amountUSD":    v.AmountUSD,
		})
	}
	return out
}

func contributors(vs []model.Vote) []map[string]string {
	seen := make(map[string]bool)
	out := make([]map[string]string, 0)
	for _, v := range vs {
		k := strings.ToLower(v.Voter)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, map[string]string{"id": v.Voter})
	}
	return out
}
