package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

const (
	defaultStartBlock = 0
	defaultEndBlock   = 99999999
)

type HTTPClient struct {
	base   string
	apiKey string
	hc     *http.Client
}

func NewHTTPClient(base, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		hc:     &http.Client{Timeout: timeout},
	}
}

// envelope is the common Etherscan response shape. Result is an array on
// success and a plain string on most errors.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type rawTransfer struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	TimeStamp   string `json:"timeStamp"`
	BlockNumber string `json:"blockNumber"`
}

type rawBlockReward struct {
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
}

var errNoResult = errors.New("no transactions found")

func (c *HTTPClient) getJSON(ctx context.Context, q url.Values) (envelope, error) {
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	var env envelope
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?"+q.Encode(), nil)
	if err != nil {
		return env, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return env, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return env, fmt.Errorf("explorer %s status=%d", q.Get("action"), resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return env, fmt.Errorf("decode explorer response: %w", err)
	}
	if env.Status != "1" {
		if strings.Contains(strings.ToLower(env.Message), "no transactions found") {
			return env, errNoResult
		}
		var msg string
		_ = json.Unmarshal(env.Result, &msg)
		return env, fmt.Errorf("explorer %s: %s %s", q.Get("action"), env.Message, msg)
	}
	return env, nil
}

func (c *HTTPClient) Transactions(ctx context.Context, address string, action Action) ([]model.Transfer, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", string(action))
	q.Set("address", address)
	q.Set("startblock", strconv.Itoa(defaultStartBlock))
	q.Set("endblock", strconv.Itoa(defaultEndBlock))
	q.Set("sort", "asc")

	env, err := c.getJSON(ctx, q)
	if errors.Is(err, errNoResult) {
		return []model.Transfer{}, nil
	}
	if err != nil {
		return nil, &model.UpstreamFetchError{Address: address, Action: string(action), Err: err}
	}

	var raws []rawTransfer
	if err := json.Unmarshal(env.Result, &raws); err != nil {
		return nil, &model.UpstreamFetchError{Address: address, Action: string(action), Err: err}
	}
	out := make([]model.Transfer, 0, len(raws))
	for _, r := range raws {
		ts, err := strconv.ParseInt(r.TimeStamp, 10, 64)
		if err != nil {
			return nil, &model.UpstreamFetchError{Address: address, Action: string(action),
				Err: fmt.Errorf("tx %s: bad timeStamp %q: %w", r.Hash, r.TimeStamp, err)}
		}
		bn, err := strconv.ParseInt(r.BlockNumber, 10, 64)
		if err != nil {
			return nil, &model.UpstreamFetchError{Address: address, Action: string(action),
				Err: fmt.Errorf("tx %s: bad blockNumber %q: %w", r.Hash, r.BlockNumber, err)}
		}
		out = append(out, model.Transfer{
			Hash:        r.Hash,
			From:        r.From,
			To:          r.To,
			Value:       r.Value,
			TimeStamp:   ts,
			BlockNumber: bn,
		})
	}
	return out, nil
}

func (c *HTTPClient) BlockTimestamp(ctx context.Context, block int64) (int64, error) {
	q := url.Values{}
	q.Set("module", "block")
	q.Set("action", string(BlockReward))
	q.Set("blockno", strconv.FormatInt(block, 10))

	bn := strconv.FormatInt(block, 10)
	env, err := c.getJSON(ctx, q)
	if err != nil {
		return 0, &model.UpstreamFetchError{Address: bn, Action: string(BlockReward), Err: err}
	}
	var r rawBlockReward
	if err := json.Unmarshal(env.Result, &r); err != nil {
		return 0, &model.UpstreamFetchError{Address: bn, Action: string(BlockReward), Err: err}
	}
	ts, err := strconv.ParseInt(r.TimeStamp, 10, 64)
	if err != nil {
		return 0, &model.UpstreamFetchError{Address: bn, Action: string(BlockReward), Err: err}
	}
	return ts, nil
}
