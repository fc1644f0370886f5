// Package explorer talks to an Etherscan-compatible block explorer API.
package explorer

import (
	"context"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

type Action string

const (
	TxList      Action = "txlist"
	TokenTx     Action = "tokentx"
	BlockReward Action = "getblockreward"
)

// Client returns transfers in ascending block order.
type Client interface {
	Transactions(ctx context.Context, address string, action Action) ([]model.Transfer, error)
	BlockTimestamp(ctx context.Context, block int64) (int64, error)
}
