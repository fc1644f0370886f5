package store

import (
	"fmt"
	"strings"
)

const keyRounds = "meta:rounds"

func KeyRounds() []byte { return []byte(keyRounds) }

func KeyRound(id string) []byte { return []byte("round:" + id) }

func KeyBlock(n int64) []byte {
	return []byte(fmt.Sprintf("block:%020d", n)) // 固定宽度便于按字典序范围扫
}

// PrefixTransfers selects one address's normal or token transfers.
func PrefixTransfers(address string, token bool) []byte {
	kind := "n"
	if token {
		kind = "t"
	}
	return []byte("tx:" + strings.ToLower(address) + ":" + kind + ":")
}

// KeyTransfer sorts by block then hash under the address prefix.
func KeyTransfer(address string, token bool, block int64, hash string) []byte {
	return append(PrefixTransfers(address, token), []byte(fmt.Sprintf("%020d:%s", block, hash))...)
}
