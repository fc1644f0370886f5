package rng

// Named streams. Each concern draws from its own stream so adding draws in
// one place does not shift the values seen by another.
const (
	AddrPool = "addr_pool"
	Amount   = "amount"
	Projects = "projects"
	Timing   = "timing"
	Wallets  = "wallets"
)
