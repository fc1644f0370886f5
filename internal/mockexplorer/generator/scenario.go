// Package generator builds a deterministic crowdfunding scenario: honest
// voters, groups of scripted voters sharing one behavior template, and a
// grantee recycling funds into fresh voter wallets.
package generator

import (
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/chenzhangda16/grantguard/internal/mockexplorer/model"
	"github.com/chenzhangda16/grantguard/pkg/hash"
	"github.com/chenzhangda16/grantguard/pkg/rng"
)

const (
	secondsPerBlock = 2
	genesisBlock    = int64(100_000_000)
	day             = int64(24 * 3600)
)

type Config struct {
	ChainID      int64
	Now          time.Time
	Projects     int
	Normal       int
	BotGroups    int
	BotsPerGroup int
	Recyclers    int
}

func (c *Config) defaults() {
	if c.ChainID == 0 {
		c.ChainID = 42161
	}
	if c.Now.IsZero() {
		c.Now = time.Now()
	}
	if c.Projects <= 0 {
		c.Projects = 8
	}
	if c.Normal <= 0 {
		c.Normal = 40
	}
	if c.BotsPerGroup < 2 {
		c.BotsPerGroup = 4
	}
	if c.Recyclers > c.Normal {
		c.Recyclers = c.Normal
	}
}

// Truth is what a detector run over the scenario should find.
type Truth struct {
	ActiveRound    string
	ConcludedRound string
	BotGroups      [][]string
	Recycling      map[string][]string // grantee -> voters paid after round start
}

type Gen struct {
	cfg     Config
	genesis int64

	rAddr   *rand.Rand
	rAmt    *rand.Rand
	rProj   *rand.Rand
	rTime   *rand.Rand
	rWallet *rand.Rand

	sc    model.Scenario
	seq   int
	funds []string
}

func New(cfg Config, rf *rng.Factory) *Gen {
	cfg.defaults()
	return &Gen{
		cfg:     cfg,
		genesis: cfg.Now.Unix() - 120*day,
		rAddr:   rf.R(rng.AddrPool),
		rAmt:    rf.R(rng.Amount),
		rProj:   rf.R(rng.Projects),
		rTime:   rf.R(rng.Timing),
		rWallet: rf.R(rng.Wallets),
		sc:      model.Scenario{ChainID: cfg.ChainID, Blocks: make(map[int64]int64)},
	}
}

func (g *Gen) blockAt(ts int64) int64 {
	n := genesisBlock + (ts-g.genesis)/secondsPerBlock
	g.sc.Blocks[n] = g.genesis + (n-genesisBlock)*secondsPerBlock
	return n
}

func (g *Gen) id(parts ...string) string {
	b := hash.NewBuilder().PutI64(int64(g.seq))
	g.seq++
	for _, p := range parts {
		b.PutString(p)
	}
	return b.Sum32().Hex()
}

func floorDay(ts int64) int64 { return ts - ts%day }

func wei(milliEther int64) string {
	v := new(big.Int).Mul(big.NewInt(milliEther), big.NewInt(1_000_000_000_000_000))
	return v.String()
}

func (g *Gen) transfer(from, to string, ts, milli int64, token bool) {
	n := g.blockAt(ts)
	g.sc.Transfers = append(g.sc.Transfers, model.Transfer{
		Hash:        g.id(from, to, fmt.Sprint(ts)),
		From:        from,
		To:          to,
		Value:       wei(milli),
		Token:       token,
		TimeStamp:   g.sc.Blocks[n],
		BlockNumber: n,
	})
}

// honestWallet gives addr a few unrelated transfers in the months before now.
func (g *Gen) honestWallet(a string) {
	n := 2 + g.rWallet.Intn(10)
	for i := 0; i < n; i++ {
		peer := g.funds[g.rWallet.Intn(len(g.funds))]
		ts := g.cfg.Now.Unix() - int64(1+g.rWallet.Intn(100))*day - g.rWallet.Int63n(day)
		milli := 1 + g.rWallet.Int63n(5000)
		token := g.rWallet.Intn(4) == 0
		if g.rWallet.Intn(2) == 0 {
			g.transfer(peer, a, ts, milli, token)
		} else {
			g.transfer(a, peer, ts, milli, token)
		}
	}
}

func (g *Gen) Generate() (model.Scenario, Truth) {
	now := g.cfg.Now.Unix()
	g.funds = GenAddrs(16, g.rAddr)

	active := model.RoundData{Round: model.Round{
		ID:    g.id("round", "active"),
		Name:  "Mock Active Round",
		Start: now - 7*day,
		End:   now + 14*day,
	}}
	concluded := model.RoundData{Round: model.Round{
		ID:    g.id("round", "concluded"),
		Name:  "Mock Concluded Round",
		Start: now - 60*day,
		End:   now - 30*day,
	}}

	grantees := GenAddrs(g.cfg.Projects, g.rAddr)
	for i, gr := range grantees {
		app := model.Application{ProjectID: g.id("project", gr), Title: fmt.Sprintf("Project %02d", i), Status: "APPROVED", Grantee: gr}
		active.Applications = append(active.Applications, app)
		concluded.Applications = append(concluded.Applications, app)
	}
	// votes for a pending application are never served as approved
	pending := model.Application{ProjectID: g.id("project", "pending"), Title: "Pending Project", Status: "PENDING", Grantee: g.funds[0]}
	active.Applications = append(active.Applications, pending)

	vote := func(rd *model.RoundData, voter string, app model.Application, usd float64, ts int64) {
		rd.Votes = append(rd.Votes, model.Vote{
			ID:        g.id("vote", voter, app.ProjectID),
			ProjectID: app.ProjectID,
			Voter:     voter,
			Grantee:   app.Grantee,
			AmountUSD: usd,
			Block:     g.blockAt(ts),
		})
	}
	randomVotes := func(rd *model.RoundData, voter string) {
		k := 1 + g.rProj.Intn(4)
		for _, p := range g.rProj.Perm(g.cfg.Projects)[:min(k, g.cfg.Projects)] {
			usd := float64(100+g.rAmt.Intn(4900)) / 100
			ts := rd.Round.Start + g.rTime.Int63n(min(now, rd.Round.End)-rd.Round.Start)
			vote(rd, voter, rd.Applications[p], usd, ts)
		}
	}

	truth := Truth{ActiveRound: active.Round.ID, ConcludedRound: concluded.Round.ID, Recycling: map[string][]string{}}

	normal := GenAddrs(g.cfg.Normal, g.rAddr)
	for _, v := range normal {
		g.honestWallet(v)
		randomVotes(&active, v)
	}
	for _, v := range normal[:len(normal)/2] {
		randomVotes(&concluded, v)
	}
	vote(&active, normal[0], pending, 3, active.Round.Start+day)

	// scripted voters: one funder, one amount, one project set, one day
	for gi := 0; gi < g.cfg.BotGroups; gi++ {
		bots := GenAddrs(g.cfg.BotsPerGroup, g.rAddr)
		funder := g.funds[g.rAddr.Intn(len(g.funds))]
		projects := g.rProj.Perm(g.cfg.Projects)[:min(2, g.cfg.Projects)]
		usd := float64(100+g.rAmt.Intn(900)) / 100
		// mid-day, so a group never straddles midnight
		fundedAt := floorDay(now) - int64(20+gi)*day + 12*3600
		voteAt := floorDay(active.Round.Start) + day + 10*3600 + int64(gi)*600
		milli := 10 + g.rAmt.Int63n(90)
		for i, b := range bots {
			g.transfer(funder, b, fundedAt+int64(i), milli, false)
			for _, p := range projects {
				vote(&active, b, active.Applications[p], usd, voteAt+int64(i))
			}
		}
		truth.BotGroups = append(truth.BotGroups, bots)
	}

	// recycling: the first grantee pays some honest voters after the start
	if g.cfg.Recyclers > 0 {
		gr := grantees[0]
		for _, v := range normal[:g.cfg.Recyclers] {
			g.transfer(gr, v, active.Round.Start+day+g.rTime.Int63n(day), 50+g.rAmt.Int63n(500), false)
			truth.Recycling[gr] = append(truth.Recycling[gr], v)
		}
		// neither of these is recycling: a non-voter, and a payment before the start
		g.transfer(gr, g.funds[1], active.Round.Start+2*day, 10, false)
		g.transfer(gr, normal[len(normal)-1], active.Round.Start-3*day, 10, false)
	}

	for _, rd := range []*model.RoundData{&active, &concluded} {
		seen := make(map[string]bool)
		for _, v := range rd.Votes {
			seen[v.Voter] = true
		}
		rd.Round.UniqueContributors = len(seen)
	}
	g.sc.Rounds = []model.RoundData{active, concluded}
	return g.sc, truth
}
