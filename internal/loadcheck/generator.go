package loadcheck

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// Increment values are drawn from [minDelta, maxDelta]. Negative deltas let
// members cross zero, which exercises the unranked sentinel.
const (
	minDelta = -2
	maxDelta = 10
)

// route selects which PATCH surface an op is sent through.
type route int

const (
	routeLeaderboardMember route = iota
	routeLeaderboard
	routeMember
	routeCount
)

// op is one increment patch.
type op struct {
	Leaderboard string
	Member      string
	Delta       float64
	Route       route
}

// plan is the generated workload and the scores it must fold to.
type plan struct {
	Leaderboards []string
	Ops          []op
	// Expected maps leaderboard then member to the folded points.
	Expected map[string]map[string]float64
}

// newPlan builds a workload. Member and leaderboard keys carry a fresh run id
// so repeated runs against one store do not see each other's data.
func newPlan(cfg *Config) *plan {
	runID := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	lbs := make([]string, cfg.Leaderboards)
	for i := range lbs {
		lbs[i] = fmt.Sprintf("loadcheck:%s:%d", runID, i)
	}
	members := make([]string, cfg.Members)
	for i := range members {
		members[i] = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	p := &plan{
		Leaderboards: lbs,
		Ops:          make([]op, cfg.Ops),
		Expected:     make(map[string]map[string]float64, len(lbs)),
	}
	for i := range p.Ops {
		o := op{
			Leaderboard: lbs[rand.IntN(len(lbs))],
			Member:      members[rand.IntN(len(members))],
			Delta:       float64(minDelta + rand.IntN(maxDelta-minDelta+1)),
			Route:       route(rand.IntN(int(routeCount))),
		}
		p.Ops[i] = o
		if p.Expected[o.Leaderboard] == nil {
			p.Expected[o.Leaderboard] = make(map[string]float64)
		}
		p.Expected[o.Leaderboard][o.Member] += o.Delta
	}
	return p
}

type patch struct {
	Path   string  `json:"path,omitempty"`
	Action string  `json:"action"`
	Value  float64 `json:"value"`
}

// request renders o as a PATCH path and body for its route.
func (o op) request() (string, []patch) {
	switch o.Route {
	case routeLeaderboard:
		return "/leaderboard/" + o.Leaderboard, []patch{{Path: "/member/" + o.Member + "/points", Action: "increment", Value: o.Delta}}
	case routeMember:
		return "/member/" + o.Member, []patch{{Path: "/leaderboard/" + o.Leaderboard + "/points", Action: "increment", Value: o.Delta}}
	default:
		return "/leaderboard/" + o.Leaderboard + "/member/" + o.Member, []patch{{Action: "increment", Value: o.Delta}}
	}
}
