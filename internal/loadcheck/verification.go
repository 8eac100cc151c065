package loadcheck

import (
	"errors"
	"fmt"
	"sort"
)

// verify checks rows served for lb against the folded expectation:
// every member's points match, ranks never improve as points fall, equal
// points share a rank, zero points are unranked, and the distinct ranks run
// 1..k without gaps.
func verify(lb string, want map[string]float64, rows []Entry) error {
	var errs []error

	got := make(map[string]Entry, len(rows))
	for _, e := range rows {
		got[e.Member] = e
	}
	for m, points := range want {
		e, ok := got[m]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%s: member %s missing, want %g points", lb, m, points))
		case e.Points != points:
			errs = append(errs, fmt.Errorf("%s: member %s has %g points, want %g", lb, m, e.Points, points))
		}
	}
	for m := range got {
		if _, ok := want[m]; !ok {
			errs = append(errs, fmt.Errorf("%s: unexpected member %s", lb, m))
		}
	}

	ranked := make([]Entry, 0, len(rows))
	for _, e := range rows {
		if e.Points == 0 {
			if e.Rank != nil {
				errs = append(errs, fmt.Errorf("%s: member %s has zero points but rank %d", lb, e.Member, *e.Rank))
			}
			continue
		}
		if e.Rank == nil {
			errs = append(errs, fmt.Errorf("%s: member %s has %g points but no rank", lb, e.Member, e.Points))
			continue
		}
		ranked = append(ranked, e)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Points > ranked[j].Points })

	next := 1
	for i, e := range ranked {
		if i > 0 && e.Points == ranked[i-1].Points {
			if *e.Rank != *ranked[i-1].Rank {
				errs = append(errs, fmt.Errorf("%s: tie at %g split across ranks %d and %d", lb, e.Points, *ranked[i-1].Rank, *e.Rank))
			}
			continue
		}
		if *e.Rank != next {
			errs = append(errs, fmt.Errorf("%s: %g points ranked %d, want %d", lb, e.Points, *e.Rank, next))
		}
		next++
	}

	return errors.Join(errs...)
}
