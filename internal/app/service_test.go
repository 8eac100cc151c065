package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rankboard/internal/adapters/repository"
	service "github.com/okian/rankboard/internal/app"
	"github.com/okian/rankboard/internal/domain/keys"
	"github.com/okian/rankboard/internal/domain/model"
	"github.com/okian/rankboard/internal/domain/types"
	"github.com/okian/rankboard/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newTestService(t *testing.T, opts ...service.Option) (*service.Service, *repository.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := repository.NewRedisStore(client, keys.NewScheme("vesil"))
	opts = append([]service.Option{
		service.WithLogger(logger.Nop()),
		service.WithOrphanRetry(8, time.Millisecond, 5*time.Millisecond),
	}, opts...)
	return service.New(store, opts...), store, mr
}

func rankOf(e types.Entry) int {
	if e.Rank == nil {
		return 0
	}
	return *e.Rank
}

func byMember(entries []types.Entry) map[string]types.Entry {
	out := make(map[string]types.Entry, len(entries))
	for _, e := range entries {
		out[e.Member] = e
	}
	return out
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc, _, _ := newTestService(t, service.WithWorkerCount(2), service.WithQueueSize(16))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When getting stats before starting", func() {
			stats := svc.GetStats()

			Convey("Then it should report stopped", func() {
				So(stats["started"], ShouldEqual, false)
				So(stats["workerCount"], ShouldEqual, 2)
			})
		})

		Convey("When stopping before starting", func() {
			So(errors.Is(svc.Stop(ctx), service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["queueLength"], ShouldEqual, 0)
				So(svc.Stop(ctx), ShouldBeNil)
			})

			Convey("And stopping it marks it stopped", func() {
				So(svc.Stop(ctx), ShouldBeNil)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When the store is reachable", func() {
			So(svc.Healthy(ctx), ShouldBeNil)
		})
	})

	Convey("Given a service whose store is down", t, func() {
		svc, _, mr := newTestService(t)
		mr.Close()

		Convey("Then health reports the store as unavailable", func() {
			So(errors.Is(svc.Healthy(context.Background()), repository.ErrStoreUnavailable), ShouldBeTrue)
		})

		Convey("And updates surface the outage", func() {
			_, err := svc.UpdatePoints(context.Background(), "weekly", "alice", types.ActionIncrement, 1)
			So(errors.Is(err, repository.ErrStoreUnavailable), ShouldBeTrue)
		})
	})
}

func TestService_WeeklyScenario(t *testing.T) {
	Convey("Given an empty weekly leaderboard", t, func() {
		ctx := context.Background()
		svc, store, _ := newTestService(t)

		alice, err := svc.UpdatePoints(ctx, "weekly", "alice", types.ActionIncrement, 10)
		So(err, ShouldBeNil)
		So(alice.Points, ShouldEqual, 10)
		So(rankOf(alice), ShouldEqual, 1)

		bob, err := svc.UpdatePoints(ctx, "weekly", "bob", types.ActionIncrement, 10)
		So(err, ShouldBeNil)
		So(bob.Points, ShouldEqual, 10)
		So(rankOf(bob), ShouldEqual, 1)

		carol, err := svc.UpdatePoints(ctx, "weekly", "carol", types.ActionIncrement, 5)
		So(err, ShouldBeNil)
		So(carol.Points, ShouldEqual, 5)
		So(rankOf(carol), ShouldEqual, 2)

		Convey("When reading the first page", func() {
			page, err := svc.GetLeaderboard(ctx, "weekly", 1, 10, "")

			Convey("Then the tie shares rank 1 ahead of carol", func() {
				So(err, ShouldBeNil)
				So(len(page), ShouldEqual, 3)
				So(rankOf(page[0]), ShouldEqual, 1)
				So(rankOf(page[1]), ShouldEqual, 1)
				So([]string{page[0].Member, page[1].Member}, ShouldResemble, []string{"alice", "bob"})
				So(page[2].Member, ShouldEqual, "carol")
				So(rankOf(page[2]), ShouldEqual, 2)
				So(page[2].Leaderboard, ShouldEqual, "weekly")
			})
		})

		Convey("When alice is set to 5", func() {
			alice, err := svc.UpdatePoints(ctx, "weekly", "alice", types.ActionAdd, 5)

			Convey("Then alice ties carol and 10 survives for bob", func() {
				So(err, ShouldBeNil)
				So(alice.Points, ShouldEqual, 5)
				So(rankOf(alice), ShouldEqual, 2)

				ranks, err := store.Ranks(ctx, "weekly")
				So(err, ShouldBeNil)
				So(ranks, ShouldResemble, []float64{5, 10})

				page, err := svc.GetLeaderboard(ctx, "weekly", 0, 0, "")
				So(err, ShouldBeNil)
				got := byMember(page)
				So(rankOf(got["bob"]), ShouldEqual, 1)
				So(rankOf(got["alice"]), ShouldEqual, 2)
				So(rankOf(got["carol"]), ShouldEqual, 2)
			})

			Convey("And when bob drops to 5 the score 10 is orphaned and removed", func() {
				_, err := svc.UpdatePoints(ctx, "weekly", "bob", types.ActionIncrement, -5)
				So(err, ShouldBeNil)

				ranks, err := store.Ranks(ctx, "weekly")
				So(err, ShouldBeNil)
				So(ranks, ShouldResemble, []float64{5})
			})
		})
	})
}

func TestService_UpdatePoints(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		svc, store, _ := newTestService(t)

		Convey("When the action is unknown", func() {
			_, err := svc.UpdatePoints(ctx, "weekly", "alice", types.Action(99), 1)

			Convey("Then it fails without touching the store", func() {
				So(errors.Is(err, types.ErrUnknownAction), ShouldBeTrue)
				_, ok, err := store.Score(ctx, "weekly", "alice")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When keys are invalid", func() {
			_, err := svc.UpdatePoints(ctx, "a/b", "alice", types.ActionIncrement, 1)
			So(errors.Is(err, keys.ErrInvalidKey), ShouldBeTrue)

			_, err = svc.UpdatePoints(ctx, "weekly", "al ice", types.ActionIncrement, 1)
			So(errors.Is(err, keys.ErrInvalidKey), ShouldBeTrue)
		})

		Convey("When a member lands on zero", func() {
			_, err := svc.UpdatePoints(ctx, "weekly", "alice", types.ActionIncrement, 3)
			So(err, ShouldBeNil)
			e, err := svc.UpdatePoints(ctx, "weekly", "alice", types.ActionIncrement, -3)

			Convey("Then it is unranked and nothing stays indexed", func() {
				So(err, ShouldBeNil)
				So(e.Points, ShouldEqual, 0)
				So(e.Rank, ShouldBeNil)
				ranks, err := store.Ranks(ctx, "weekly")
				So(err, ShouldBeNil)
				So(ranks, ShouldBeEmpty)
			})
		})

		Convey("When applying a batch", func() {
			entries, err := svc.ApplyUpdates(ctx, []model.Update{
				{Leaderboard: "weekly", Member: "alice", Action: types.ActionIncrement, Value: 2},
				{Leaderboard: "monthly", Member: "alice", Action: types.ActionAdd, Value: 7},
			})

			Convey("Then every update is applied in order", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].Leaderboard, ShouldEqual, "weekly")
				So(entries[1].Points, ShouldEqual, 7)
			})
		})

		Convey("When a batch holds one invalid update", func() {
			_, err := svc.ApplyUpdates(ctx, []model.Update{
				{Leaderboard: "weekly", Member: "bob", Action: types.ActionIncrement, Value: 2},
				{Leaderboard: "weekly", Member: "b-o-b", Action: types.ActionIncrement, Value: 2},
			})

			Convey("Then nothing is written", func() {
				So(errors.Is(err, keys.ErrInvalidKey), ShouldBeTrue)
				_, ok, err := store.Score(ctx, "weekly", "bob")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When many members are updated concurrently", func() {
			const members, rounds = 8, 25
			var wg sync.WaitGroup
			for m := 0; m < members; m++ {
				wg.Add(1)
				go func(m int) {
					defer wg.Done()
					for r := 0; r < rounds; r++ {
						_, _ = svc.UpdatePoints(ctx, "race", fmt.Sprintf("m%d", m), types.ActionIncrement, float64(m+1))
					}
				}(m)
			}
			wg.Wait()

			Convey("Then each score is the fold of its increments", func() {
				for m := 0; m < members; m++ {
					score, ok, err := store.Score(ctx, "race", fmt.Sprintf("m%d", m))
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)
					So(score, ShouldEqual, float64((m+1)*rounds))
				}
			})

			Convey("And ranks are monotonic in score after reconciliation", func() {
				_, err := svc.ReconcileOnce(ctx)
				So(err, ShouldBeNil)

				page, err := svc.GetLeaderboard(ctx, "race", 1, 100, "")
				So(err, ShouldBeNil)
				So(len(page), ShouldEqual, members)
				for i := 1; i < len(page); i++ {
					So(page[i-1].Points, ShouldBeGreaterThan, page[i].Points)
					So(rankOf(page[i]), ShouldEqual, rankOf(page[i-1])+1)
				}
				So(rankOf(page[0]), ShouldEqual, 1)
			})
		})
	})
}

func TestService_ConcurrentSameMember(t *testing.T) {
	Convey("Given one member updated from many goroutines", t, func() {
		ctx := context.Background()
		svc, store, _ := newTestService(t, service.WithOrphanRetry(1000, time.Microsecond, time.Millisecond))

		const writers, rounds = 8, 40
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for r := 0; r < rounds; r++ {
					_, _ = svc.UpdatePoints(ctx, "weekly", "solo", types.ActionAdd, float64((w*rounds+r)%20+1))
					if r%4 == 0 {
						_, _ = svc.GetLeaderboard(ctx, "weekly", 1, 10, "")
					}
				}
			}(w)
		}
		wg.Wait()

		Convey("Then the index holds exactly the held score", func() {
			held, err := store.HeldScores(ctx, "weekly")
			So(err, ShouldBeNil)
			ranks, err := store.Ranks(ctx, "weekly")
			So(err, ShouldBeNil)
			So(ranks, ShouldResemble, held)
			So(len(held), ShouldEqual, 1)
		})

		Convey("And the sole member ranks first", func() {
			page, err := svc.GetLeaderboard(ctx, "weekly", 1, 10, "")
			So(err, ShouldBeNil)
			So(len(page), ShouldEqual, 1)
			So(rankOf(page[0]), ShouldEqual, 1)
		})
	})
}

func TestService_GetLeaderboard(t *testing.T) {
	Convey("Given a leaderboard with a tie across the page boundary", t, func() {
		ctx := context.Background()
		svc, _, _ := newTestService(t, service.WithMaxPageSize(50))
		for member, v := range map[string]float64{"a": 50, "b": 40, "c": 40, "d": 40, "e": 10, "z": 0} {
			_, err := svc.UpdatePoints(ctx, "lb", member, types.ActionAdd, v)
			So(err, ShouldBeNil)
		}

		Convey("When requesting the first two rows", func() {
			page, err := svc.GetLeaderboard(ctx, "lb", 1, 2, "")

			Convey("Then the whole lowest tie group is returned", func() {
				So(err, ShouldBeNil)
				So(len(page), ShouldEqual, 4)
				So(page[0].Member, ShouldEqual, "a")
				So(rankOf(page[0]), ShouldEqual, 1)
				for _, e := range page[1:] {
					So(rankOf(e), ShouldEqual, 2)
				}
				So([]string{page[1].Member, page[2].Member, page[3].Member}, ShouldResemble, []string{"b", "c", "d"})
			})
		})

		Convey("When including a member off the page", func() {
			page, err := svc.GetLeaderboard(ctx, "lb", 1, 1, "e")

			Convey("Then it is appended with its own rank", func() {
				So(err, ShouldBeNil)
				So(len(page), ShouldEqual, 2)
				So(page[1].Member, ShouldEqual, "e")
				So(rankOf(page[1]), ShouldEqual, 3)
			})
		})

		Convey("When including a member already on the page", func() {
			page, err := svc.GetLeaderboard(ctx, "lb", 1, 1, "a")
			So(err, ShouldBeNil)
			So(len(page), ShouldEqual, 1)
		})

		Convey("When including a member with no score", func() {
			page, err := svc.GetLeaderboard(ctx, "lb", 1, 1, "nobody")
			So(err, ShouldBeNil)
			So(len(page), ShouldEqual, 1)
		})

		Convey("When the page reaches the zero sentinel", func() {
			page, err := svc.GetLeaderboard(ctx, "lb", 1, 10, "")

			Convey("Then the zero member is listed last without a rank", func() {
				So(err, ShouldBeNil)
				So(len(page), ShouldEqual, 6)
				last := page[len(page)-1]
				So(last.Member, ShouldEqual, "z")
				So(last.Rank, ShouldBeNil)
			})
		})

		Convey("When the range is invalid", func() {
			_, err := svc.GetLeaderboard(ctx, "lb", 3, 2, "")
			So(errors.Is(err, service.ErrInvalidRange), ShouldBeTrue)

			_, err = svc.GetLeaderboard(ctx, "lb", -1, 2, "")
			So(errors.Is(err, service.ErrInvalidRange), ShouldBeTrue)

			_, err = svc.GetLeaderboard(ctx, "lb", 1, 51, "")
			So(errors.Is(err, service.ErrInvalidRange), ShouldBeTrue)
		})

		Convey("When the leaderboard does not exist", func() {
			page, err := svc.GetLeaderboard(ctx, "missing", 1, 10, "")
			So(err, ShouldBeNil)
			So(page, ShouldBeEmpty)
		})
	})

	Convey("Given a held score missing from the index", t, func() {
		ctx := context.Background()
		svc, store, _ := newTestService(t)
		_, _, err := store.SetScore(ctx, "lb", "ghost", 42)
		So(err, ShouldBeNil)

		Convey("When reading the leaderboard", func() {
			page, err := svc.GetLeaderboard(ctx, "lb", 1, 10, "")

			Convey("Then the index is healed and the rank reported", func() {
				So(err, ShouldBeNil)
				So(len(page), ShouldEqual, 1)
				So(rankOf(page[0]), ShouldEqual, 1)
				ranks, err := store.Ranks(ctx, "lb")
				So(err, ShouldBeNil)
				So(ranks, ShouldResemble, []float64{42})
			})
		})
	})
}

func TestService_Members(t *testing.T) {
	Convey("Given a member on two leaderboards", t, func() {
		ctx := context.Background()
		svc, store, _ := newTestService(t)
		_, err := svc.UpdatePoints(ctx, "weekly", "alice", types.ActionIncrement, 10)
		So(err, ShouldBeNil)
		_, err = svc.UpdatePoints(ctx, "monthly", "alice", types.ActionIncrement, 3)
		So(err, ShouldBeNil)
		_, err = svc.UpdatePoints(ctx, "monthly", "bob", types.ActionIncrement, 9)
		So(err, ShouldBeNil)

		Convey("When reading the member", func() {
			entries, err := svc.GetMember(ctx, "alice")

			Convey("Then both standings are returned by leaderboard key", func() {
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 2)
				So(entries[0].Leaderboard, ShouldEqual, "monthly")
				So(rankOf(entries[0]), ShouldEqual, 2)
				So(entries[1].Leaderboard, ShouldEqual, "weekly")
				So(rankOf(entries[1]), ShouldEqual, 1)
			})
		})

		Convey("When removing the member from weekly", func() {
			had, err := svc.RemoveMember(ctx, "weekly", "alice")

			Convey("Then the score, membership and orphaned index value are gone", func() {
				So(err, ShouldBeNil)
				So(had, ShouldBeTrue)

				entries, err := svc.GetMember(ctx, "alice")
				So(err, ShouldBeNil)
				So(len(entries), ShouldEqual, 1)
				So(entries[0].Leaderboard, ShouldEqual, "monthly")

				ranks, err := store.Ranks(ctx, "weekly")
				So(err, ShouldBeNil)
				So(ranks, ShouldBeEmpty)
			})

			Convey("And removing again reports nothing held", func() {
				had, err := svc.RemoveMember(ctx, "weekly", "alice")
				So(err, ShouldBeNil)
				So(had, ShouldBeFalse)
			})
		})

		Convey("When a membership outlives its score", func() {
			_, _, err := store.RemoveMember(ctx, "weekly", "alice")
			So(err, ShouldBeNil)

			entries, err := svc.GetMember(ctx, "alice")
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
		})

		Convey("When the member is unknown", func() {
			entries, err := svc.GetMember(ctx, "nobody")
			So(err, ShouldBeNil)
			So(entries, ShouldBeEmpty)
		})
	})
}

func TestService_Reconcile(t *testing.T) {
	Convey("Given leaderboards with injected index drift", t, func() {
		ctx := context.Background()
		svc, store, _ := newTestService(t, service.WithWorkerCount(2))

		for i, lb := range []string{"one", "two", "three"} {
			_, err := svc.UpdatePoints(ctx, lb, "holder", types.ActionAdd, 100)
			So(err, ShouldBeNil)
			for n := 1; n <= 4+i; n++ {
				So(store.AddRank(ctx, lb, float64(n)), ShouldBeNil)
			}
		}
		// A held score the index never saw, and a stray zero.
		_, _, err := store.SetScore(ctx, "two", "lost", 55)
		So(err, ShouldBeNil)
		So(store.AddRank(ctx, "three", 0), ShouldBeNil)

		assertConverged := func(report service.ReconcileReport) {
			So(report.Leaderboards, ShouldEqual, 3)
			So(report.Removed, ShouldEqual, 4+5+6)
			So(report.Repaired, ShouldEqual, 1)
			So(report.Failed, ShouldEqual, 0)

			one, err := store.Ranks(ctx, "one")
			So(err, ShouldBeNil)
			So(one, ShouldResemble, []float64{100})
			two, err := store.Ranks(ctx, "two")
			So(err, ShouldBeNil)
			So(two, ShouldResemble, []float64{55, 100})
			three, err := store.Ranks(ctx, "three")
			So(err, ShouldBeNil)
			So(three, ShouldResemble, []float64{100})
		}

		Convey("When one pass runs without the worker pool", func() {
			report, err := svc.ReconcileOnce(ctx)

			Convey("Then every orphan is removed", func() {
				So(err, ShouldBeNil)
				assertConverged(report)
			})

			Convey("And a second pass finds nothing to do", func() {
				report, err := svc.ReconcileOnce(ctx)
				So(err, ShouldBeNil)
				So(report.Removed, ShouldEqual, 0)
				So(report.Repaired, ShouldEqual, 0)
			})
		})

		Convey("When one pass runs on the started worker pool", func() {
			So(svc.Start(ctx), ShouldBeNil)
			report, err := svc.ReconcileOnce(ctx)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then the result is the same", func() {
				So(err, ShouldBeNil)
				assertConverged(report)
				So(svc.GetStats()["lastReconcile"], ShouldNotBeNil)
			})
		})

		Convey("When repair is disabled", func() {
			svc2 := service.New(store, service.WithLogger(logger.Nop()), service.WithRepairMissing(false))
			report, err := svc2.ReconcileOnce(ctx)

			Convey("Then missing scores are left for the read path", func() {
				So(err, ShouldBeNil)
				So(report.Repaired, ShouldEqual, 0)
				two, err := store.Ranks(ctx, "two")
				So(err, ShouldBeNil)
				So(two, ShouldResemble, []float64{100})
			})
		})
	})

	Convey("Given a started service with a short interval", t, func() {
		ctx := context.Background()
		svc, store, _ := newTestService(t, service.WithReconcileInterval(10*time.Millisecond, 5*time.Millisecond))
		_, err := svc.UpdatePoints(ctx, "lb", "holder", types.ActionAdd, 9)
		So(err, ShouldBeNil)
		So(store.AddRank(ctx, "lb", 1), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then the background loop removes the orphan", func() {
			deadline := time.Now().Add(2 * time.Second)
			var ranks []float64
			for time.Now().Before(deadline) {
				ranks, err = store.Ranks(ctx, "lb")
				So(err, ShouldBeNil)
				if len(ranks) == 1 {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			So(ranks, ShouldResemble, []float64{9})
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})
}
