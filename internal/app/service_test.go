package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/boostcalc/internal/adapters/registry"
	"github.com/okian/boostcalc/internal/adapters/repository"
	service "github.com/okian/boostcalc/internal/app"
	"github.com/okian/boostcalc/internal/domain/cohort"
	"github.com/okian/boostcalc/internal/domain/errs"
	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/internal/domain/types"
	"github.com/okian/boostcalc/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const base = "https://www.cloudskillsboost.google/public_profiles/"

// fakeFetcher returns the profile id as the page body.
type fakeFetcher struct {
	mu    sync.Mutex
	fail  map[string]error
	block map[string]bool
	gate  chan struct{}
	calls int
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	id := strings.TrimPrefix(url, base)
	f.mu.Lock()
	f.calls++
	err := f.fail[id]
	block := f.block[id]
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return []byte(id), nil
}

// fakeExtractor maps a profile id to a fixed set of completions.
type fakeExtractor struct {
	profiles map[string]model.Profile
}

func (e *fakeExtractor) Extract(_ context.Context, content []byte) (model.Profile, error) {
	p, ok := e.profiles[string(content)]
	if !ok {
		return model.Profile{Items: []model.CompletionItem{}}, nil
	}
	return p, nil
}

func items(badges, games int) []model.CompletionItem {
	out := make([]model.CompletionItem, 0, badges+games)
	for i := 0; i < badges; i++ {
		out = append(out, model.CompletionItem{Title: fmt.Sprintf("b%d", i), Kind: model.KindBadge, Difficulty: model.DifficultyIntermediate})
	}
	for i := 0; i < games; i++ {
		out = append(out, model.CompletionItem{Title: fmt.Sprintf("g%d", i), Kind: model.KindGame, Difficulty: model.DifficultyIntroductory})
	}
	return out
}

type fixture struct {
	svc     *service.Service
	reg     *registry.Registry
	fetcher *fakeFetcher
}

func newFixture(opts ...service.Option) fixture {
	enrolled := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store := repository.NewMemoryStore(&repository.Document{
		Participants: []model.Entry{
			model.StructuredEntry(model.Participant{ProfileID: "ada", Name: "Ada", Email: "ada@example.com", Batch: "B1", EnrollmentDate: &enrolled}),
			model.StructuredEntry(model.Participant{ProfileID: "bob", Name: "Bob", Email: "bob@example.com"}),
			model.LegacyEntry(base + "cyd"),
			model.StructuredEntry(model.Participant{Name: "Dee", Email: "dee@example.com"}),
		},
	})
	reg := registry.New(store)
	reg.Load(context.Background())

	f := &fakeFetcher{fail: map[string]error{}, block: map[string]bool{}}
	ex := &fakeExtractor{profiles: map[string]model.Profile{
		"ada": {Name: "Ada L.", Items: items(15, 5)},
		"bob": {Name: "Bob B.", Items: items(4, 1)},
		"cyd": {Name: "Cyd C.", Items: items(10, 2)},
	}}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	all := append([]service.Option{service.WithClock(func() time.Time { return fixed })}, opts...)
	return fixture{svc: service.New(reg, f, ex, all...), reg: reg, fetcher: f}
}

func TestService_CalculatePoints(t *testing.T) {
	Convey("Given a service over a small cohort", t, func() {
		fx := newFixture()
		ctx := context.Background()

		Convey("When an enrolled participant asks by email", func() {
			res, err := fx.svc.CalculatePoints(ctx, types.CalculateRequest{Email: "ADA@example.com"})

			Convey("Then the full response is returned", func() {
				So(err, ShouldBeNil)
				So(res.Success, ShouldBeTrue)
				So(res.Enrolled, ShouldBeTrue)
				So(res.UserName, ShouldEqual, "Ada L.")
				So(res.ProfileURL, ShouldEqual, base+"ada")
				So(res.TotalPoints, ShouldEqual, 15*50+5*100)
				So(res.Progress.Overall.Percentage, ShouldEqual, 100.0)
				So(res.Participant.Name, ShouldEqual, "Ada")
				So(*res.Participant.Email, ShouldEqual, "ada@example.com")
				So(res.Metadata.Batch, ShouldEqual, "B1")
				So(res.Metadata.CalculatedAt, ShouldEqual, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
			})
		})

		Convey("When both email and profile url are given", func() {
			res, err := fx.svc.CalculatePoints(ctx, types.CalculateRequest{Email: "bob@example.com", ProfileURL: base + "ada"})

			Convey("Then email wins", func() {
				So(err, ShouldBeNil)
				So(res.UserName, ShouldEqual, "Bob B.")
			})
		})

		Convey("When a legacy participant asks by profile url", func() {
			res, err := fx.svc.CalculatePoints(ctx, types.CalculateRequest{ProfileURL: base + "cyd?utm_source=x"})

			Convey("Then display defaults fill missing metadata", func() {
				So(err, ShouldBeNil)
				So(res.Participant.Name, ShouldEqual, "Unknown")
				So(res.Participant.Email, ShouldBeNil)
				So(res.Metadata.Batch, ShouldEqual, "Unknown")
			})
		})

		Convey("When the request is empty", func() {
			_, err := fx.svc.CalculatePoints(ctx, types.CalculateRequest{})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
		})

		Convey("When the email is malformed", func() {
			_, err := fx.svc.CalculatePoints(ctx, types.CalculateRequest{Email: "nope"})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
		})

		Convey("When the profile url is not a profile url", func() {
			_, err := fx.svc.CalculatePoints(ctx, types.CalculateRequest{ProfileURL: "https://example.com/ada"})
			So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
		})

		Convey("When the participant is not enrolled", func() {
			_, err := fx.svc.CalculatePoints(ctx, types.CalculateRequest{Email: "stranger@example.com"})

			Convey("Then a not-enrolled error is returned without fetching", func() {
				So(errors.Is(err, errs.ErrNotEnrolled), ShouldBeTrue)
				So(errs.HTTPStatus(err), ShouldEqual, 403)
				So(fx.fetcher.calls, ShouldEqual, 0)
			})
		})

		Convey("When the participant is enrolled by email only", func() {
			_, err := fx.svc.CalculatePoints(ctx, types.CalculateRequest{Email: "dee@example.com"})
			So(errors.Is(err, errs.ErrProfileMissing), ShouldBeTrue)
			So(errs.HTTPStatus(err), ShouldEqual, 404)
		})

		Convey("When the profile host fails", func() {
			fx.fetcher.fail["bob"] = errors.New("connection reset")
			_, err := fx.svc.CalculatePoints(ctx, types.CalculateRequest{Email: "bob@example.com"})
			So(errors.Is(err, errs.ErrUpstreamFetch), ShouldBeTrue)
			So(errs.HTTPStatus(err), ShouldEqual, 502)
		})
	})
}

func TestService_Listings(t *testing.T) {
	Convey("Given a service over a small cohort", t, func() {
		fx := newFixture(service.WithTestModeSize(2))

		Convey("Then participants list the whole cohort", func() {
			res := fx.svc.Participants(false)
			So(res.Success, ShouldBeTrue)
			So(res.TotalParticipants, ShouldEqual, 4)
			So(res.Participants[2].Name, ShouldEqual, "Unknown")
			So(res.Participants[2].ProfileURL, ShouldEqual, base+"cyd")
		})

		Convey("Then test mode truncates to the configured size", func() {
			res := fx.svc.Participants(true)
			So(res.TestMode, ShouldBeTrue)
			So(res.TotalParticipants, ShouldEqual, 2)
		})

		Convey("Then the enrollment list keeps stored shapes", func() {
			doc := fx.svc.EnrollmentList()
			So(len(doc.Participants), ShouldEqual, 4)
			So(doc.Participants[2].IsLegacy(), ShouldBeTrue)
		})

		Convey("Then the scoring policy is exposed", func() {
			So(fx.svc.ScoringPolicy().TotalTarget(), ShouldEqual, 20)
		})
	})
}

func TestService_CohortReport(t *testing.T) {
	Convey("Given a service over a small cohort", t, func() {
		fx := newFixture(service.WithWorkerCount(3), service.WithUnitTimeout(200*time.Millisecond))
		ctx := context.Background()

		Convey("When every participant with a profile scores", func() {
			report, err := fx.svc.CohortReport(ctx, false)

			Convey("Then failures lower percentages and samples keep registry order", func() {
				So(err, ShouldBeNil)
				So(report.ID, ShouldNotBeEmpty)
				So(report.Summary.TotalParticipants, ShouldEqual, 4)
				So(report.Summary.Scored, ShouldEqual, 3)
				So(report.Summary.Failed, ShouldEqual, 1)
				So(report.Summary.FullyCompleted, ShouldEqual, 1)
				So(len(report.Failures), ShouldEqual, 1)
				So(report.Failures[0].Name, ShouldEqual, "Dee")

				So(len(report.Participants), ShouldEqual, 3)
				So(report.Participants[0].ProfileID, ShouldEqual, "ada")
				So(report.Participants[2].Name, ShouldEqual, "Cyd C.")

				So(report.Leaderboard[0].ProfileID, ShouldEqual, "ada")
				So(report.Leaderboard[0].Rank, ShouldEqual, 1)

				So(report.Distribution[0].Label, ShouldEqual, cohort.Complete100)
				So(report.Distribution[0].Count, ShouldEqual, 1)
				So(report.Distribution[0].Percentage, ShouldEqual, 25.0)
			})

			Convey("Then it becomes the last report", func() {
				last, ok := fx.svc.LastReport()
				So(ok, ShouldBeTrue)
				So(last.ID, ShouldEqual, report.ID)
				So(fx.svc.GetStats()["lastReportId"], ShouldEqual, report.ID)
			})
		})

		Convey("When one profile hangs past the unit timeout", func() {
			fx.fetcher.block["bob"] = true
			start := time.Now()
			report, err := fx.svc.CohortReport(ctx, false)

			Convey("Then it is skipped and the pass still completes", func() {
				So(err, ShouldBeNil)
				So(time.Since(start), ShouldBeLessThan, 2*time.Second)
				So(report.Summary.Scored, ShouldEqual, 2)
				So(report.Summary.Failed, ShouldEqual, 2)
			})
		})

		Convey("When several callers ask for a report while a pass is running", func() {
			fx := newFixture(service.WithWorkerCount(3), service.WithUnitTimeout(5*time.Second))
			fx.fetcher.gate = make(chan struct{})

			reports := make(chan types.CohortReport, 4)
			run := func() {
				r, err := fx.svc.CohortReport(ctx, false)
				if err == nil {
					reports <- r
				}
			}
			go run()
			deadline := time.Now().Add(2 * time.Second)
			for fx.fetcher.callCount() < 3 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			for i := 0; i < 3; i++ {
				go run()
			}
			time.Sleep(100 * time.Millisecond)
			close(fx.fetcher.gate)

			Convey("Then they share one pass and one fetch per profile", func() {
				first := <-reports
				for i := 0; i < 3; i++ {
					So((<-reports).ID, ShouldEqual, first.ID)
				}
				So(fx.fetcher.callCount(), ShouldEqual, 3)
			})
		})

		Convey("When a caller gives up on a shared pass", func() {
			fx := newFixture(service.WithWorkerCount(3), service.WithUnitTimeout(5*time.Second))
			fx.fetcher.gate = make(chan struct{})
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := fx.svc.CohortReport(cctx, false)
			close(fx.fetcher.gate)

			Convey("Then it returns its own cancellation", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})

		Convey("When run in test mode", func() {
			fx := newFixture(service.WithTestModeSize(1))
			report, err := fx.svc.CohortReport(ctx, true)

			Convey("Then only the first participant is scored", func() {
				So(err, ShouldBeNil)
				So(report.TestMode, ShouldBeTrue)
				So(report.Summary.TotalParticipants, ShouldEqual, 1)
				So(report.Summary.Scored, ShouldEqual, 1)
			})
		})
	})
}

func TestService_Admin(t *testing.T) {
	Convey("Given a service over a small cohort", t, func() {
		fx := newFixture()
		ctx := context.Background()

		Convey("When a participant is added", func() {
			ok, err := fx.svc.AddParticipant(ctx, model.StructuredEntry(model.Participant{ProfileID: "eve", Email: "eve@example.com"}))

			Convey("Then they can be scored", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				_, err := fx.svc.CalculatePoints(ctx, types.CalculateRequest{Email: "eve@example.com"})
				So(err, ShouldBeNil)
			})
		})

		Convey("When the registry is reloaded", func() {
			So(fx.svc.Reload(ctx), ShouldEqual, 4)
			So(fx.svc.GetStats()["totalParticipants"], ShouldEqual, 4)
		})
	})
}
