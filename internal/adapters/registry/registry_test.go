package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/boostcalc/internal/adapters/registry"
	"github.com/okian/boostcalc/internal/adapters/repository"
	"github.com/okian/boostcalc/internal/domain/errs"
	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const base = "https://www.cloudskillsboost.google/public_profiles/"

func seeded() *repository.MemoryStore {
	return repository.NewMemoryStore(&repository.Document{
		LastUpdated: "2025-01-01T00:00:00Z",
		Participants: []model.Entry{
			model.LegacyEntry(base + "legacy-1"),
			model.StructuredEntry(model.Participant{
				ProfileID: "abc-123",
				Name:      "Ada Lovelace",
				Email:     "Ada@Example.com",
				Batch:     "Batch 2",
			}),
			model.StructuredEntry(model.Participant{Name: "Email Only", Email: "only@example.com"}),
			model.StructuredEntry(model.Participant{Name: "Nobody"}),
			model.StructuredEntry(model.Participant{ProfileID: "abc-123", Name: "Shadow"}),
		},
	})
}

func TestRegistryLoad(t *testing.T) {
	_ = logger.Init()

	Convey("Given a registry over a mixed document", t, func() {
		ctx := context.Background()
		reg := registry.New(seeded())
		n := reg.Load(ctx)

		Convey("Then unresolvable entries are skipped", func() {
			So(n, ShouldEqual, 4)
			So(reg.Len(), ShouldEqual, 4)
			So(len(reg.Document().Participants), ShouldEqual, 5)
		})

		Convey("Then legacy entries resolve by URL and bare id", func() {
			So(reg.IsEnrolledByProfile(base+"legacy-1"), ShouldBeTrue)
			So(reg.IsEnrolledByProfile("legacy-1"), ShouldBeTrue)
			So(reg.IsEnrolledByProfile(base+"legacy-1?tab=badges"), ShouldBeTrue)
		})

		Convey("Then email lookups ignore case and whitespace", func() {
			p, ok := reg.FindByEmail("  ada@example.COM ")
			So(ok, ShouldBeTrue)
			So(p.Name, ShouldEqual, "Ada Lovelace")
			So(p.ProfileURL, ShouldEqual, base+"abc-123")
		})

		Convey("Then the first entry wins on a duplicate profile id", func() {
			p, ok := reg.FindByProfile("abc-123")
			So(ok, ShouldBeTrue)
			So(p.Name, ShouldEqual, "Ada Lovelace")
		})

		Convey("Then an email-only participant is enrolled by email", func() {
			p, ok := reg.FindByEmail("only@example.com")
			So(ok, ShouldBeTrue)
			So(p.ProfileID, ShouldEqual, "")
		})

		Convey("Then unknown and empty references are not enrolled", func() {
			So(reg.IsEnrolledByProfile("zzz"), ShouldBeFalse)
			So(reg.IsEnrolledByProfile(""), ShouldBeFalse)
			So(reg.IsEnrolledByEmail(""), ShouldBeFalse)
			So(reg.IsEnrolledByEmail("who@example.com"), ShouldBeFalse)
		})

		Convey("Then stats reflect the document", func() {
			st := reg.Stats()
			So(st.TotalParticipants, ShouldEqual, 4)
			So(st.Entries, ShouldEqual, 5)
			So(st.LastUpdated, ShouldEqual, "2025-01-01T00:00:00Z")
		})
	})

	Convey("Given a store without a document", t, func() {
		reg := registry.New(repository.NewMemoryStore(nil))

		Convey("Then Load degrades to an empty registry", func() {
			So(reg.Load(context.Background()), ShouldEqual, 0)
			So(reg.IsEnrolledByProfile("anything"), ShouldBeFalse)
			So(reg.All(), ShouldBeEmpty)
		})
	})

	Convey("Given a file with a null entry and a conflicting record", t, func() {
		path := filepath.Join(t.TempDir(), "enrolled.json")
		doc := `{"participants": [
			null,
			"` + base + `kept-1",
			{"profileId": "stale-id", "profileUrl": "` + base + `from-url", "name": "Conflicted"}
		]}`
		So(os.WriteFile(path, []byte(doc), 0o600), ShouldBeNil)
		reg := registry.New(repository.NewFileStore(path))

		Convey("Then the null is skipped and the rest of the document loads", func() {
			So(reg.Load(context.Background()), ShouldEqual, 2)
			So(reg.IsEnrolledByProfile("kept-1"), ShouldBeTrue)
			So(reg.Stats().Entries, ShouldEqual, 3)
		})

		Convey("Then the profile url decides the identity of a conflicting record", func() {
			reg.Load(context.Background())
			p, ok := reg.FindByProfile("from-url")
			So(ok, ShouldBeTrue)
			So(p.Name, ShouldEqual, "Conflicted")
			So(p.ProfileURL, ShouldEqual, base+"from-url")
			So(reg.IsEnrolledByProfile("stale-id"), ShouldBeFalse)
		})
	})

	Convey("Given a malformed file", t, func() {
		path := filepath.Join(t.TempDir(), "enrolled.json")
		So(os.WriteFile(path, []byte("{not json"), 0o600), ShouldBeNil)
		reg := registry.New(repository.NewFileStore(path))

		Convey("Then Load degrades to an empty registry", func() {
			So(reg.Load(context.Background()), ShouldEqual, 0)
		})
	})
}

func TestRegistryAdd(t *testing.T) {
	_ = logger.Init()

	Convey("Given a loaded registry", t, func() {
		ctx := context.Background()
		store := seeded()
		reg := registry.New(store)
		reg.Load(ctx)

		Convey("When adding a new structured participant", func() {
			ok, err := reg.Add(ctx, model.StructuredEntry(model.Participant{
				ProfileURL: base + "new-one?utm=x",
				Name:       "Grace",
				Email:      "grace@example.com",
			}))

			Convey("Then it is inserted, indexed and persisted", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(reg.IsEnrolledByProfile("new-one"), ShouldBeTrue)
				So(reg.IsEnrolledByEmail("GRACE@example.com"), ShouldBeTrue)
				So(store.Saves(), ShouldEqual, 1)

				doc, err := store.Load(ctx)
				So(err, ShouldBeNil)
				So(len(doc.Participants), ShouldEqual, 6)
				p, _ := doc.Participants[5].Resolve()
				So(p.ProfileURL, ShouldEqual, base+"new-one")
				So(reg.Stats().LastUpdated, ShouldEqual, doc.LastUpdated)
			})
		})

		Convey("When adding a duplicate profile id", func() {
			ok, err := reg.Add(ctx, model.LegacyEntry(base+"legacy-1"))

			Convey("Then nothing is written", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				So(store.Saves(), ShouldEqual, 0)
			})
		})

		Convey("When adding a duplicate email with a new profile", func() {
			ok, err := reg.Add(ctx, model.StructuredEntry(model.Participant{ProfileID: "fresh", Email: "ADA@example.com"}))

			Convey("Then it is rejected as a duplicate", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the entry has no profile reference", func() {
			_, err := reg.Add(ctx, model.StructuredEntry(model.Participant{Email: "x@example.com"}))

			Convey("Then a validation error is returned", func() {
				So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When the profile id is outside the id alphabet", func() {
			_, err := reg.Add(ctx, model.StructuredEntry(model.Participant{ProfileID: "bad id/../x"}))

			Convey("Then a validation error is returned", func() {
				So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
				So(errors.Is(err, model.ErrInvalidProfileID), ShouldBeTrue)
			})
		})

		Convey("When the profile id disagrees with the profile url", func() {
			_, err := reg.Add(ctx, model.StructuredEntry(model.Participant{ProfileID: "one", ProfileURL: base + "two"}))

			Convey("Then a validation error is returned and nothing is written", func() {
				So(errors.Is(err, model.ErrProfileConflict), ShouldBeTrue)
				So(reg.IsEnrolledByProfile("one"), ShouldBeFalse)
				So(reg.IsEnrolledByProfile("two"), ShouldBeFalse)
			})
		})

		Convey("When the email is malformed", func() {
			_, err := reg.Add(ctx, model.StructuredEntry(model.Participant{ProfileID: "p", Email: "not-an-email"}))

			Convey("Then a validation error is returned", func() {
				So(errors.Is(err, errs.ErrValidation), ShouldBeTrue)
				So(reg.IsEnrolledByProfile("p"), ShouldBeFalse)
			})
		})

		Convey("When many adds race", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			inserted := 0
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, _ := reg.Add(ctx, model.LegacyEntry(base+"racer"))
					if ok {
						mu.Lock()
						inserted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one wins", func() {
				So(inserted, ShouldEqual, 1)
				So(store.Saves(), ShouldEqual, 1)
			})
		})
	})
}

func TestWatcher(t *testing.T) {
	_ = logger.Init()

	Convey("Given a watched registry file", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		path := filepath.Join(t.TempDir(), "enrolled.json")
		store := repository.NewFileStore(path)
		So(store.Save(ctx, repository.Document{Participants: []model.Entry{model.LegacyEntry(base + "first")}}), ShouldBeNil)

		reg := registry.New(store)
		So(reg.Load(ctx), ShouldEqual, 1)

		w, err := registry.NewWatcher(path, reg, 20*time.Millisecond)
		So(err, ShouldBeNil)
		So(w.Start(ctx), ShouldBeNil)
		defer func() { _ = w.Stop() }()

		Convey("When another writer replaces the file", func() {
			So(store.Save(ctx, repository.Document{Participants: []model.Entry{
				model.LegacyEntry(base + "first"),
				model.LegacyEntry(base + "second"),
			}}), ShouldBeNil)

			Convey("Then the registry picks up the change", func() {
				deadline := time.Now().Add(3 * time.Second)
				for time.Now().Before(deadline) && reg.Len() != 2 {
					time.Sleep(10 * time.Millisecond)
				}
				So(reg.Len(), ShouldEqual, 2)
				So(reg.IsEnrolledByProfile("second"), ShouldBeTrue)
			})
		})
	})
}
