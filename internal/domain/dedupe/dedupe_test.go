package dedupe_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/okian/boostcalc/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDeduper(t *testing.T) {
	Convey("Given a new deduper", t, func() {
		ctx := context.Background()
		d := dedupe.New()

		Convey("Then it starts empty", func() {
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("When a key is recorded twice", func() {
			first := d.SeenAndRecord(ctx, "abc")
			second := d.SeenAndRecord(ctx, "abc")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And after unrecording it can be recorded again", func() {
				d.Unrecord(ctx, "abc")
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "abc"), ShouldBeFalse)
			})
		})

		Convey("When the key is empty", func() {
			Convey("Then it is never treated as a duplicate", func() {
				So(d.SeenAndRecord(ctx, ""), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, ""), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a deduper with a key normalizer", t, func() {
		ctx := context.Background()
		d := dedupe.New(dedupe.WithKeyFunc(strings.ToLower))

		Convey("Then keys differing only in case collide", func() {
			So(d.SeenAndRecord(ctx, "User@X.com"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "user@x.com"), ShouldBeTrue)
		})
	})

	Convey("Given concurrent callers", t, func() {
		ctx := context.Background()
		d := dedupe.New()
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i%10)) {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		Convey("Then each key is fresh exactly once", func() {
			So(fresh, ShouldEqual, 10)
			So(d.Size(), ShouldEqual, 10)
		})
	})
}

func TestUnique(t *testing.T) {
	Convey("Given items with repeated keys", t, func() {
		items := []string{"a", "B", "b", "", "a", "c", ""}

		kept, dropped := dedupe.Unique(context.Background(), items, func(s string) string { return s }, dedupe.WithKeyFunc(strings.ToLower))

		Convey("Then the first occurrence wins and order is preserved", func() {
			So(kept, ShouldResemble, []string{"a", "B", "", "c", ""})
			So(dropped, ShouldResemble, []string{"b", "a"})
		})
	})
}
