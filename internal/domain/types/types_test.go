package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewParticipantInfo(t *testing.T) {
	Convey("Given a participant with sparse metadata", t, func() {
		p := model.Participant{ProfileID: "abc"}

		info := types.NewParticipantInfo(p)

		Convey("Then display defaults are applied and missing values encode as null", func() {
			So(info.Name, ShouldEqual, "Unknown")
			So(info.Batch, ShouldEqual, "Unknown")
			So(info.Email, ShouldBeNil)

			out, err := json.Marshal(info)
			So(err, ShouldBeNil)
			So(string(out), ShouldEqual, `{"name":"Unknown","email":null,"batch":"Unknown","enrollmentDate":null}`)
		})
	})

	Convey("Given a fully populated participant", t, func() {
		when := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		p := model.Participant{Name: "Ada", Email: "ada@x.io", Batch: "B2", EnrollmentDate: &when}

		info := types.NewParticipantInfo(p)

		Convey("Then every field is carried over", func() {
			So(info.Name, ShouldEqual, "Ada")
			So(*info.Email, ShouldEqual, "ada@x.io")
			So(info.Batch, ShouldEqual, "B2")
			So(info.EnrollmentDate.Equal(when), ShouldBeTrue)
		})
	})
}

func TestCalculateRequestJSON(t *testing.T) {
	Convey("Given a request body using the legacy profile path", t, func() {
		var req types.CalculateRequest
		err := json.Unmarshal([]byte(`{"profileUrl":"https://www.cloudskillsboost.google/public_profiles/x"}`), &req)

		Convey("Then only the profile URL is set", func() {
			So(err, ShouldBeNil)
			So(req.Email, ShouldBeEmpty)
			So(req.ProfileURL, ShouldEndWith, "/x")
		})
	})
}
