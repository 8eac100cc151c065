package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	model "github.com/okian/rankboard/internal/domain/model"
	"github.com/okian/rankboard/internal/domain/types"
	"github.com/smartystreets/goconvey/convey"
)

func TestPatchDecoding(t *testing.T) {
	convey.Convey("Given a PATCH body", t, func() {
		body := `[{"op":"replace","path":"/member/alice/points","action":"increment","value":10},
		          {"action":"add","value":2.5}]`

		var patches []model.Patch
		err := json.Unmarshal([]byte(body), &patches)

		convey.Convey("Then every operation is decoded", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(patches), convey.ShouldEqual, 2)
			convey.So(patches[0].Path, convey.ShouldEqual, "/member/alice/points")
			convey.So(patches[0].Action, convey.ShouldEqual, "increment")
			convey.So(patches[0].Value, convey.ShouldEqual, 10)
			convey.So(patches[1].Path, convey.ShouldEqual, "")
			convey.So(patches[1].Value, convey.ShouldEqual, 2.5)
		})
	})
}

func TestPatchPaths(t *testing.T) {
	convey.Convey("Given bulk patch paths", t, func() {
		convey.Convey("When the path names a member", func() {
			member, err := model.MemberFromPath("/member/alice42/points")

			convey.Convey("Then the member is extracted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(member, convey.ShouldEqual, "alice42")
			})
		})

		convey.Convey("When the path names a leaderboard", func() {
			lb, err := model.LeaderboardFromPath("/leaderboard/weekly.eu/points")

			convey.Convey("Then the leaderboard is extracted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(lb, convey.ShouldEqual, "weekly.eu")
			})
		})

		convey.Convey("When the path is malformed", func() {
			_, err1 := model.MemberFromPath("/member/al-ice/points")
			_, err2 := model.MemberFromPath("/member/alice")
			_, err3 := model.LeaderboardFromPath("/leaderboard/a/b/points")

			convey.Convey("Then ErrInvalidPath is returned", func() {
				convey.So(errors.Is(err1, model.ErrInvalidPath), convey.ShouldBeTrue)
				convey.So(errors.Is(err2, model.ErrInvalidPath), convey.ShouldBeTrue)
				convey.So(errors.Is(err3, model.ErrInvalidPath), convey.ShouldBeTrue)
			})
		})
	})
}

func TestPatchToUpdate(t *testing.T) {
	convey.Convey("Given a patch", t, func() {
		convey.Convey("When the action is known", func() {
			u, err := model.Patch{Action: "add", Value: 5}.ToUpdate("weekly", "alice")

			convey.Convey("Then it binds to the leaderboard and member", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(u, convey.ShouldResemble, model.Update{
					Leaderboard: "weekly", Member: "alice", Action: types.ActionAdd, Value: 5,
				})
			})
		})

		convey.Convey("When the action is unknown", func() {
			_, err := model.Patch{Action: "divide", Value: 5}.ToUpdate("weekly", "alice")

			convey.Convey("Then ErrUnknownAction is returned", func() {
				convey.So(errors.Is(err, types.ErrUnknownAction), convey.ShouldBeTrue)
			})
		})
	})
}
