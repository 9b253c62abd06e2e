package model_test

import (
	"testing"
	"time"

	model "github.com/okian/segrank/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestShape(t *testing.T) {
	convey.Convey("Given shapes of various ranks", t, func() {
		convey.Convey("When counting elements", func() {
			convey.Convey("Then a 3D shape multiplies its dimensions", func() {
				convey.So(model.Shape{4, 5, 6}.Elems(), convey.ShouldEqual, 120)
			})

			convey.Convey("Then a 2D shape multiplies its dimensions", func() {
				convey.So(model.Shape{512, 512}.Elems(), convey.ShouldEqual, 262144)
			})

			convey.Convey("Then an empty shape holds nothing", func() {
				convey.So(model.Shape{}.Elems(), convey.ShouldEqual, 0)
				convey.So(model.Shape(nil).Elems(), convey.ShouldEqual, 0)
			})

			convey.Convey("Then a zero dimension collapses the count", func() {
				convey.So(model.Shape{4, 0, 6}.Elems(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When comparing shapes", func() {
			convey.Convey("Then identical dimensions are equal", func() {
				convey.So(model.Shape{2, 3}.Equal(model.Shape{2, 3}), convey.ShouldBeTrue)
			})

			convey.Convey("Then different ranks are not equal", func() {
				convey.So(model.Shape{2, 3}.Equal(model.Shape{2, 3, 1}), convey.ShouldBeFalse)
			})

			convey.Convey("Then same rank with different dimensions is not equal", func() {
				convey.So(model.Shape{2, 3}.Equal(model.Shape{3, 2}), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When rendering shapes", func() {
			convey.Convey("Then dimensions print as a tuple", func() {
				convey.So(model.Shape{512, 512, 128}.String(), convey.ShouldEqual, "(512, 512, 128)")
				convey.So(model.Shape{7}.String(), convey.ShouldEqual, "(7)")
			})
		})

		convey.Convey("When cloning a shape", func() {
			orig := model.Shape{2, 3, 4}
			dup := orig.Clone()
			dup[0] = 9

			convey.Convey("Then the original is untouched", func() {
				convey.So(orig[0], convey.ShouldEqual, 2)
				convey.So(dup[0], convey.ShouldEqual, 9)
			})
		})
	})
}

func TestResult(t *testing.T) {
	convey.Convey("Given an evaluation result", t, func() {
		ts := time.Now().UTC()
		res := model.Result{
			SubmissionID: "sub-123",
			Name:         "team rocket",
			Score:        0.8125,
			Best:         0.8125,
			Improved:     true,
			Recorded:     true,
			PerSubject: []model.SubjectScore{
				{Subject: "case_01", Dice: 0.75},
				{Subject: "case_02", Dice: 0.875},
			},
			SubmittedAt: ts,
		}

		convey.Convey("Then per-subject scores keep their order", func() {
			convey.So(res.PerSubject[0].Subject, convey.ShouldEqual, "case_01")
			convey.So(res.PerSubject[1].Subject, convey.ShouldEqual, "case_02")
		})

		convey.Convey("Then the zero value records nothing", func() {
			var empty model.Result
			convey.So(empty.Recorded, convey.ShouldBeFalse)
			convey.So(empty.Improved, convey.ShouldBeFalse)
			convey.So(empty.PerSubject, convey.ShouldBeNil)
		})
	})
}
