package repository

import (
	"errors"
	"testing"

	"github.com/okian/solcast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDecodeModel(t *testing.T) {
	key := model.ModelKey{Horizon: model.HorizonVSTF, PlantID: "3"}

	Convey("Given stored model values", t, func() {
		Convey("Then blocks inside 1..96 decode", func() {
			m, err := decodeModel(key, []byte(`{"values":{"1":0.5,"96":2},"blended":true}`))
			So(err, ShouldBeNil)
			So(m.Values, ShouldResemble, map[int]float64{1: 0.5, 96: 2})
			So(m.Key, ShouldResemble, key)
			So(m.Blended, ShouldBeTrue)
		})

		Convey("Then out-of-range blocks are bad records", func() {
			for _, raw := range []string{
				`{"values":{"0":1}}`,
				`{"values":{"97":1}}`,
				`{"values":{"-4":1}}`,
				`{"values":{"tb":1}}`,
			} {
				_, err := decodeModel(key, []byte(raw))
				So(errors.Is(err, ErrBadRecord), ShouldBeTrue)
			}
		})

		Convey("Then malformed JSON is a bad record", func() {
			_, err := decodeModel(key, []byte(`{`))
			So(errors.Is(err, ErrBadRecord), ShouldBeTrue)
		})
	})
}
