package archive_test

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/segrank/internal/adapters/archive"
	"github.com/okian/segrank/internal/apperr"
	model "github.com/okian/segrank/internal/domain/model"
)

// rawNPY frames a payload as an npy v1.0 stream with the given descr
// and shape expression.
func rawNPY(descr, shape string, payload []byte) []byte {
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shape)
	pad := 64 - (10+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	buf.Write(payload)
	return buf.Bytes()
}

type member struct {
	name string
	body []byte
}

// zipOf builds a zip archive from literal members, keeping the given
// order.
func zipOf(members ...member) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write(m.body); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func le32(vals ...int32) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, vals)
	return buf.Bytes()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	Convey("Given volumes for two subjects", t, func() {
		volumes := map[string]model.Volume{
			"case_01": {Shape: model.Shape{2, 3}, Labels: []int32{0, 1, 1, 2, 0, 2}},
			"case_02": {Shape: model.Shape{4}, Labels: []int32{3, 0, 3, 3}},
		}

		Convey("When encoding and decoding them", func() {
			var buf bytes.Buffer
			So(archive.Encode(&buf, volumes), ShouldBeNil)

			decoded, err := archive.Decode(buf.Bytes())
			So(err, ShouldBeNil)

			Convey("Then every subject survives the round trip", func() {
				So(decoded, ShouldResemble, volumes)
			})
		})

		Convey("When encoding the same volumes twice", func() {
			var a, b bytes.Buffer
			So(archive.Encode(&a, volumes), ShouldBeNil)
			So(archive.Encode(&b, volumes), ShouldBeNil)

			Convey("Then the bytes are identical", func() {
				So(bytes.Equal(a.Bytes(), b.Bytes()), ShouldBeTrue)
			})
		})
	})
}

func TestEncodeValidation(t *testing.T) {
	Convey("Given malformed volumes", t, func() {
		Convey("When the shape is missing", func() {
			err := archive.EncodeNPY(&bytes.Buffer{}, model.Volume{Labels: []int32{1}})
			So(err, ShouldNotBeNil)
		})

		Convey("When the label count disagrees with the shape", func() {
			err := archive.EncodeNPY(&bytes.Buffer{}, model.Volume{
				Shape:  model.Shape{2, 2},
				Labels: []int32{1, 2, 3},
			})
			So(err, ShouldNotBeNil)
		})

		Convey("When no volumes are given", func() {
			So(archive.Encode(&bytes.Buffer{}, nil), ShouldNotBeNil)
		})
	})
}

func TestDecodeRejectsBrokenArchives(t *testing.T) {
	Convey("Given payloads that are not valid archives", t, func() {
		Convey("When the payload is not a zip", func() {
			_, err := archive.Decode([]byte("certainly not a zip"))
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
		})

		Convey("When the zip has no members", func() {
			var buf bytes.Buffer
			So(zip.NewWriter(&buf).Close(), ShouldBeNil)
			_, err := archive.Decode(buf.Bytes())
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
		})

		Convey("When a member is not an npy array", func() {
			data := zipOf(member{"notes.txt", []byte("hi")})
			_, err := archive.Decode(data)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
			So(err.Error(), ShouldContainSubstring, "notes.txt")
		})

		Convey("When a member name is just the suffix", func() {
			data := zipOf(member{".npy", rawNPY("<i4", "(1,)", le32(1))})
			_, err := archive.Decode(data)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
		})

		Convey("When two members share a subject id", func() {
			body := rawNPY("<i4", "(1,)", le32(1))
			data := zipOf(
				member{"case_01.npy", body},
				member{"case_01.npy", body},
			)
			_, err := archive.Decode(data)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
			So(err.Error(), ShouldContainSubstring, "duplicate")
		})

		Convey("When a member body is truncated", func() {
			data := zipOf(member{"case_01.npy", rawNPY("<i4", "(4,)", le32(1, 2))})
			_, err := archive.Decode(data)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
		})
	})
}

func TestDecodeDtypes(t *testing.T) {
	Convey("Given arrays of the accepted integer dtypes", t, func() {
		Convey("When decoding uint8 labels", func() {
			data := zipOf(member{"s.npy", rawNPY("|u1", "(3,)", []byte{0, 2, 255})})
			vols, err := archive.Decode(data)
			So(err, ShouldBeNil)
			So(vols["s"].Labels, ShouldResemble, []int32{0, 2, 255})
		})

		Convey("When decoding int64 labels", func() {
			var buf bytes.Buffer
			_ = binary.Write(&buf, binary.LittleEndian, []int64{0, 7, 1})
			data := zipOf(member{"s.npy", rawNPY("<i8", "(3,)", buf.Bytes())})
			vols, err := archive.Decode(data)
			So(err, ShouldBeNil)
			So(vols["s"].Labels, ShouldResemble, []int32{0, 7, 1})
		})

		Convey("When decoding bool masks", func() {
			data := zipOf(member{"s.npy", rawNPY("|b1", "(4,)", []byte{1, 0, 1, 1})})
			vols, err := archive.Decode(data)
			So(err, ShouldBeNil)
			So(vols["s"].Labels, ShouldResemble, []int32{1, 0, 1, 1})
		})

		Convey("When an int64 label exceeds int32 range", func() {
			var buf bytes.Buffer
			_ = binary.Write(&buf, binary.LittleEndian, []int64{1 << 40})
			data := zipOf(member{"s.npy", rawNPY("<i8", "(1,)", buf.Bytes())})
			_, err := archive.Decode(data)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
		})
	})

	Convey("Given arrays of rejected dtypes", t, func() {
		Convey("When decoding a float64 probability map", func() {
			var buf bytes.Buffer
			_ = binary.Write(&buf, binary.LittleEndian, []float64{0.25, 0.75})
			data := zipOf(member{"s.npy", rawNPY("<f8", "(2,)", buf.Bytes())})
			_, err := archive.Decode(data)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
			So(err.Error(), ShouldContainSubstring, "integer label")
		})

		Convey("When decoding an unknown dtype", func() {
			data := zipOf(member{"s.npy", rawNPY("|S8", "(1,)", make([]byte, 8))})
			_, err := archive.Decode(data)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
		})
	})
}

func TestDecodeLayoutRules(t *testing.T) {
	Convey("Given arrays with unsupported layouts", t, func() {
		Convey("When the array is fortran ordered", func() {
			header := "{'descr': '<i4', 'fortran_order': True, 'shape': (2,), }"
			pad := 64 - (10+len(header)+1)%64
			if pad == 64 {
				pad = 0
			}
			header += strings.Repeat(" ", pad) + "\n"
			var buf bytes.Buffer
			buf.WriteString("\x93NUMPY")
			buf.Write([]byte{1, 0})
			_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
			buf.WriteString(header)
			buf.Write(le32(1, 2))

			data := zipOf(member{"s.npy", buf.Bytes()})
			_, err := archive.Decode(data)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
			So(err.Error(), ShouldContainSubstring, "fortran")
		})

		Convey("When the array is a scalar", func() {
			data := zipOf(member{"s.npy", rawNPY("<i4", "()", le32(1))})
			_, err := archive.Decode(data)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
		})

		Convey("When a dimension is zero", func() {
			data := zipOf(member{"s.npy", rawNPY("<i4", "(0,)", nil)})
			_, err := archive.Decode(data)
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
		})

		Convey("When the array exceeds the element limit", func() {
			data := zipOf(member{"s.npy", rawNPY("<i4", "(8,)", le32(0, 1, 2, 3, 4, 5, 6, 7))})
			_, err := archive.Decode(data, archive.WithMaxElems(4))
			So(apperr.KindOf(err), ShouldEqual, apperr.KindFormat)
			So(err.Error(), ShouldContainSubstring, "element limit")
		})
	})
}
