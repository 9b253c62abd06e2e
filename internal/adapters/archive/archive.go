// Package archive decodes and encodes npz archives of dense label
// arrays. An npz file is a zip whose members are npy arrays, one per
// subject; member names minus the ".npy" suffix are the subject
// identifiers. Only integer and bool dtypes are accepted and every
// array must be C-ordered.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/sbinet/npyio"

	"github.com/okian/segrank/internal/apperr"
	model "github.com/okian/segrank/internal/domain/model"
)

// Default decode limits.
const (
	// defaultMaxElems bounds a single decoded array so a small upload
	// cannot expand into arbitrary memory.
	defaultMaxElems = 1 << 26
	npySuffix       = ".npy"
)

// Option applies a configuration option to a decode.
type Option func(*decoder)

// WithMaxElems caps the element count of any single decoded array.
func WithMaxElems(n int) Option {
	return func(d *decoder) {
		if n > 0 {
			d.maxElems = n
		}
	}
}

type decoder struct {
	maxElems int
}

// Decode parses an npz payload into one volume per subject.
func Decode(data []byte, opts ...Option) (map[string]model.Volume, error) {
	const op = "archive.Decode"

	d := &decoder{maxElems: defaultMaxElems}
	for _, opt := range opts {
		opt(d)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFormat, op, "not a zip archive", err)
	}
	if len(zr.File) == 0 {
		return nil, apperr.New(apperr.KindFormat, op, "archive holds no arrays")
	}

	volumes := make(map[string]model.Volume, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(f.Name, npySuffix) {
			return nil, apperr.Newf(apperr.KindFormat, op, "unexpected archive member %q", f.Name)
		}
		id := strings.TrimSuffix(f.Name, npySuffix)
		if id == "" {
			return nil, apperr.Newf(apperr.KindFormat, op, "archive member %q has an empty subject id", f.Name)
		}
		if _, dup := volumes[id]; dup {
			return nil, apperr.Newf(apperr.KindFormat, op, "duplicate subject %q in archive", id)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindFormat, op, "opening member "+f.Name, err)
		}
		vol, err := d.decodeNPY(rc)
		closeErr := rc.Close()
		if err != nil {
			var e *apperr.Error
			if errors.As(err, &e) {
				e.Msg = "subject " + id + ": " + e.Msg
				return nil, e
			}
			return nil, apperr.Wrap(apperr.KindFormat, op, "subject "+id, err)
		}
		if closeErr != nil {
			return nil, apperr.Wrap(apperr.KindFormat, op, "closing member "+f.Name, closeErr)
		}
		volumes[id] = vol
	}
	if len(volumes) == 0 {
		return nil, apperr.New(apperr.KindFormat, op, "archive holds no arrays")
	}
	return volumes, nil
}

// DecodeNPY parses a single npy stream into a volume.
func DecodeNPY(r io.Reader, opts ...Option) (model.Volume, error) {
	d := &decoder{maxElems: defaultMaxElems}
	for _, opt := range opts {
		opt(d)
	}
	return d.decodeNPY(r)
}

func (d *decoder) decodeNPY(r io.Reader) (model.Volume, error) {
	const op = "archive.DecodeNPY"

	rdr, err := npyio.NewReader(r)
	if err != nil {
		return model.Volume{}, apperr.Wrap(apperr.KindFormat, op, "reading npy header", err)
	}

	hdr := rdr.Header
	if hdr.Descr.Fortran {
		return model.Volume{}, apperr.New(apperr.KindFormat, op, "column-major (fortran_order) arrays are not supported")
	}
	if len(hdr.Descr.Shape) == 0 {
		return model.Volume{}, apperr.New(apperr.KindFormat, op, "scalar arrays are not supported")
	}

	shape := make(model.Shape, len(hdr.Descr.Shape))
	copy(shape, hdr.Descr.Shape)
	elems := shape.Elems()
	if elems <= 0 {
		return model.Volume{}, apperr.Newf(apperr.KindFormat, op, "empty array shape %s", shape)
	}
	if elems > d.maxElems {
		return model.Volume{}, apperr.Newf(apperr.KindFormat, op, "array shape %s exceeds the %d element limit", shape, d.maxElems)
	}

	labels, err := readLabels(rdr, normalizeDtype(hdr.Descr.Type))
	if err != nil {
		var e *apperr.Error
		if errors.As(err, &e) {
			return model.Volume{}, err
		}
		return model.Volume{}, apperr.Wrap(apperr.KindFormat, op, "reading array data", err)
	}
	if len(labels) != elems {
		return model.Volume{}, apperr.Newf(apperr.KindFormat, op, "array holds %d labels, shape %s wants %d", len(labels), shape, elems)
	}

	return model.Volume{Shape: shape, Labels: labels}, nil
}

// normalizeDtype strips the byte-order prefix off a numpy descr string,
// e.g. "<i4" -> "i4".
func normalizeDtype(descr string) string {
	if len(descr) > 0 {
		switch descr[0] {
		case '<', '>', '|', '=':
			return descr[1:]
		}
	}
	return descr
}

// readLabels reads the array body as the dtype dictates and widens it
// to int32 labels.
func readLabels(rdr *npyio.Reader, dtype string) ([]int32, error) {
	const op = "archive.DecodeNPY"

	switch dtype {
	case "b1":
		var vals []bool
		if err := rdr.Read(&vals); err != nil {
			return nil, err
		}
		labels := make([]int32, len(vals))
		for i, v := range vals {
			if v {
				labels[i] = 1
			}
		}
		return labels, nil
	case "i1":
		var vals []int8
		if err := rdr.Read(&vals); err != nil {
			return nil, err
		}
		return signedLabels(vals)
	case "u1":
		var vals []uint8
		if err := rdr.Read(&vals); err != nil {
			return nil, err
		}
		return unsignedLabels(vals)
	case "i2":
		var vals []int16
		if err := rdr.Read(&vals); err != nil {
			return nil, err
		}
		return signedLabels(vals)
	case "u2":
		var vals []uint16
		if err := rdr.Read(&vals); err != nil {
			return nil, err
		}
		return unsignedLabels(vals)
	case "i4":
		var vals []int32
		if err := rdr.Read(&vals); err != nil {
			return nil, err
		}
		return vals, nil
	case "u4":
		var vals []uint32
		if err := rdr.Read(&vals); err != nil {
			return nil, err
		}
		return unsignedLabels(vals)
	case "i8":
		var vals []int64
		if err := rdr.Read(&vals); err != nil {
			return nil, err
		}
		return signedLabels(vals)
	case "u8":
		var vals []uint64
		if err := rdr.Read(&vals); err != nil {
			return nil, err
		}
		return unsignedLabels(vals)
	case "f2", "f4", "f8", "c8", "c16":
		return nil, apperr.Newf(apperr.KindFormat, op, "dtype %q is not an integer label type; probability maps are not accepted", dtype)
	default:
		return nil, apperr.Newf(apperr.KindFormat, op, "unsupported dtype %q", dtype)
	}
}

func signedLabels[T int8 | int16 | int64](vals []T) ([]int32, error) {
	labels := make([]int32, len(vals))
	for i, v := range vals {
		n := int64(v)
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, apperr.Newf(apperr.KindFormat, "archive.DecodeNPY", "label %d does not fit int32", n)
		}
		labels[i] = int32(n)
	}
	return labels, nil
}

func unsignedLabels[T uint8 | uint16 | uint32 | uint64](vals []T) ([]int32, error) {
	labels := make([]int32, len(vals))
	for i, v := range vals {
		n := uint64(v)
		if n > math.MaxInt32 {
			return nil, apperr.Newf(apperr.KindFormat, "archive.DecodeNPY", "label %d does not fit int32", n)
		}
		labels[i] = int32(n)
	}
	return labels, nil
}
