package archive

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	model "github.com/okian/segrank/internal/domain/model"
)

// npy v1.0 framing constants.
const (
	npyMagic       = "\x93NUMPY"
	npyMajor       = 1
	npyMinor       = 0
	npyHeaderAlign = 64
	npyPreludeLen  = 10 // magic + version + header length field
)

// Encode writes the volumes as an npz archive, one npy member per
// subject in lexical order so equal inputs produce equal bytes.
func Encode(w io.Writer, volumes map[string]model.Volume) error {
	if len(volumes) == 0 {
		return fmt.Errorf("archive.Encode: no volumes")
	}

	ids := make([]string, 0, len(volumes))
	for id := range volumes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	zw := zip.NewWriter(w)
	for _, id := range ids {
		member, err := zw.Create(id + npySuffix)
		if err != nil {
			return fmt.Errorf("archive.Encode: creating member %s: %w", id, err)
		}
		if err := EncodeNPY(member, volumes[id]); err != nil {
			return fmt.Errorf("archive.Encode: subject %s: %w", id, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive.Encode: closing archive: %w", err)
	}
	return nil
}

// EncodeNPY writes a volume as a little-endian int32 npy v1.0 array in
// C order.
func EncodeNPY(w io.Writer, v model.Volume) error {
	if len(v.Shape) == 0 {
		return fmt.Errorf("archive.EncodeNPY: volume has no shape")
	}
	if v.Shape.Elems() != len(v.Labels) {
		return fmt.Errorf("archive.EncodeNPY: shape %s wants %d labels, have %d", v.Shape, v.Shape.Elems(), len(v.Labels))
	}

	header := fmt.Sprintf("{'descr': '<i4', 'fortran_order': False, 'shape': %s, }", shapeTuple(v.Shape))
	pad := npyHeaderAlign - (npyPreludeLen+len(header)+1)%npyHeaderAlign
	if pad == npyHeaderAlign {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	if _, err := io.WriteString(w, npyMagic); err != nil {
		return fmt.Errorf("archive.EncodeNPY: writing magic: %w", err)
	}
	if _, err := w.Write([]byte{npyMajor, npyMinor}); err != nil {
		return fmt.Errorf("archive.EncodeNPY: writing version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return fmt.Errorf("archive.EncodeNPY: writing header length: %w", err)
	}
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("archive.EncodeNPY: writing header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, v.Labels); err != nil {
		return fmt.Errorf("archive.EncodeNPY: writing labels: %w", err)
	}
	return nil
}

// shapeTuple renders a shape the way a numpy header spells it, keeping
// the trailing comma for rank-1 arrays, e.g. "(23,)" and "(2, 3)".
func shapeTuple(s model.Shape) string {
	if len(s) == 1 {
		return "(" + strconv.Itoa(s[0]) + ",)"
	}
	dims := make([]string, len(s))
	for i, d := range s {
		dims[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(dims, ", ") + ")"
}
