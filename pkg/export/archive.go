package export

import (
	"bytes"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/matzehuels/backdrop/pkg/config"
	"github.com/matzehuels/backdrop/pkg/errors"
	"github.com/matzehuels/backdrop/pkg/form"
	"github.com/matzehuels/backdrop/pkg/raster"
)

// CompressionLevel is the DEFLATE level of archive entries.
const CompressionLevel = 6

// Media types of a [Download].
const (
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
	MediaTypeZIP  = "application/zip"
)

// archiveTime stamps every entry so archives are byte-identical across runs.
var archiveTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// File is one archive entry.
type File struct {
	Name string
	Data []byte
}

// Download is a packaged export ready to hand to the user.
type Download struct {
	Name      string
	MediaType string
	Data      []byte
}

// Package names the outputs of a successful run after the form's names:
// a single image for one template, a ZIP for several.
func Package(d form.Data, res *Result) (*Download, error) {
	ids := res.IDs()
	if len(ids) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nothing to package")
	}
	ext := raster.Extension(res.Format)

	if len(ids) == 1 {
		mt := MediaTypePNG
		if res.Format == config.FormatJPEG {
			mt = MediaTypeJPEG
		}
		return &Download{Name: d.FileName(ids[0], ext), MediaType: mt, Data: res.Outputs[ids[0]]}, nil
	}

	files := make([]File, 0, len(ids))
	for _, id := range ids {
		files = append(files, File{Name: d.FileName(id, ext), Data: res.Outputs[id]})
	}
	var buf bytes.Buffer
	if err := Archive(&buf, files); err != nil {
		return nil, err
	}
	return &Download{Name: d.ArchiveName(), MediaType: MediaTypeZIP, Data: buf.Bytes()}, nil
}

// Archive writes files as a ZIP in the given order. Repeated names get
// "-2", "-3", ... before the extension.
func Archive(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, CompressionLevel)
	})

	used := make(map[string]bool, len(files))
	for _, f := range files {
		name := uniqueName(f.Name, used)
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: archiveTime,
		})
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "add %s to archive", name)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "write %s to archive", name)
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "close archive")
	}
	return nil
}

func uniqueName(name string, used map[string]bool) string {
	if !used[name] {
		used[name] = true
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := stem + "-" + strconv.Itoa(n) + ext
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}
