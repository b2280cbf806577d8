package archive

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
)

// Codec identifies how a sealed segment is compressed.
type Codec int8

const (
	CodecNone Codec = iota
	CodecGzip
	CodecSnappy
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecGzip:
		return "gzip"
	case CodecSnappy:
		return "snappy"
	case CodecLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ext returns the file name suffix a sealed segment carries.
func (c Codec) ext() string {
	switch c {
	case CodecGzip:
		return ".gz"
	case CodecSnappy:
		return ".sz"
	case CodecLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// sealedCodecs is the probe order when a plain segment file is absent.
var sealedCodecs = []Codec{CodecGzip, CodecSnappy, CodecLZ4}

func (c Codec) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecGzip:
		return gzip.NewWriter(w), nil
	case CodecSnappy:
		return snappy.NewBufferedWriter(w), nil
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	}
	return nil, errors.Errorf("codec %s cannot seal", c)
}

func (c Codec) newReader(r io.Reader) (io.Reader, error) {
	switch c {
	case CodecGzip:
		return gzip.NewReader(r)
	case CodecSnappy:
		return snappy.NewReader(r), nil
	case CodecLZ4:
		return lz4.NewReader(r), nil
	}
	return nil, errors.Errorf("codec %s cannot unseal", c)
}

// bufPool reuses seal copy buffers.
type bufPool struct{ p *sync.Pool }

func newBufPool() bufPool {
	return bufPool{
		p: &sync.Pool{New: func() interface{} { r := make([]byte, 64<<10); return &r }},
	}
}

func (p bufPool) get() []byte  { return *p.p.Get().(*[]byte) }
func (p bufPool) put(b []byte) { p.p.Put(&b) }

var sealBufs = newBufPool()

// SealSegment compresses a completed segment file for cold storage and
// removes the original. The reader transparently inflates sealed
// segments when the plain file is gone.
func SealSegment(dir string, recordingID int64, segmentIndex int, codec Codec) error {
	path := filepath.Join(dir, SegmentFileName(recordingID, segmentIndex))
	src, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening segment to seal")
	}
	defer src.Close()

	sealedPath := path + codec.ext()
	dst, err := os.Create(sealedPath)
	if err != nil {
		return errors.Wrapf(err, "creating sealed segment")
	}

	w, err := codec.newWriter(dst)
	if err != nil {
		dst.Close()
		os.Remove(sealedPath)
		return err
	}

	buf := sealBufs.get()
	_, err = io.CopyBuffer(w, src, buf)
	sealBufs.put(buf)
	if err == nil {
		err = w.Close()
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(sealedPath)
		return errors.Wrapf(err, "sealing segment %s", path)
	}

	return errors.Wrapf(os.Remove(path), "removing sealed original")
}
