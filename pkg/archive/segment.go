package archive

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mappedSegment is one recording segment mapped into memory. A plain
// segment maps its file read-only; a sealed segment is inflated into
// an anonymous mapping so the release path is the same either way.
type mappedSegment struct {
	data []byte
}

// openSegment maps the segment, probing the sealed variants when the
// plain file is absent.
func openSegment(dir string, recordingID int64, segmentIndex int, segmentLength int32) (*mappedSegment, error) {
	path := filepath.Join(dir, SegmentFileName(recordingID, segmentIndex))

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		return mapFile(f, path, segmentLength)
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "opening recording segment %s", path)
	}

	for _, codec := range sealedCodecs {
		sealedPath := path + codec.ext()
		f, err := os.Open(sealedPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "opening sealed segment %s", sealedPath)
		}
		defer f.Close()
		return inflateSealed(f, sealedPath, codec, segmentLength)
	}

	return nil, errors.Errorf("recording segment file missing: %s", path)
}

func mapFile(f *os.File, path string, segmentLength int32) (*mappedSegment, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat recording segment %s", path)
	}
	if st.Size() != int64(segmentLength) {
		return nil, errors.Errorf("segment %s is %d bytes, expected %d", path, st.Size(), segmentLength)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(segmentLength), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping recording segment %s", path)
	}
	return &mappedSegment{data: data}, nil
}

func inflateSealed(f *os.File, path string, codec Codec, segmentLength int32) (*mappedSegment, error) {
	data, err := unix.Mmap(-1, 0, int(segmentLength), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping anonymous segment for %s", path)
	}
	r, err := codec.newReader(f)
	if err == nil {
		_, err = io.ReadFull(r, data)
	}
	if err != nil {
		unix.Munmap(data)
		return nil, errors.Wrapf(err, "inflating sealed segment %s", path)
	}
	return &mappedSegment{data: data}, nil
}

// unmap releases the mapping. Safe to call repeatedly and on nil.
func (m *mappedSegment) unmap() {
	if m == nil || m.data == nil {
		return
	}
	unix.Munmap(m.data)
	m.data = nil
}
