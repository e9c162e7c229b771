// Package sdrio implements three IQ source drivers: a
// raw file, a locally attached RTL-SDR tuner (via SoapySDR), and a remote
// rtl_tcp server. Each is a thin collaborator exposing conditioner.ByteSource
// (plain io.Reader semantics); none carries any domain logic.
package sdrio

import (
	"os"
)

// FileSource reads raw interleaved IQ from a file with no header.
type FileSource struct {
	f *os.File
}

// OpenFile opens path for raw IQ reading.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{f: f}, nil
}

// Read satisfies conditioner.ByteSource.
func (s *FileSource) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

// Close releases the underlying file handle.
func (s *FileSource) Close() error {
	return s.f.Close()
}
