package persist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"
)

// FormatVersion is the snapshot layout version written to manifests.
const FormatVersion = 1

const (
	payloadExtension = ".snap"
	lz4Extension     = ".lz4"
	bufferSize       = 64 << 10
)

// Compression selects how a snapshot payload is stored.
type Compression string

// Supported compressions.
const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
)

// Sentinel errors.
var (
	ErrUnknownCompression = errors.New("persist: unknown compression")
	ErrSnapshotVersion    = errors.New("persist: unsupported snapshot version")
)

// ParseCompression parses a compression name. The empty string is lz4.
func ParseCompression(name string) (Compression, error) {
	switch Compression(strings.ToLower(name)) {
	case "", CompressionLZ4:
		return CompressionLZ4, nil
	case CompressionNone:
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// Extension returns the payload file extension.
func (c Compression) Extension() string {
	if c == CompressionLZ4 {
		return payloadExtension + lz4Extension
	}

	return payloadExtension
}

// WriteFile writes a payload produced by write to path, compressing it
// according to c. The file is replaced atomically.
func WriteFile(path string, c Compression, write func(io.Writer) error) error {
	if c != CompressionNone && c != CompressionLZ4 {
		return fmt.Errorf("%w: %q", ErrUnknownCompression, c)
	}

	return writeAtomic(path, func(w io.Writer) error {
		buf := bufio.NewWriterSize(w, bufferSize)

		if c == CompressionNone {
			err := write(buf)
			if err != nil {
				return err
			}

			return buf.Flush()
		}

		zw := lz4.NewWriter(buf)

		err := zw.Apply(lz4.CompressionLevelOption(lz4.Fast), lz4.ChecksumOption(true))
		if err != nil {
			return fmt.Errorf("configure lz4: %w", err)
		}

		err = write(zw)
		if err != nil {
			return err
		}

		err = zw.Close()
		if err != nil {
			return fmt.Errorf("close lz4 frame: %w", err)
		}

		return buf.Flush()
	})
}

// ReadFile opens path and passes its decompressed payload to read.
func ReadFile(path string, c Compression, read func(io.Reader) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	var r io.Reader = bufio.NewReaderSize(file, bufferSize)

	switch c {
	case CompressionNone:
	case CompressionLZ4:
		r = lz4.NewReader(r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCompression, c)
	}

	return read(r)
}

// Manifest describes a snapshot payload.
type Manifest struct {
	FormatVersion int         `json:"format_version"`
	Compression   Compression `json:"compression"`
	CreatedAt     time.Time   `json:"created_at"`
	Segments      int         `json:"segments"`
	Records       int         `json:"records"`
	Min           int64       `json:"min"`
	Max           int64       `json:"max"`
}

// PayloadPath returns the snapshot payload location for compression c.
func PayloadPath(dir, basename string, c Compression) string {
	return filepath.Join(dir, basename+c.Extension())
}

// SaveSnapshot writes the payload to dir/basename plus the compression
// extension, then the manifest to dir/basename.json. The manifest is written
// last so a readable manifest always points at a complete payload.
func SaveSnapshot(dir, basename string, manifest Manifest, write func(io.Writer) error) error {
	manifest.FormatVersion = FormatVersion
	if manifest.CreatedAt.IsZero() {
		manifest.CreatedAt = time.Now().UTC()
	}

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	path := PayloadPath(dir, basename, manifest.Compression)

	err = WriteFile(path, manifest.Compression, write)
	if err != nil {
		return fmt.Errorf("write snapshot payload: %w", err)
	}

	err = SaveState(dir, basename, NewJSONCodec(), manifest)
	if err != nil {
		return fmt.Errorf("write snapshot manifest: %w", err)
	}

	return nil
}

// LoadSnapshot reads the manifest at dir/basename.json and passes the
// matching payload to read.
func LoadSnapshot(dir, basename string, read func(io.Reader) error) (Manifest, error) {
	var manifest Manifest

	err := LoadState(dir, basename, NewJSONCodec(), &manifest)
	if err != nil {
		return Manifest{}, fmt.Errorf("read snapshot manifest: %w", err)
	}

	if manifest.FormatVersion != FormatVersion {
		return Manifest{}, fmt.Errorf("%w: %d", ErrSnapshotVersion, manifest.FormatVersion)
	}

	path := PayloadPath(dir, basename, manifest.Compression)

	err = ReadFile(path, manifest.Compression, read)
	if err != nil {
		return Manifest{}, fmt.Errorf("read snapshot payload: %w", err)
	}

	return manifest, nil
}
