// Package backup produces recoverable copies of the identity tables:
// compressed blobs emitted to the audit log and timestamped file copies
// kept next to the data directory.
package backup

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Encode compresses data and returns it as a base64 string suitable for
// a single log line.
func Encode(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("compressing backup blob: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compressing backup blob: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode.
func Decode(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return nil, fmt.Errorf("decoding backup blob: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decompressing backup blob: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing backup blob: %w", err)
	}
	return data, nil
}

// EncodeFromFile reads path and returns its Encode blob.
func EncodeFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Encode(data)
}

// DecodeToFile decodes blob and writes the result to path.
func DecodeToFile(blob, path string) error {
	data, err := Decode(blob)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// BackupFile copies src into dir under the source's base name with a
// unix-seconds suffix, then prunes the oldest copies so at most
// maxCopies remain for that base name.
func BackupFile(src, dir string, maxCopies int) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	base := filepath.Base(src)
	dst := filepath.Join(dir, fmt.Sprintf("%s.%d", base, time.Now().Unix()))
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", err
	}
	if err := prune(dir, base, maxCopies); err != nil {
		return "", err
	}
	return dst, nil
}

// prune removes the oldest timestamped copies of base in dir, keeping
// at most maxCopies.
func prune(dir, base string, maxCopies int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	type copyFile struct {
		name  string
		stamp int64
	}
	var copies []copyFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		rest, ok := strings.CutPrefix(e.Name(), base+".")
		if !ok {
			continue
		}
		stamp, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			continue
		}
		copies = append(copies, copyFile{name: e.Name(), stamp: stamp})
	}
	if len(copies) <= maxCopies {
		return nil
	}
	sort.Slice(copies, func(i, j int) bool { return copies[i].stamp < copies[j].stamp })
	for _, c := range copies[:len(copies)-maxCopies] {
		if err := os.Remove(filepath.Join(dir, c.name)); err != nil {
			return err
		}
	}
	return nil
}
