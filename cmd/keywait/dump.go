package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"
)

// writeDump writes the JSON snapshot of w to path. A ".zst" suffix compresses it.
func writeDump(w *ecs.World, path string) error {
	data, err := w.MarshalJSON()
	if err != nil {
		return eris.Wrap(err, "failed to snapshot world")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "failed to create dump directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return eris.Wrap(err, "failed to open dump file")
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".zst") {
		_, err = f.Write(data)
		return eris.Wrap(err, "failed to write dump")
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return eris.Wrap(err, "failed to create zstd writer")
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return eris.Wrap(err, "failed to write dump")
	}
	return eris.Wrap(enc.Close(), "failed to flush dump")
}
