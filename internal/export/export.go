// SPDX-License-Identifier: MIT
// Package export persists session snapshots as JSON or as a pair of Parquet
// tables (per-sample signals and per-estimate rates).
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
)

// Format selects the files written by Save.
type Format string

const (
	JSON    Format = "json"
	Parquet Format = "parquet"
	Both    Format = "both"
)

// ErrUnknownFormat is returned for a Format outside JSON, Parquet and Both.
var ErrUnknownFormat = errors.New("export: unknown format")

// ParseFormat validates s. The empty string selects JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return JSON, nil
	case JSON, Parquet, Both:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// WriteJSON encodes snap as indented JSON.
func WriteJSON(w io.Writer, snap vitals.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// ReadJSON decodes a snapshot written by WriteJSON or by the browser UI's
// export button, which uses the same keys.
func ReadJSON(r io.Reader) (vitals.Snapshot, error) {
	var snap vitals.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return vitals.Snapshot{}, fmt.Errorf("export: decoding snapshot: %w", err)
	}
	if n, m := len(snap.Signals.Cardiac.Raw), len(snap.Signals.Cardiac.Filtered); n != m {
		return vitals.Snapshot{}, fmt.Errorf("export: cardiac raw/filtered length mismatch (%d vs %d)", n, m)
	}
	if n, m := len(snap.Signals.Respiratory.Raw), len(snap.Signals.Respiratory.Filtered); n != m {
		return vitals.Snapshot{}, fmt.Errorf("export: respiratory raw/filtered length mismatch (%d vs %d)", n, m)
	}
	return snap, nil
}

// Save writes snap into dir using format and returns the created paths.
// File names derive from the session ID.
func Save(dir string, format Format, snap vitals.Snapshot) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: creating %s: %w", dir, err)
	}
	base := "session"
	if id := snap.Metadata.SessionID; id != "" {
		base += "-" + id
	}

	var paths []string
	if format == JSON || format == Both {
		p := filepath.Join(dir, base+".json")
		if err := writeFile(p, func(w io.Writer) error { return WriteJSON(w, snap) }); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	if format == Parquet || format == Both {
		sp := filepath.Join(dir, base+"_signals.parquet")
		if err := writeFile(sp, func(w io.Writer) error { return WriteSignalsParquet(w, snap) }); err != nil {
			return paths, err
		}
		rp := filepath.Join(dir, base+"_rates.parquet")
		if err := writeFile(rp, func(w io.Writer) error { return WriteRatesParquet(w, snap) }); err != nil {
			return paths, err
		}
		paths = append(paths, sp, rp)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	log.Infof("Export: Saved session %s (%d samples) to %s", snap.Metadata.SessionID, snap.Metadata.TotalSamples, strings.Join(paths, ", "))
	return paths, nil
}

// Load reads a JSON snapshot from path.
func Load(path string) (vitals.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return vitals.Snapshot{}, err
	}
	defer f.Close()
	return ReadJSON(f)
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("export: closing %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("export: writing %s: %w", path, err)
	}
	return nil
}
