// SPDX-License-Identifier: MIT
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/analysis"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/rate"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
	"github.com/parquet-go/parquet-go"
)

// SignalRow is one retained sample of both channels.
type SignalRow struct {
	Index           int64   `parquet:"index"`
	CardiacRaw      float64 `parquet:"cardiac_raw"`
	CardiacFiltered float64 `parquet:"cardiac_filtered"`
	RespRaw         float64 `parquet:"resp_raw"`
	RespFiltered    float64 `parquet:"resp_filtered"`
}

// RateRow is one accepted rate estimate.
type RateRow struct {
	Channel   string  `parquet:"channel,dict"`
	Timestamp string  `parquet:"timestamp"`
	Value     float64 `parquet:"value"`
	SNR       float64 `parquet:"snr"`
	Quality   string  `parquet:"quality,dict"`
}

// Snapshot metadata travels in the signals file's key/value metadata.
const (
	keySessionID    = "mmrphys.session_id"
	keySamplingRate = "mmrphys.sampling_rate"
	keyStartTime    = "mmrphys.start_time"
	keyEndTime      = "mmrphys.end_time"
	keyTotalSamples = "mmrphys.total_samples"
	keyTimestamps   = "mmrphys.timestamps"
)

const readBatch = 1024

// WriteSignalsParquet writes the retained signals of snap, one row per
// sample, with the session metadata attached to the file.
func WriteSignalsParquet(w io.Writer, snap vitals.Snapshot) error {
	c, r := snap.Signals.Cardiac, snap.Signals.Respiratory
	if len(c.Raw) != len(r.Raw) || len(c.Raw) != len(c.Filtered) || len(r.Raw) != len(r.Filtered) {
		return errors.New("export: channel histories differ in length")
	}

	m := snap.Metadata
	pw := parquet.NewGenericWriter[SignalRow](w,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(keySessionID, m.SessionID),
		parquet.KeyValueMetadata(keySamplingRate, strconv.FormatFloat(m.SamplingRate, 'g', -1, 64)),
		parquet.KeyValueMetadata(keyStartTime, m.StartTime),
		parquet.KeyValueMetadata(keyEndTime, m.EndTime),
		parquet.KeyValueMetadata(keyTotalSamples, strconv.Itoa(m.TotalSamples)),
		parquet.KeyValueMetadata(keyTimestamps, strings.Join(snap.Timestamps, ",")),
	)

	rows := make([]SignalRow, len(c.Raw))
	for i := range rows {
		rows[i] = SignalRow{
			Index:           int64(i),
			CardiacRaw:      c.Raw[i],
			CardiacFiltered: c.Filtered[i],
			RespRaw:         r.Raw[i],
			RespFiltered:    r.Filtered[i],
		}
	}
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return err
	}
	return pw.Close()
}

// WriteRatesParquet writes both rate logs of snap into one table keyed by
// channel.
func WriteRatesParquet(w io.Writer, snap vitals.Snapshot) error {
	pw := parquet.NewGenericWriter[RateRow](w, parquet.Compression(&parquet.Snappy))

	rows := make([]RateRow, 0, len(snap.Rates.Cardiac)+len(snap.Rates.Respiratory))
	rows = appendRates(rows, analysis.Cardiac, snap.Rates.Cardiac)
	rows = appendRates(rows, analysis.Respiratory, snap.Rates.Respiratory)
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return err
	}
	return pw.Close()
}

func appendRates(rows []RateRow, kind analysis.Kind, samples []rate.Sample) []RateRow {
	for _, s := range samples {
		rows = append(rows, RateRow{
			Channel:   kind.String(),
			Timestamp: s.Timestamp,
			Value:     s.Value,
			SNR:       s.SNR,
			Quality:   string(s.Quality),
		})
	}
	return rows
}

// ReadParquet rebuilds a snapshot from the two tables written by
// WriteSignalsParquet and WriteRatesParquet.
func ReadParquet(signals io.ReaderAt, signalsSize int64, rates io.ReaderAt) (vitals.Snapshot, error) {
	var snap vitals.Snapshot

	f, err := parquet.OpenFile(signals, signalsSize)
	if err != nil {
		return snap, fmt.Errorf("export: opening signals table: %w", err)
	}
	if snap.Metadata, snap.Timestamps, err = readMetadata(f); err != nil {
		return snap, err
	}

	sigRows, err := readAll[SignalRow](signals)
	if err != nil {
		return snap, fmt.Errorf("export: reading signals: %w", err)
	}
	c, r := &snap.Signals.Cardiac, &snap.Signals.Respiratory
	for _, row := range sigRows {
		c.Raw = append(c.Raw, row.CardiacRaw)
		c.Filtered = append(c.Filtered, row.CardiacFiltered)
		r.Raw = append(r.Raw, row.RespRaw)
		r.Filtered = append(r.Filtered, row.RespFiltered)
	}

	rateRows, err := readAll[RateRow](rates)
	if err != nil {
		return snap, fmt.Errorf("export: reading rates: %w", err)
	}
	for _, row := range rateRows {
		s := rate.Sample{Timestamp: row.Timestamp, Value: row.Value, SNR: row.SNR, Quality: analysis.Label(row.Quality)}
		switch row.Channel {
		case analysis.Cardiac.String():
			snap.Rates.Cardiac = append(snap.Rates.Cardiac, s)
		case analysis.Respiratory.String():
			snap.Rates.Respiratory = append(snap.Rates.Respiratory, s)
		default:
			return snap, fmt.Errorf("export: rate row for unknown channel %q", row.Channel)
		}
	}
	return snap, nil
}

func readMetadata(f *parquet.File) (vitals.Metadata, []string, error) {
	lookup := func(key string) string {
		v, _ := f.Lookup(key)
		return v
	}

	m := vitals.Metadata{
		SessionID: lookup(keySessionID),
		StartTime: lookup(keyStartTime),
		EndTime:   lookup(keyEndTime),
	}
	var err error
	if v := lookup(keySamplingRate); v != "" {
		if m.SamplingRate, err = strconv.ParseFloat(v, 64); err != nil {
			return m, nil, fmt.Errorf("export: bad sampling rate %q: %w", v, err)
		}
	}
	if v := lookup(keyTotalSamples); v != "" {
		if m.TotalSamples, err = strconv.Atoi(v); err != nil {
			return m, nil, fmt.Errorf("export: bad sample count %q: %w", v, err)
		}
	}

	timestamps := []string{}
	if v := lookup(keyTimestamps); v != "" {
		timestamps = strings.Split(v, ",")
	}
	return m, timestamps, nil
}

func readAll[T any](ra io.ReaderAt) ([]T, error) {
	gr := parquet.NewGenericReader[T](ra)
	defer gr.Close()

	out := make([]T, 0, gr.NumRows())
	batch := make([]T, readBatch)
	for {
		n, err := gr.Read(batch)
		if n > 0 {
			out = append(out, batch[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
