// SPDX-License-Identifier: MIT
package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/analysis"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/rate"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/pkg/synth"
)

func testSnapshot() vitals.Snapshot {
	return vitals.Snapshot{
		Metadata: vitals.Metadata{
			SessionID:    "5f0c8a52-7a0e-4d3f-9d3e-6b2f1f6c2a10",
			SamplingRate: 30,
			StartTime:    "2025-04-13T09:30:00Z",
			EndTime:      "2025-04-13T09:30:04Z",
			TotalSamples: 3,
		},
		Signals: vitals.Signals{
			Cardiac:     vitals.ChannelData{Raw: []float64{1, 2, 3}, Filtered: []float64{0.1, -0.2, 0.3}},
			Respiratory: vitals.ChannelData{Raw: []float64{4, 5, 6}, Filtered: []float64{-0.4, 0.5, -0.6}},
		},
		Rates: vitals.Rates{
			Cardiac:     []rate.Sample{{Timestamp: "2025-04-13T09:30:04Z", Value: 72.5, SNR: 11.2, Quality: analysis.Excellent}},
			Respiratory: []rate.Sample{{Timestamp: "2025-04-13T09:30:04Z", Value: 15.1, SNR: 4.1, Quality: analysis.Good}},
		},
		Timestamps: []string{"2025-04-13T09:30:00Z", "2025-04-13T09:30:04Z"},
	}
}

// liveSnapshot runs a short synthetic session through a real processor.
func liveSnapshot(t *testing.T) vitals.Snapshot {
	t.Helper()
	s := vitals.DefaultSettings()
	p, err := vitals.NewProcessor(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.StartCapture()

	gen := synth.NewGenerator(s.SampleRate, 66, 12, 0.05, 7)
	adm := vitals.NewAdmission(s.InitialWindow, s.SubsequentWindow)
	start := time.Date(2025, 4, 13, 9, 30, 0, 0, time.UTC)
	for tick := 0; tick < 5; {
		c, r := gen.Next(1)
		b, ok := adm.Push(c[0], r[0])
		if !ok {
			continue
		}
		ts := start.Add(time.Duration(tick) * 4 * time.Second).Format(time.RFC3339)
		if _, err := p.ProcessNewSignals(b.Cardiac, b.Respiratory, ts); err != nil {
			t.Fatal(err)
		}
		tick++
	}
	return p.ExportData()
}

func TestJSONRoundTrip(t *testing.T) {
	for name, snap := range map[string]vitals.Snapshot{"fixed": testSnapshot(), "live": liveSnapshot(t)} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteJSON(&buf, snap); err != nil {
				t.Fatal(err)
			}
			got, err := ReadJSON(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, snap) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got.Metadata, snap.Metadata)
			}
		})
	}
}

func TestJSONKeys(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, testSnapshot()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, key := range []string{`"metadata"`, `"samplingRate"`, `"startTime"`, `"endTime"`, `"totalSamples"`, `"signals"`, `"raw"`, `"filtered"`, `"rates"`, `"timestamps"`} {
		if !strings.Contains(out, key) {
			t.Errorf("exported JSON lacks key %s", key)
		}
	}
}

func TestReadJSONRejectsMismatchedHistories(t *testing.T) {
	in := `{"signals":{"cardiac":{"raw":[1,2],"filtered":[1]},"respiratory":{"raw":[],"filtered":[]}}}`
	if _, err := ReadJSON(strings.NewReader(in)); err == nil {
		t.Error("expected an error for unequal raw/filtered lengths")
	}
}

func TestParquetRoundTrip(t *testing.T) {
	snap := liveSnapshot(t)

	var signals, rates bytes.Buffer
	if err := WriteSignalsParquet(&signals, snap); err != nil {
		t.Fatalf("WriteSignalsParquet: %v", err)
	}
	if err := WriteRatesParquet(&rates, snap); err != nil {
		t.Fatalf("WriteRatesParquet: %v", err)
	}

	got, err := ReadParquet(bytes.NewReader(signals.Bytes()), int64(signals.Len()), bytes.NewReader(rates.Bytes()))
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}

	if got.Metadata != snap.Metadata {
		t.Errorf("metadata = %+v, want %+v", got.Metadata, snap.Metadata)
	}
	if !reflect.DeepEqual(got.Timestamps, snap.Timestamps) {
		t.Errorf("timestamps = %v, want %v", got.Timestamps, snap.Timestamps)
	}
	if !reflect.DeepEqual(got.Signals, snap.Signals) {
		t.Error("signals differ after parquet round trip")
	}
	if !reflect.DeepEqual(got.Rates, snap.Rates) {
		t.Errorf("rates differ after parquet round trip: got %d/%d, want %d/%d",
			len(got.Rates.Cardiac), len(got.Rates.Respiratory), len(snap.Rates.Cardiac), len(snap.Rates.Respiratory))
	}
}

func TestSave(t *testing.T) {
	snap := testSnapshot()
	tests := []struct {
		format Format
		files  []string
	}{
		{JSON, []string{"session-" + snap.Metadata.SessionID + ".json"}},
		{Parquet, []string{"session-" + snap.Metadata.SessionID + "_signals.parquet", "session-" + snap.Metadata.SessionID + "_rates.parquet"}},
		{Both, []string{"session-" + snap.Metadata.SessionID + ".json", "session-" + snap.Metadata.SessionID + "_signals.parquet", "session-" + snap.Metadata.SessionID + "_rates.parquet"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "exports")
			paths, err := Save(dir, tt.format, snap)
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if len(paths) != len(tt.files) {
				t.Fatalf("Save returned %v, want %v", paths, tt.files)
			}
			for i, name := range tt.files {
				if filepath.Base(paths[i]) != name {
					t.Errorf("path %d = %s, want %s", i, filepath.Base(paths[i]), name)
				}
				if _, err := os.Stat(paths[i]); err != nil {
					t.Errorf("file not written: %v", err)
				}
			}
		})
	}

	if _, err := Save(t.TempDir(), Format("xml"), snap); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("unknown format error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	snap := testSnapshot()
	paths, err := Save(t.TempDir(), JSON, snap)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Load(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Error("Load returned a different snapshot")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", JSON, false},
		{"json", JSON, false},
		{" Parquet ", Parquet, false},
		{"BOTH", Both, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
