package wave

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/tts/audio"
)

func writeSineWAV(t *testing.T, path string, freq float64, sampleRate, n int) {
	t.Helper()
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	if err := audio.WriteWAVPCM16LEFile(path, pcm16LEFrom(samples), sampleRate); err != nil {
		t.Fatalf("writeSineWAV: %v", err)
	}
}

func TestRunJobProducesOneTrackPerTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "1_river_calm_soothing_0001.wav")
	writeSineWAV(t, src, 220, 8000, 8000)

	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir outDir: %v", err)
	}

	job := Job{
		SessionID:       "sess-1",
		TurnIndex:       1,
		Kind:            "response",
		SourceSlotId:    1,
		SourceAudioPath: src,
		OutputDir:       outDir,
		ArtifactsRoot:   dir,
		Targets:         TargetsForSource(1, 1),
	}
	res := runJob(job)

	if !res.Success {
		t.Fatalf("runJob() Success = false, Error = %q", res.Error)
	}
	if len(res.Tracks) != 2 {
		t.Fatalf("len(Tracks) = %d, want 2", len(res.Tracks))
	}
	for _, tr := range res.Tracks {
		if _, err := os.Stat(tr.AbsPath); err != nil {
			t.Fatalf("expected track file %s to exist: %v", tr.AbsPath, err)
		}
		band := SlotFreqTargets[tr.TargetSlotId]
		if tr.FreqRangeHz != band {
			t.Fatalf("FreqRangeHz = %+v, want %+v", tr.FreqRangeHz, band)
		}
		if tr.RelPath == "" || filepath.IsAbs(tr.RelPath) {
			t.Fatalf("RelPath = %q, want a non-empty path relative to %q", tr.RelPath, dir)
		}
	}
}

func TestRunJobSummaryNamesFilesWithSummaryPrefix(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "river_calm_soothing.wav")
	writeSineWAV(t, src, 150, 8000, 8000)

	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir outDir: %v", err)
	}

	job := Job{
		SessionID:       "sess-2",
		TurnIndex:       4,
		Kind:            "summary",
		SourceAudioPath: src,
		OutputDir:       outDir,
		Targets:         TargetsForSource(0, 4),
	}
	res := runJob(job)

	if !res.Success {
		t.Fatalf("runJob() Success = false, Error = %q", res.Error)
	}
	if len(res.Tracks) != 6 {
		t.Fatalf("len(Tracks) = %d, want 6", len(res.Tracks))
	}
	for _, tr := range res.Tracks {
		if filepath.Base(tr.AbsPath)[:8] != "summary_" {
			t.Fatalf("track filename %q does not start with summary_", filepath.Base(tr.AbsPath))
		}
	}
}

func TestRunJobReturnsWaveErrorForMissingSource(t *testing.T) {
	job := Job{
		SessionID:       "sess-3",
		TurnIndex:       1,
		SourceSlotId:    1,
		SourceAudioPath: filepath.Join(t.TempDir(), "does-not-exist.wav"),
		OutputDir:       t.TempDir(),
		Targets:         []agent.SlotId{1, 2},
	}
	res := runJob(job)
	if res.Success {
		t.Fatalf("expected failure for missing source file")
	}
	if res.Error != "wave_error" {
		t.Fatalf("Error = %q, want wave_error", res.Error)
	}
}
