package wave

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/watershed-arts/basin/internal/errclass"
	"github.com/watershed-arts/basin/internal/tts/audio"
)

// runJob executes the full spec §4.6 pipeline for one Job: load the
// source clip, track pitch, extract per-harmonic envelopes, remap
// each harmonic into every target slot's frequency band, synthesise
// and gain-correct, then write one WAV per target.
func runJob(job Job) Result {
	start := time.Now()
	res := Result{Job: job}

	samples, sampleRate, err := loadWAVMono(job.SourceAudioPath)
	if err != nil {
		res.Error = string(errclass.WaveError)
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	f0 := pitchContour(samples, sampleRate)
	envelopes := stftHarmonicEnvelopes(samples, sampleRate, f0)

	base := strings.TrimSuffix(filepath.Base(job.SourceAudioPath), filepath.Ext(job.SourceAudioPath))

	tracks := make([]Track, 0, len(job.Targets))
	for waveNum, target := range job.Targets {
		band, ok := SlotFreqTargets[target]
		if !ok {
			continue
		}
		mappedFreq := mapPitchToBand(f0, band)

		harmonicSignals := make([][]float64, 0, harmonics)
		for k := 1; k <= harmonics; k++ {
			sig := synthesizeHarmonic(envelopes[k-1], mappedFreq, sampleRate, len(samples), k)
			harmonicSignals = append(harmonicSignals, sig)
		}
		mixed, rmse := sumAndGain(harmonicSignals, samples)

		var filename string
		if job.TurnIndex == 4 {
			filename = fmt.Sprintf("summary_%s_v3_wave%d.wav", base, waveNum+1)
		} else {
			filename = fmt.Sprintf("%s_v3_wave%d.wav", base, waveNum+1)
		}
		outPath := filepath.Join(job.OutputDir, filename)

		pcm := pcm16LEFrom(mixed)
		if err := audio.WriteWAVPCM16LEFile(outPath, pcm, sampleRate); err != nil {
			res.Error = string(errclass.WaveError)
			res.DurationMs = time.Since(start).Milliseconds()
			return res
		}

		tracks = append(tracks, Track{
			WaveNum:      waveNum + 1,
			TargetSlotId: target,
			AbsPath:      outPath,
			RelPath:      relArtifactPath(job.ArtifactsRoot, outPath),
			FreqRangeHz:  band,
			RMSE:         rmse,
		})
	}

	res.Tracks = tracks
	res.Success = true
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

// relArtifactPath returns outPath relative to root for serving via
// GET /v1/audio/<relpath> and for push-channel payloads (spec §4.8:
// "every referenced wave or clip carries both absolute and
// artifact-relative paths"). Falls back to the absolute path if root
// is unset or outPath isn't under it.
func relArtifactPath(root, outPath string) string {
	if root == "" {
		return outPath
	}
	rel, err := filepath.Rel(root, outPath)
	if err != nil {
		return outPath
	}
	return rel
}
