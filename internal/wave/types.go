// Package wave implements the Wave Decomposition Worker Pool of spec
// §4.6: a bounded CPU pool that turns a rendered speech clip into N
// cosine-synthesised wave tracks, notifying an async result channel on
// completion without blocking the submitter.
package wave

import "github.com/watershed-arts/basin/internal/agent"

// FreqRange is a target speaker's frequency band in Hz.
type FreqRange struct {
	LowHz  float64
	HighHz float64
}

// SlotFreqTargets is the symmetric dome of spec §4.6.
var SlotFreqTargets = map[agent.SlotId]FreqRange{
	1: {80, 100},
	2: {50, 70},
	3: {20, 40},
	4: {20, 40},
	5: {50, 70},
	6: {80, 100},
}

// Job describes one decomposition request.
type Job struct {
	SessionID       string
	TurnIndex       int
	Kind            string // "response", "comment", "reply", "summary" — for logging only
	SourceSlotId    agent.SlotId
	SourceAudioPath string
	OutputDir       string
	ArtifactsRoot   string         // used to compute each Track's artifact-relative path
	Targets         []agent.SlotId // which slots this source clip decomposes into
}

// Track is one synthesised wave file.
type Track struct {
	WaveNum      int
	TargetSlotId agent.SlotId
	AbsPath      string
	RelPath      string
	FreqRangeHz  FreqRange
	RMSE         float64
}

// Result is published on the pool's result channel for every
// completed (or failed/timed-out) job, unless that channel is full, in
// which case the pool drops it with a warning.
type Result struct {
	Job        Job
	Tracks     []Track
	Success    bool
	Error      string // taxonomy class string, e.g. "wave_error"
	DurationMs int64
}

// TargetsForSource returns the target slots a source clip decomposes
// into, per spec §4.6's distribution rule: turns 1-3 produce two
// tracks (s and (s mod 6)+1); the summary source has no "source slot"
// in the same sense and instead targets all six.
func TargetsForSource(sourceSlot agent.SlotId, turnIndex int) []agent.SlotId {
	if turnIndex == 4 {
		return []agent.SlotId{1, 2, 3, 4, 5, 6}
	}
	other := (sourceSlot % 6) + 1
	return []agent.SlotId{sourceSlot, other}
}
