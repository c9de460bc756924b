package workflow

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/watershed-arts/basin/internal/agent"
)

// shuffleKey hashes (sessionId, fromSlot, peerSlot) into a stable
// uint64, giving a deterministic pseudo-shuffle per spec §4.5's
// determinism hooks: "peer ordering ... deterministic functions of
// inputs so tests can assert exact routing."
func shuffleKey(sessionID string, s agent.SlotId, peer agent.SlotId) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d:%d", sessionID, s, peer)
	return h.Sum64()
}

// shufflePeers returns peers (turn-1 successes excluding s) ordered by
// shuffleKey ascending — the same inputs always produce the same
// order.
func shufflePeers(sessionID string, s agent.SlotId, peers []agent.SlotId) []agent.SlotId {
	out := make([]agent.SlotId, len(peers))
	copy(out, peers)
	sort.Slice(out, func(i, j int) bool {
		return shuffleKey(sessionID, s, out[i]) < shuffleKey(sessionID, s, out[j])
	})
	return out
}

// truncateHard cuts text to at most max runes, with no regard for
// sentence boundaries — used for response/reply/summary text, whose
// length caps come only from §4.4's TTS input limit, not from an
// explicit truncation rule.
func truncateHard(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max])
}

// truncateAtSentence truncates comment text to at most max runes,
// cutting at the last sentence boundary (., !, or ?) at or before max
// when one exists, per spec §4.5 Turn 2 step 3. Falls back to a hard
// cut if no sentence boundary is found.
func truncateAtSentence(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	window := string(r[:max])
	lastIdx := -1
	for i, c := range window {
		if c == '.' || c == '!' || c == '?' {
			lastIdx = i
		}
	}
	if lastIdx == -1 {
		return window
	}
	// lastIdx is a byte offset into window; include the punctuation rune.
	_, size := utf8.DecodeRuneInString(window[lastIdx:])
	return strings.TrimSpace(window[:lastIdx+size])
}

// firstAscending returns the lowest element of slots.
func firstAscending(slots []agent.SlotId) agent.SlotId {
	out := slots[0]
	for _, s := range slots[1:] {
		if s < out {
			out = s
		}
	}
	return out
}
