// Package agent holds the fixed enumerations of spec §3: speaker
// slots, agent identities, and voice profiles. The AgentId -> model
// mapping and the voice profile table are both pure lookups declared
// as package-level tables, so rewiring to a newer model or voice
// changes only this package (agent.go and voice.go).
package agent

// SlotId is one of the six physical speaker positions.
type SlotId int

// AgentId is a UI-stable symbolic name. It never changes when the
// underlying provider/model mapping is rewired.
type AgentId string

const (
	AgentRiver    AgentId = "river"
	AgentStone    AgentId = "stone"
	AgentReed     AgentId = "reed"
	AgentEcho     AgentId = "echo"
	AgentTide     AgentId = "tide"
	AgentCurrent  AgentId = "current"
)

// Info describes an agent for the /v1/agents listing.
type Info struct {
	ID          AgentId
	Name        string
	Provider    string
	Model       string
	Description string
	Color       string
}

// registry is the pure AgentId -> provider/model lookup table.
var registry = map[AgentId]Info{
	AgentRiver:   {AgentRiver, "River", "anthropic", "claude-haiku-4-5", "Calm, observational, speaks in long vowels.", "#3b82f6"},
	AgentStone:   {AgentStone, "Stone", "anthropic", "claude-haiku-4-5", "Blunt and grounded, short declarative sentences.", "#78716c"},
	AgentReed:    {AgentReed, "Reed", "openai", "gpt-4.1-mini", "Playful, quick, interrupts its own thoughts.", "#22c55e"},
	AgentEcho:    {AgentEcho, "Echo", "openai", "gpt-4.1-mini", "Repeats and reshapes what it hears.", "#a855f7"},
	AgentTide:    {AgentTide, "Tide", "anthropic", "claude-haiku-4-5", "Builds and recedes, speaks in waves of emphasis.", "#06b6d4"},
	AgentCurrent: {AgentCurrent, "Current", "openai", "gpt-4.1-mini", "Restless, always moving the conversation forward.", "#f59e0b"},
}

// Lookup returns the registered Info for an AgentId, ok=false if unknown.
func Lookup(id AgentId) (Info, bool) {
	info, ok := registry[id]
	return info, ok
}

// All returns every registered agent, in a stable declared order.
func All() []Info {
	order := []AgentId{AgentRiver, AgentStone, AgentReed, AgentEcho, AgentTide, AgentCurrent}
	out := make([]Info, 0, len(order))
	for _, id := range order {
		if info, ok := registry[id]; ok {
			out = append(out, info)
		}
	}
	return out
}

// SlotAssignment binds a slot to an agent for one request. The
// orchestrator receives these per-request; they are never persisted.
type SlotAssignment struct {
	SlotId  SlotId  `json:"slotId"`
	AgentId AgentId `json:"agentId"`
}
