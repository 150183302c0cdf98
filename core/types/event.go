package types

// Event represents a typed notification emitted during settlement state
// transitions. Attributes carry the human-readable breakdown (amounts, fee
// splits, parties) consumed by off-chain indexers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
