package chat

// Event is one element of the answer stream. Exactly one field is set per
// event except the final one, which has Done true.
//
// The wire format is one JSON object per line.
type Event struct {
	Status string `json:"status,omitempty"`
	Chunk  string `json:"chunk,omitempty"`
	Error  string `json:"error,omitempty"`
	Done   bool   `json:"done,omitempty"`
}

// Status values emitted while a turn progresses.
const (
	StatusRetrieving     = "retrieving"
	StatusRetrievingDone = "retrieving_done"
	StatusGenerating     = "generating_answer"
)
