package command

import "encoding/json"

// Status tells what a command invocation did.
type Status int

const (
	StatusSaved Status = iota
	StatusRejected
	StatusNotFound
	StatusWriteFailed
)

func (s Status) String() string {
	switch s {
	case StatusSaved:
		return "saved"
	case StatusRejected:
		return "rejected"
	case StatusNotFound:
		return "not_found"
	case StatusWriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of one invocation.
type Result struct {
	Command string
	Status  Status
	File    string // name of the resolved file, if any
	Err     error
}

// Completed keeps the boolean contract of the save event: false only when the
// request was rejected before anything was attempted. Not found and write
// failures still count as completed; inspect Status or Err to tell them apart.
func (r Result) Completed() bool {
	return r.Status != StatusRejected
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Command   string `json:"command"`
		Status    Status `json:"status"`
		Completed bool   `json:"completed"`
		File      string `json:"file,omitempty"`
		Error     string `json:"error,omitempty"`
	}{
		Command:   r.Command,
		Status:    r.Status,
		Completed: r.Completed(),
		File:      r.File,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
