package status

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle phase of a download job.
type Status int32

const (
	Pending Status = iota
	Downloading
	Finalizing
	Completed
	Failed
)

var names = map[Status]string{
	Pending:     "pending",
	Downloading: "downloading",
	Finalizing:  "finalizing",
	Completed:   "completed",
	Failed:      "failed",
}

func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case Pending:
		return next == Downloading || next == Failed
	case Downloading:
		return next == Downloading || next == Finalizing || next == Completed || next == Failed
	case Finalizing:
		// A 100% line ends one stream; a merged download goes on to the next.
		return next == Finalizing || next == Downloading || next == Completed || next == Failed
	default:
		return false
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}

	for k, v := range names {
		if v == name {
			*s = k
			return nil
		}
	}

	return fmt.Errorf("unknown status %q", name)
}
