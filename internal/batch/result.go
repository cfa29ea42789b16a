package batch

import (
	"sort"
)

type ItemError struct {
	Position int    `json:"position"`
	ID       string `json:"id,omitempty"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

// ChunkResult is one entry of the batch log.
type ChunkResult struct {
	Index     int   `json:"index"`
	Positions []int `json:"positions"`
	Committed bool  `json:"committed"`
	Err       error `json:"-"`
}

type Result struct {
	SuccessCount  int           `json:"success_count"`
	Errors        []ItemError   `json:"errors"`
	Chunks        []ChunkResult `json:"chunks,omitempty"`
	ClassesRanked []string      `json:"classes_ranked,omitempty"`
	RankingError  string        `json:"ranking_error,omitempty"`
}

func (r *Result) addError(pos int, id string, err error) {
	r.Errors = append(r.Errors, ItemError{Position: pos, ID: id, Message: err.Error(), Err: err})
	SortErrors(r.Errors)
}

// SortErrors orders item errors by position.
func SortErrors(errs []ItemError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Position < errs[j].Position })
}

// Pending lists the chunks that were not committed.
func (r *Result) Pending() []ChunkResult {
	var out []ChunkResult
	for _, c := range r.Chunks {
		if !c.Committed {
			out = append(out, c)
		}
	}
	return out
}

// ResumePoint is the index of the first uncommitted chunk, or -1.
func (r *Result) ResumePoint() int {
	for _, c := range r.Chunks {
		if !c.Committed {
			return c.Index
		}
	}
	return -1
}

func (r *Result) Complete() bool {
	return len(r.Errors) == 0 && r.ResumePoint() == -1
}
