package report

import "github.com/nao1215/brokenlink/internal/model"

// Comparison describes how the problem links of a site changed between two scans.
type Comparison struct {
	PreviousStart string `json:"previous_start_time"`
	CurrentStart  string `json:"current_start_time"`

	// NewProblems are broken or error links that were fine or unseen before.
	NewProblems []model.LinkRecord `json:"new_problems"`

	// Resolved are links that were broken or errored and are now working or gone.
	Resolved []model.LinkRecord `json:"resolved"`

	// Persisting are links that were and still are broken or errored.
	Persisting []model.LinkRecord `json:"persisting"`

	BrokenDelta int `json:"broken_delta"`
	ErrorDelta  int `json:"error_delta"`
}

// Direction summarizes a comparison as "worsened", "improved" or "unchanged".
func (c *Comparison) Direction() string {
	switch {
	case len(c.NewProblems) > len(c.Resolved):
		return "worsened"
	case len(c.NewProblems) < len(c.Resolved):
		return "improved"
	default:
		return "unchanged"
	}
}

// Compare matches the problem links of two scans by URL.
func Compare(previous, current *model.ScanResult) *Comparison {
	c := &Comparison{
		PreviousStart: previous.StartTime.Format("2006-01-02 15:04:05"),
		CurrentStart:  current.StartTime.Format("2006-01-02 15:04:05"),
		NewProblems:   []model.LinkRecord{},
		Resolved:      []model.LinkRecord{},
		Persisting:    []model.LinkRecord{},
		BrokenDelta:   current.Statistics.BrokenCount - previous.Statistics.BrokenCount,
		ErrorDelta:    current.Statistics.ErrorCount - previous.Statistics.ErrorCount,
	}

	before := problemSet(previous)
	after := problemSet(current)

	for _, rec := range current.Records() {
		if !rec.HasProblem() {
			continue
		}
		if _, ok := before[rec.URL]; ok {
			c.Persisting = append(c.Persisting, rec)
		} else {
			c.NewProblems = append(c.NewProblems, rec)
		}
	}
	for _, rec := range previous.Records() {
		if !rec.HasProblem() {
			continue
		}
		if _, ok := after[rec.URL]; !ok {
			c.Resolved = append(c.Resolved, rec)
		}
	}
	return c
}

func problemSet(r *model.ScanResult) map[string]struct{} {
	set := make(map[string]struct{}, len(r.Broken)+len(r.Errors))
	for _, rec := range r.Broken {
		set[rec.URL] = struct{}{}
	}
	for _, rec := range r.Errors {
		set[rec.URL] = struct{}{}
	}
	return set
}
