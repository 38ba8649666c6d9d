package model

import "time"

// LinkStatus is the classification of a validated URL.
type LinkStatus string

const (
	// StatusWorking means the URL answered with a 2xx or 3xx status.
	StatusWorking LinkStatus = "working"

	// StatusBroken means the URL answered with a status of 400 or above.
	StatusBroken LinkStatus = "broken"

	// StatusError means no HTTP status was obtained (DNS, timeout, refused, TLS...).
	StatusError LinkStatus = "error"
)

// LinkKind tells whether a URL was crawled for further links.
type LinkKind string

const (
	// KindPage marks a URL whose body was parsed for further links.
	KindPage LinkKind = "page"

	// KindCheck marks a URL that was only validated.
	KindCheck LinkKind = "check"
)

// ClassifyStatusCode maps an HTTP status code to working or broken.
func ClassifyStatusCode(code int) LinkStatus {
	if code >= 400 {
		return StatusBroken
	}
	return StatusWorking
}

// LinkRecord is the outcome of validating one URL.
//
// StatusCode is set only for working and broken records. FinalURL is set
// only when redirects changed the URL. ErrorMessage is set only for error
// records.
type LinkRecord struct {
	URL          string     `json:"url"`
	Status       LinkStatus `json:"status"`
	StatusCode   int        `json:"status_code,omitempty"`
	FinalURL     string     `json:"final_url,omitempty"`
	ErrorMessage string     `json:"error,omitempty"`
	Kind         LinkKind   `json:"type"`
	DiscoveredAt time.Time  `json:"timestamp"`
}

// HasProblem reports whether the record is broken or errored.
func (r LinkRecord) HasProblem() bool {
	return r.Status == StatusBroken || r.Status == StatusError
}
