package api

import (
	"time"

	"github.com/nao1215/brokenlink/internal/model"
)

// ScanRequest is the body of POST /scan. Omitted fields take the defaults
// of model.DefaultScanConfig.
type ScanRequest struct {
	URL            string   `json:"url" binding:"required"`
	MaxURLs        *int     `json:"max_urls"`
	MaxDepth       *int     `json:"max_depth"`
	Delay          *float64 `json:"delay"` // seconds
	SameDomainOnly *bool    `json:"same_domain_only"`
	Wait           bool     `json:"wait"`
}

// config builds the scan configuration for the request.
func (r ScanRequest) config() model.ScanConfig {
	cfg := model.DefaultScanConfig(r.URL)
	if r.MaxURLs != nil {
		cfg.MaxURLs = *r.MaxURLs
	}
	if r.MaxDepth != nil {
		cfg.MaxDepth = *r.MaxDepth
	}
	if r.Delay != nil {
		cfg.Delay = time.Duration(*r.Delay * float64(time.Second))
	}
	if r.SameDomainOnly != nil {
		cfg.SameDomainOnly = *r.SameDomainOnly
	}
	return cfg
}

// StartResponse is returned when a scan was accepted.
type StartResponse struct {
	ScanID  string          `json:"scan_id"`
	Status  model.JobStatus `json:"status"`
	MaxURLs int             `json:"max_urls"`
}

// CompletedResponse is returned by POST /scan when the caller waited.
type CompletedResponse struct {
	Message    string           `json:"message"`
	ScanID     string           `json:"scan_id"`
	ResultFile string           `json:"result_file"`
	Statistics model.Statistics `json:"statistics"`
	MaxURLs    int              `json:"max_urls"`
}

// StatusResponse is returned by GET /status/:scan_id.
type StatusResponse struct {
	Status             model.JobStatus    `json:"status"`
	TotalURLsProcessed int                `json:"total_urls_processed"`
	WorkingLinks       int                `json:"working_links"`
	BrokenLinks        int                `json:"broken_links"`
	ErrorLinks         int                `json:"error_links"`
	BrokenLinksList    []model.LinkRecord `json:"broken_links_list"`
	ErrorLinksList     []model.LinkRecord `json:"error_links_list"`
	StartDomain        string             `json:"start_domain"`
	MaxURLs            int                `json:"max_urls"`
	MaxDepth           int                `json:"max_depth"`
	Delay              float64            `json:"delay"`
	SameDomainOnly     bool               `json:"same_domain_only"`
	Cancelled          bool               `json:"cancelled"`
	Error              string             `json:"error,omitempty"`
}

func newStatusResponse(job model.ScanJob) StatusResponse {
	resp := StatusResponse{
		Status:          job.Status,
		BrokenLinksList: []model.LinkRecord{},
		ErrorLinksList:  []model.LinkRecord{},
		MaxURLs:         job.Config.MaxURLs,
		MaxDepth:        job.Config.MaxDepth,
		Delay:           job.Config.Delay.Seconds(),
		SameDomainOnly:  job.Config.SameDomainOnly,
		Error:           job.Reason,
	}
	if r := job.Result; r != nil {
		resp.TotalURLsProcessed = r.Statistics.TotalProcessed
		resp.WorkingLinks = r.Statistics.WorkingCount
		resp.BrokenLinks = r.Statistics.BrokenCount
		resp.ErrorLinks = r.Statistics.ErrorCount
		resp.StartDomain = r.StartDomain
		resp.Cancelled = r.Cancelled
		if r.Broken != nil {
			resp.BrokenLinksList = r.Broken
		}
		if r.Errors != nil {
			resp.ErrorLinksList = r.Errors
		}
	}
	return resp
}

// JobSummary is one entry of GET /scans.
type JobSummary struct {
	ScanID     string          `json:"scan_id"`
	Status     model.JobStatus `json:"status"`
	StartURL   string          `json:"start_url"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
	ResultFile string          `json:"result_file,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func newJobSummary(job model.ScanJob) JobSummary {
	return JobSummary{
		ScanID:     job.ID,
		Status:     job.Status,
		StartURL:   job.Config.StartURL,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
		ResultFile: job.ResultFile,
		Error:      job.Reason,
	}
}
