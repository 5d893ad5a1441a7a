package sandbox

import (
	"time"

	"example.com/salesreport-sync/internal/spapi"
)

// Report is a report request accepted by the fake reporting API. Each poll
// advances through Script; the last status sticks.
type Report struct {
	ID             string                   `json:"reportId"`
	ReportType     string                   `json:"reportType"`
	DataStartTime  string                   `json:"dataStartTime"`
	DataEndTime    string                   `json:"dataEndTime"`
	MarketplaceIDs []string                 `json:"marketplaceIds"`
	Script         []spapi.ProcessingStatus `json:"script"`
	Polls          int                      `json:"polls"`
	DocumentID     string                   `json:"reportDocumentId"`
	Content        string                   `json:"-"`
	CreatedAt      time.Time                `json:"createdTime"`
}

// Status is the processing status the report shows after its polls so far.
func (r Report) Status() spapi.ProcessingStatus {
	if len(r.Script) == 0 {
		return spapi.StatusDone
	}
	idx := r.Polls - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.Script) {
		idx = len(r.Script) - 1
	}
	return r.Script[idx]
}

// Submission is a payload received by the fake RESTlet.
type Submission struct {
	ID         string                 `json:"id"`
	Status     spapi.ProcessingStatus `json:"status"`
	Content    *string                `json:"content"`
	FileName   string                 `json:"fileName"`
	FileType   string                 `json:"fileType"`
	ReceivedAt time.Time              `json:"received_at"`
}

// Scenario controls what newly created reports do.
type Scenario struct {
	Statuses []spapi.ProcessingStatus `json:"statuses"`
	Content  string                   `json:"content"`
}

// DefaultScenario completes after two polls with a small report body.
func DefaultScenario() Scenario {
	return Scenario{
		Statuses: []spapi.ProcessingStatus{spapi.StatusInQueue, spapi.StatusInProgress, spapi.StatusDone},
		Content:  `{"reportSpecification":{"reportType":"GET_SALES_AND_TRAFFIC_REPORT"},"salesAndTrafficByDate":[],"salesAndTrafficByAsin":[]}`,
	}
}
