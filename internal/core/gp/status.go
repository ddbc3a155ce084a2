package gp

import "github.com/mohammed-shakir/watershed-gateway/internal/core/model"

// SuccessStatuses lists every token accepted as a successful job. The REST
// API documents "esriJobSucceeded"; the JavaScript client reports
// "job-succeeded". Both are seen in the wild.
var SuccessStatuses = []model.JobStatus{
	"esriJobSucceeded",
	"job-succeeded",
}

// statuses that mean the job is still moving; anything else ends polling
var pendingStatuses = map[model.JobStatus]struct{}{
	"esriJobNew":        {},
	"esriJobSubmitted":  {},
	"esriJobWaiting":    {},
	"esriJobExecuting":  {},
	"esriJobCancelling": {},
	"esriJobDeleting":   {},
	"job-new":           {},
	"job-submitted":     {},
	"job-waiting":       {},
	"job-executing":     {},
	"job-cancelling":    {},
	"job-deleting":      {},
}

func Succeeded(s model.JobStatus) bool {
	for _, ok := range SuccessStatuses {
		if s == ok {
			return true
		}
	}
	return false
}

func Terminal(s model.JobStatus) bool {
	_, pending := pendingStatuses[s]
	return !pending
}
