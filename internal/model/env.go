package model

import "github.com/google/uuid"

// RunEnv identifies the current run to outbound side channels (notification,
// upload). When the host platform does not supply a run id, a fresh one is
// generated so links in notifications stay unique per process.
type RunEnv struct {
	RunID     string `json:"runId"`
	DatasetID string `json:"datasetId"`
}

// NewRunEnv stamps a run environment, generating the run id when absent.
func NewRunEnv(runID, datasetID string) RunEnv {
	if runID == "" {
		runID = uuid.New().String()
	}
	return RunEnv{RunID: runID, DatasetID: datasetID}
}

// NewInternalReviewID mints the stable internal id attached to each review
// at extraction time.
func NewInternalReviewID() string {
	return uuid.New().String()
}
