package domain

import "time"

// TaskFetchTopStories is the only task type carried by trigger messages.
const TaskFetchTopStories = "fetch_top_stories"

// TriggerMessage is the JSON body published to the trigger topic.
type TriggerMessage struct {
	TaskType  string `json:"task_type"`
	Timestamp string `json:"timestamp"`
}

// Trigger describes why an ingestion run started.
type Trigger struct {
	RunID   string
	Source  string
	Message *TriggerMessage
}

// Trigger sources.
const (
	SourceDirect   = "direct"
	SourceConsumer = "consumer"
)

// RunStatus is the terminal outcome of an ingestion run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
)

// RunResult is returned by every ingestion run, successful or not.
type RunResult struct {
	RunID           string        `json:"run_id"`
	Status          RunStatus     `json:"status"`
	Processed       int           `json:"processed"`
	New             int           `json:"new"`
	Updated         int           `json:"updated"`
	FailedFetches   int           `json:"failed_fetches"`
	MentionsCreated int           `json:"keyword_mentions_created"`
	Reason          string        `json:"reason,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Succeeded reports whether the run committed its batch.
func (r RunResult) Succeeded() bool {
	return r.Status == RunSuccess
}
