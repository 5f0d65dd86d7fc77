package model

// FailureAlert carries everything the notifier needs to render and post a
// failure message. Alerting is advisory: a lost alert is never retried and
// never affects ingestion state.
type FailureAlert struct {
	Prefix       string
	Mention      string // "channel", "here", or empty for no mention.
	RepoFullName string
	Branch       string
	WorkflowName string
	Conclusion   string
	DurationText string
	RunURL       string
	LogSnippet   string // Empty when no failed job has a retrievable log.
}
