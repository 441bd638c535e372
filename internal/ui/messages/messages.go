package messages

import "time"

// StageStartedMsg is sent when a deploy stage begins.
type StageStartedMsg struct {
	Name string
}

// StageFinishedMsg is sent when a deploy stage ends. Err is nil on success.
type StageFinishedMsg struct {
	Name    string
	Elapsed time.Duration
	Err     error
}

// DeployDoneMsg ends the progress program.
type DeployDoneMsg struct {
	Err error
}
