package ui

import (
	"time"

	"github.com/moby/term"
	"github.com/sirupsen/logrus"
)

// LogObserver reports stages as log lines, for pipes and CI.
type LogObserver struct {
	Log *logrus.Entry
}

func (o *LogObserver) StageStarted(name string) {
	o.Log.WithField("stage", name).Info("stage started")
}

func (o *LogObserver) StageFinished(name string, elapsed time.Duration, err error) {
	log := o.Log.WithFields(logrus.Fields{
		"stage":   name,
		"elapsed": FormatElapsed(elapsed),
	})
	if err != nil {
		log.WithError(err).Error("stage failed")
		return
	}
	log.Info("stage finished")
}

// IsTerminal reports whether w is attached to a terminal.
func IsTerminal(w interface{}) bool {
	fd, ok := term.GetFdInfo(w)
	return ok && term.IsTerminal(fd)
}
