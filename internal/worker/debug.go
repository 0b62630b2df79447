package worker

import "github.com/sirupsen/logrus"

var log = logrus.WithField("component", "worker")

func debugLog(format string, args ...interface{}) {
	log.Debugf(format, args...)
}
