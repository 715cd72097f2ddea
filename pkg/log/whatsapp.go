package log

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	waLog "go.mau.fi/whatsmeow/util/log"
)

type waLogger struct {
	entry *logrus.Entry
	level logrus.Level
}

// WhatsApp bridges whatsmeow's logger onto logrus. An empty level keeps the
// library silent. The bridge has its own level, independent of LOG_LEVEL, and
// writes to the same output as the relay logger.
func WhatsApp(module string, level string) waLog.Logger {
	if strings.TrimSpace(level) == "" {
		return waLog.Noop
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.WarnLevel
	}
	bridge := newLogger()
	bridge.SetOutput(logger.Out)
	bridge.SetLevel(lvl)
	return &waLogger{
		entry: bridge.WithField("module", module),
		level: lvl,
	}
}

func (l *waLogger) log(lvl logrus.Level, msg string, args []interface{}) {
	if lvl > l.level {
		return
	}
	l.entry.Log(lvl, fmt.Sprintf(msg, args...))
}

func (l *waLogger) Errorf(msg string, args ...interface{}) { l.log(logrus.ErrorLevel, msg, args) }
func (l *waLogger) Warnf(msg string, args ...interface{})  { l.log(logrus.WarnLevel, msg, args) }
func (l *waLogger) Infof(msg string, args ...interface{})  { l.log(logrus.InfoLevel, msg, args) }
func (l *waLogger) Debugf(msg string, args ...interface{}) { l.log(logrus.DebugLevel, msg, args) }

func (l *waLogger) Sub(module string) waLog.Logger {
	current, _ := l.entry.Data["module"].(string)
	return &waLogger{
		entry: l.entry.WithField("module", current+"/"+module),
		level: l.level,
	}
}
