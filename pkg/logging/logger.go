package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Log = logrus.New()

// InitLogger configures the shared logger. Unknown levels fall back to info.
// When file is set, output is duplicated into a rotating log file.
func InitLogger(level, file string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    128,
			MaxBackups: 5,
			MaxAge:     16,
		})
	}
	Log.SetOutput(out)
	Log.SetLevel(lvl)

	if lvl >= logrus.DebugLevel {
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		Log.SetFormatter(&logrus.JSONFormatter{})
	}

	if err != nil {
		Log.Warnf("unknown log level %q, using info", level)
	}
}

// Or returns l, or the shared logger when l is nil.
func Or(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Log
	}
	return l
}
