package peer

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
)

// StdLogger is a runtime.Logger over the standard log package for processes that do not run inside
// Nakama.
type StdLogger struct {
	out    *log.Logger
	debug  bool
	fields map[string]interface{}
}

var _ runtime.Logger = (*StdLogger)(nil)

func NewStdLogger(w io.Writer, debug bool) *StdLogger {
	return &StdLogger{out: log.New(w, "", log.LstdFlags|log.Lmicroseconds), debug: debug}
}

func (l *StdLogger) Debug(format string, v ...interface{}) {
	if l.debug {
		l.print("DEBUG", format, v...)
	}
}

func (l *StdLogger) Info(format string, v ...interface{}) {
	l.print("INFO", format, v...)
}

func (l *StdLogger) Warn(format string, v ...interface{}) {
	l.print("WARN", format, v...)
}

func (l *StdLogger) Error(format string, v ...interface{}) {
	l.print("ERROR", format, v...)
}

func (l *StdLogger) WithField(key string, v interface{}) runtime.Logger {
	return l.WithFields(map[string]interface{}{key: v})
}

func (l *StdLogger) WithFields(fields map[string]interface{}) runtime.Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StdLogger{out: l.out, debug: l.debug, fields: merged}
}

func (l *StdLogger) Fields() map[string]interface{} {
	return l.fields
}

func (l *StdLogger) print(level, format string, v ...interface{}) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	fmt.Fprintf(&b, format, v...)

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	l.out.Print(b.String())
}
