package logging

import (
	"io"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the timestamp format of console output.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. Any zapcore.Core is an Appender.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	Sync() error
}

// ConsoleAppender writes tab separated log lines to a writer.
type ConsoleAppender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterAppender returns an appender writing to w.
func NewWriterAppender(w io.Writer) *ConsoleAppender {
	return &ConsoleAppender{w: w}
}

// Write outputs one line: time, level, logger name, caller, message and the fields as JSON.
func (appender *ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	line, err := formatEntry(entry, fields)
	appender.mu.Lock()
	defer appender.mu.Unlock()
	if _, writeErr := io.WriteString(appender.w, line+"\n"); writeErr != nil {
		return writeErr
	}
	return err
}

// Sync is a no-op.
func (appender *ConsoleAppender) Sync() error {
	return nil
}

func formatEntry(entry zapcore.Entry, fields []zapcore.Field) (string, error) {
	const maxLength = 6
	toPrint := make([]string, 0, maxLength)
	toPrint = append(toPrint, entry.Time.Format(DefaultTimeFormatStr))
	toPrint = append(toPrint, strings.ToUpper(entry.Level.String()))
	toPrint = append(toPrint, entry.LoggerName)
	if entry.Caller.Defined {
		toPrint = append(toPrint, callerToString(&entry.Caller))
	}
	toPrint = append(toPrint, entry.Message)
	if len(fields) == 0 {
		return strings.Join(toPrint, "\t"), nil
	}

	// Use zap's json encoder which will encode our slice of fields in-order. Call it with an
	// empty Entry object such that only the fields become "map-ified".
	jsonEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := jsonEncoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return strings.Join(toPrint, "\t"), err
	}
	toPrint = append(toPrint, buf.String())
	return strings.Join(toPrint, "\t"), nil
}

// callerToString returns "<package>/<file>:<line>".
func callerToString(caller *zapcore.EntryCaller) string {
	return caller.TrimmedPath()
}
