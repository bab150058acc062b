package logging

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap/zapcore"
)

// Level is the severity of a log entry. The values line up with zapcore levels.
type Level int

const (
	// DEBUG is for stage by stage solver output.
	DEBUG Level = iota - 1
	// INFO is the default level.
	INFO
	// WARN is for recoverable problems such as a repaired rotation.
	WARN
	// ERROR is for failed operations.
	ERROR
)

func (level Level) String() string {
	switch level {
	case DEBUG:
		return "Debug"
	case INFO:
		return "Info"
	case WARN:
		return "Warn"
	case ERROR:
		return "Error"
	}
	panic(fmt.Sprintf("unreachable: %d", level))
}

// LevelFromString parses a level name, case insensitive.
func LevelFromString(inp string) (Level, error) {
	switch strings.ToLower(inp) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return DEBUG, fmt.Errorf("unknown log level: %q", inp)
}

// AsZap converts the Level to a zapcore.Level.
func (level Level) AsZap() zapcore.Level {
	return zapcore.Level(level)
}

// MarshalJSON writes the level name.
func (level Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(level.String())
}

// UnmarshalJSON reads a level name.
func (level *Level) UnmarshalJSON(data []byte) (err error) {
	var levelStr string
	if err := json.Unmarshal(data, &levelStr); err != nil {
		return err
	}
	*level, err = LevelFromString(levelStr)
	return
}

// AtomicLevel is a Level that can be changed while loggers are in use.
type AtomicLevel struct {
	val *atomic.Int32
}

// NewAtomicLevelAt returns an AtomicLevel holding the given level.
func NewAtomicLevelAt(initLevel Level) AtomicLevel {
	ret := AtomicLevel{val: &atomic.Int32{}}
	ret.Set(initLevel)
	return ret
}

// Set changes the level.
func (level AtomicLevel) Set(newLevel Level) {
	level.val.Store(int32(newLevel))
}

// Get returns the current level.
func (level AtomicLevel) Get() Level {
	return Level(level.val.Load())
}
