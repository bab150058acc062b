package calibration

import (
	"go.viam.com/perspective/logging"
)

// Stage is a step of the calibration state machine. Each stage is entered only after the
// previous one succeeded; any failure moves to StageFailed.
type Stage int

// Calibration stages in order.
const (
	StageTwoVanishingPoints Stage = iota
	StageFocalLengthKnown
	StageRotationKnown
	StageTranslationKnown
	StageComplete
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageTwoVanishingPoints:
		return "TwoVanishingPoints"
	case StageFocalLengthKnown:
		return "FocalLengthKnown"
	case StageRotationKnown:
		return "RotationKnown"
	case StageTranslationKnown:
		return "TranslationKnown"
	case StageComplete:
		return "Complete"
	case StageFailed:
		return "Failed"
	}
	return "Unknown"
}

type stateMachine struct {
	mode   Mode
	stage  Stage
	logger logging.Logger
}

func newStateMachine(mode Mode, initial Stage, logger logging.Logger) *stateMachine {
	return &stateMachine{mode: mode, stage: initial, logger: logger}
}

func (sm *stateMachine) advance(next Stage, keysAndValues ...interface{}) {
	args := append([]interface{}{"mode", sm.mode, "from", sm.stage, "to", next}, keysAndValues...)
	sm.logger.Debugw("calibration stage", args...)
	sm.stage = next
}

// fail moves to StageFailed and returns err tagged with the stage that was being left.
func (sm *stateMachine) fail(err error) error {
	failed := sm.stage
	sm.logger.Debugw("calibration stage", "mode", sm.mode, "from", failed, "to", StageFailed, "error", err)
	sm.stage = StageFailed
	return &CalibrationError{Mode: sm.mode, Stage: failed, Err: err}
}
