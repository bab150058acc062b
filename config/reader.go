package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"go.viam.com/perspective/logging"
)

// Read reads a project from the given file, expanding ${ENV} references first.
func Read(filePath string, logger logging.Logger) (*Project, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a project from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Project, error) {
	project := Project{ConfigFilePath: originalPath}
	if err := json.NewDecoder(r).Decode(&project); err != nil {
		return nil, errors.Wrapf(err, "failed to decode project from json")
	}
	if err := processProject(&project, logger); err != nil {
		return nil, errors.Wrapf(err, "failed to process project")
	}
	return &project, nil
}

func processProject(project *Project, logger logging.Logger) error {
	if err := project.Validate("project"); err != nil {
		return err
	}
	if _, err := project.CalibrationSettings(); err != nil {
		return err
	}
	// the third axis is the cross product of the first two
	if project.Flip[2] != (project.Flip[0] != project.Flip[1]) {
		logger.Warnw("ignoring flip of the third axis", "flip", project.Flip)
	}
	logger.Debugw("read project", "path", project.ConfigFilePath, "mode", string(project.CalibrationMode()))
	return nil
}

// Write stores the project as indented JSON.
func Write(filePath string, project *Project) error {
	buf, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode project")
	}
	//nolint:gosec
	return os.WriteFile(filePath, append(buf, '\n'), 0o644)
}
