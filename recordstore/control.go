package recordstore

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// ControlFileName is the reserved file inside a store root holding its
// ControlMetadata.
const ControlFileName = ".rscontrol"

// ControlMetadata is the name and description persisted with every store,
// one per line.
type ControlMetadata struct {
	Name        string
	Description string
}

// Validate returns an ErrParameter error if the metadata cannot be stored in
// the line based control file.
func (md ControlMetadata) Validate() error {
	if md.Name == "" {
		return errors.Wrap(ErrParameter, "empty store name")
	}
	if strings.ContainsAny(md.Name, "\r\n\x00") {
		return errors.Wrapf(ErrParameter, "store name %q contains invalid characters", md.Name)
	}
	if strings.ContainsAny(md.Description, "\r\n") {
		return errors.Wrap(ErrParameter, "description must be a single line")
	}
	return nil
}

// ReadControl reads the control file of the store rooted at dir. A missing,
// unreadable or truncated control file is an ErrStorage error.
func ReadControl(dir string) (ControlMetadata, error) {
	content, err := os.ReadFile(filepath.Join(dir, ControlFileName))
	if err != nil {
		return ControlMetadata{}, errors.Wrapf(ErrStorage, "ReadControl %s: %v", dir, err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return ControlMetadata{}, errors.Wrapf(ErrStorage, "ReadControl %s: %v", dir, err)
	}
	if len(lines) < 2 {
		return ControlMetadata{}, errors.Wrapf(ErrStorage, "ReadControl %s: premature end of control file", dir)
	}
	return ControlMetadata{Name: lines[0], Description: lines[1]}, nil
}

// WriteControl replaces the control file of the store rooted at dir.
func WriteControl(dir string, md ControlMetadata, perm os.FileMode) error {
	if err := md.Validate(); err != nil {
		return err
	}
	content := md.Name + "\n" + md.Description + "\n"
	if err := renameio.WriteFile(filepath.Join(dir, ControlFileName), []byte(content), perm, renameio.WithTempDir(dir)); err != nil {
		return errors.Wrapf(ErrStorage, "WriteControl %s: %v", dir, err)
	}
	return nil
}
