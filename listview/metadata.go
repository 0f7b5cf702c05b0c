package listview

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/jrsteele09/go-recordstore/recordstore"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// KeyListFileName is the file inside a view root holding its KeyList.
	KeyListFileName = ".rskeylist"

	// MetadataFileName is the file inside a view root holding its source path and count.
	MetadataFileName = ".rsview.yaml"

	fileMode os.FileMode = 0600
	dirMode  os.FileMode = 0700
)

// metadata is the persisted reference to a view's source and its last known count.
type metadata struct {
	Source string `yaml:"source"`
	Count  uint64 `yaml:"count"`
}

func readMetadata(dir string) (metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFileName))
	if err != nil {
		return metadata{}, errors.Wrapf(recordstore.ErrStorage, "readMetadata %s: %v", dir, err)
	}
	var md metadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return metadata{}, errors.Wrapf(recordstore.ErrStorage, "readMetadata %s: %v", dir, err)
	}
	if md.Source == "" {
		return metadata{}, errors.Wrapf(recordstore.ErrStorage, "readMetadata %s: no source store", dir)
	}
	return md, nil
}

func writeMetadata(dir string, md metadata) error {
	data, err := yaml.Marshal(md)
	if err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "writeMetadata %s: %v", dir, err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, MetadataFileName), data, fileMode, renameio.WithTempDir(dir)); err != nil {
		return errors.Wrapf(recordstore.ErrStorage, "writeMetadata %s: %v", dir, err)
	}
	return nil
}
