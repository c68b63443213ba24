package repository

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// DatasetFormat names a dataset file encoding.
type DatasetFormat string

const (
	FormatJSON DatasetFormat = "json"
	FormatYAML DatasetFormat = "yaml"
)

// FormatFromPath picks the format from the file extension, defaulting to JSON.
func FormatFromPath(path string) DatasetFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadDatasetFile reads a dataset from disk.
func LoadDatasetFile(path string) (*models.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close() //nolint:errcheck

	dataset, err := DecodeDataset(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dataset, nil
}

// DecodeDataset parses JSON or YAML into a generic document and maps it onto
// the model types using their json names. Unknown keys are rejected.
func DecodeDataset(r io.Reader, format DatasetFormat) (*models.Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var doc map[string]interface{}
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(raw, &doc)
	case FormatJSON:
		err = json.Unmarshal(raw, &doc)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s dataset: %w", format, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("dataset is empty")
	}

	var dataset models.Dataset
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		Result:      &dataset,
	})
	if err != nil {
		return nil, fmt.Errorf("build dataset decoder: %w", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &dataset, nil
}

// EncodeDataset writes a dataset in the requested format.
func EncodeDataset(w io.Writer, dataset *models.Dataset, format DatasetFormat) error {
	switch format {
	case FormatYAML:
		// Round-trip through JSON so YAML keys match the json names DecodeDataset expects.
		raw, err := json.Marshal(dataset)
		if err != nil {
			return fmt.Errorf("flatten dataset: %w", err)
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("flatten dataset: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml dataset: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(dataset)
	default:
		return fmt.Errorf("unsupported dataset format %q", format)
	}
}
