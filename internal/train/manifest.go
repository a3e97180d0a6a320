package train

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrManifestNotFound is returned when no manifest matches a name.
var ErrManifestNotFound = errors.New("model manifest not found")

// Manifest is the sidecar record of one trained model.
type Manifest struct {
	ModelFile    string    `json:"model_file"`
	TaskName     string    `json:"task_name"`
	DatasetRef   string    `json:"dataset_ref"`
	Architecture string    `json:"architecture"`
	Accuracy     float64   `json:"accuracy,omitempty"`
	NumClasses   int       `json:"num_classes,omitempty"`
	ClassNames   []string  `json:"class_names,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ManifestFor builds the manifest of a finished run.
func ManifestFor(res *Result) Manifest {
	m := Manifest{
		ModelFile:    res.ModelFile,
		TaskName:     res.TaskName,
		DatasetRef:   res.DatasetRef,
		Architecture: res.Plan.Architecture,
		CreatedAt:    res.CompletedAt,
	}
	if res.Artifact != nil {
		m.Accuracy = res.Artifact.Accuracy
		m.NumClasses = res.Artifact.NumClasses
		m.ClassNames = append([]string(nil), res.Artifact.ClassNames...)
	}
	return m
}

// SaveManifest writes the manifest into the models directory, named
// after the model file with a .json extension.
func SaveManifest(dir string, m Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create models directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(dir, manifestName(m.ModelFile))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return path, nil
}

// LoadManifests reads every manifest in dir, newest first. A missing
// directory reads as empty.
func LoadManifests(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read models directory: %w", err)
	}

	var out []Manifest
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", entry.Name(), err)
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil || m.ModelFile == "" {
			// The directory may hold unrelated JSON; skip it.
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// LoadManifest reads one manifest by model name, with or without a
// file extension. Directory components in name are ignored.
func LoadManifest(dir, name string) (*Manifest, error) {
	name = filepath.Base(name)
	data, err := os.ReadFile(filepath.Join(dir, manifestName(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

func manifestName(modelFile string) string {
	return strings.TrimSuffix(modelFile, filepath.Ext(modelFile)) + ".json"
}
