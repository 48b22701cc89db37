// Package production provides production integrations: flight recording,
// report publishing, lifecycle visualization.
package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/comalice/actuatorx/realtime"
)

// JSONRecorder is a file-based recorder using JSON serialization.
type JSONRecorder struct {
	dir string
}

// NewJSONRecorder creates a JSONRecorder, ensuring the directory exists.
func NewJSONRecorder(dir string) (*JSONRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &JSONRecorder{dir: dir}, nil
}

func (p *JSONRecorder) Record(ctx context.Context, snapshot realtime.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	fn := filepath.Join(p.dir, snapshot.LoopID+".json")
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

func (p *JSONRecorder) Load(ctx context.Context, loopID string) (realtime.Snapshot, error) {
	fn := filepath.Join(p.dir, loopID+".json")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return realtime.Snapshot{}, fmt.Errorf("loop %q: %w", loopID, os.ErrNotExist)
		}
		return realtime.Snapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}

	var snapshot realtime.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return realtime.Snapshot{}, fmt.Errorf("json unmarshal: %w", err)
	}
	snapshot.LoopID = loopID
	return snapshot, nil
}

// YAMLRecorder is a file-based recorder using YAML serialization.
type YAMLRecorder struct {
	dir string
}

// NewYAMLRecorder creates a YAMLRecorder, ensuring the directory exists.
func NewYAMLRecorder(dir string) (*YAMLRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &YAMLRecorder{dir: dir}, nil
}

func (p *YAMLRecorder) Record(ctx context.Context, snapshot realtime.Snapshot) error {
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	fn := filepath.Join(p.dir, snapshot.LoopID+".yaml")
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

func (p *YAMLRecorder) Load(ctx context.Context, loopID string) (realtime.Snapshot, error) {
	fn := filepath.Join(p.dir, loopID+".yaml")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return realtime.Snapshot{}, fmt.Errorf("loop %q: %w", loopID, os.ErrNotExist)
		}
		return realtime.Snapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}

	var snapshot realtime.Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return realtime.Snapshot{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	snapshot.LoopID = loopID
	if err := snapshot.Limits.Validate(); err != nil {
		return realtime.Snapshot{}, fmt.Errorf("limits validation after load: %w", err)
	}
	return snapshot, nil
}
