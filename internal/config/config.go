package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models voxcollect.yml, stored per project in the DB.
type Config struct {
	Project struct {
		ID             string `yaml:"id"`
		SourceLanguage string `yaml:"source_language"`
		TargetLanguage string `yaml:"target_language"`
	} `yaml:"project"`
	Limits struct {
		// MaxContributionsPerTask caps submissions per task across all users.
		MaxContributionsPerTask int `yaml:"max_contributions_per_task"`
	} `yaml:"limits"`
	Storage struct {
		Backend         string `yaml:"backend"` // local or s3
		RecordingBucket string `yaml:"recording_bucket"`
		Region          string `yaml:"region"`
		LocalDir        string `yaml:"local_dir"`
		BaseURL         string `yaml:"base_url"`
	} `yaml:"storage"`
	TaskTypes map[string]TaskTypeConfig `yaml:"task_types"`
}

type TaskTypeConfig struct {
	Description     string `yaml:"description"`
	DefaultPriority int    `yaml:"default_priority"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with vox project config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Limits.MaxContributionsPerTask < 1 {
		return fmt.Errorf("config.limits.max_contributions_per_task must be at least 1")
	}
	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.RecordingBucket == "" {
			return fmt.Errorf("config.storage.recording_bucket is required for the s3 backend")
		}
		if c.Storage.Region == "" {
			return fmt.Errorf("config.storage.region is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config.storage.backend must be local or s3")
	}
	for name, tt := range c.TaskTypes {
		if name == "" {
			return fmt.Errorf("config.task_types contains an empty type name")
		}
		if tt.DefaultPriority < 0 {
			return fmt.Errorf("task type %s has negative default priority", name)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "voxcollect.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, projectID)), &cfg)
	cfg.Project.ID = projectID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML serializes the config for storage in the DB.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `project:
  id: %s
  source_language: en
  target_language: ""

limits:
  max_contributions_per_task: 3

storage:
  backend: local
  recording_bucket: recordings
  local_dir: .voxcollect/blobs
  base_url: ""

task_types:
  asr:
    description: "Read a prompt aloud and record it"
    default_priority: 2
  tts:
    description: "Record a clean studio prompt for speech synthesis"
    default_priority: 2
  transcription:
    description: "Type out what is said in a recording"
    default_priority: 1
  translation:
    description: "Translate prompt text into the target language"
    default_priority: 1
  validation:
    description: "Review and rate another contributor's submission"
    default_priority: 0
`
