package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rupor-github/gencfg"
)

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}

	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}

	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
	if cfg.Split.OutputExt != ".epub" {
		t.Errorf("OutputExt = %q, want .epub", cfg.Split.OutputExt)
	}
	if cfg.Split.NameCollision != NameCollisionSuffix {
		t.Errorf("NameCollision = %q, want %q", cfg.Split.NameCollision, NameCollisionSuffix)
	}
	if cfg.Split.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Split.Workers)
	}
	if cfg.Split.Navigation.Add {
		t.Error("Navigation should not be added by default")
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `version: 1
split:
  fix_zip: false
  name_collision: overwrite
  workers: 4
  verify: true
  navigation:
    add: true
    spine_index: 2
logging:
  console:
    level: debug
  file:
    level: normal
    destination: ` + filepath.Join(tmpDir, "test.log") + `
    mode: append
reporting:
  destination: ` + filepath.Join(tmpDir, "report.zip") + `
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfiguration(configPath)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if cfg.Split.FixZip {
		t.Error("Expected FixZip to be false")
	}
	if cfg.Split.NameCollision != NameCollisionOverwrite {
		t.Errorf("NameCollision = %q, want overwrite", cfg.Split.NameCollision)
	}
	if cfg.Split.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Split.Workers)
	}
	if !cfg.Split.Verify {
		t.Error("Expected Verify to be true")
	}
	if !cfg.Split.Navigation.Add || cfg.Split.Navigation.SpineIndex != 2 {
		t.Errorf("Navigation = %+v, want add at 2", cfg.Split.Navigation)
	}
	// values absent from file keep defaults
	if cfg.Split.OutputExt != ".epub" {
		t.Errorf("OutputExt = %q, want default .epub", cfg.Split.OutputExt)
	}
	if cfg.Logging.FileLogger.Mode != "append" {
		t.Errorf("file logger mode = %q, want append", cfg.Logging.FileLogger.Mode)
	}
}

func TestLoadConfiguration_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "invalid yaml",
			content: `version: 1
split:
  fix_zip: true
  invalid indent
`,
		},
		{
			name: "unknown field",
			content: `version: 1
unknown_field: value
`,
		},
		{
			name:    "bad version",
			content: "version: 2\n",
		},
		{
			name: "bad collision policy",
			content: `version: 1
split:
  name_collision: rename
`,
		},
		{
			name: "too many workers",
			content: `version: 1
split:
  workers: 1000
`,
		},
		{
			name: "negative spine index",
			content: `version: 1
split:
  navigation:
    spine_index: -1
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}
			if _, err := LoadConfiguration(configPath); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoadConfiguration_NonExistentFile(t *testing.T) {
	_, err := LoadConfiguration("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLoadConfiguration_WithOptions(t *testing.T) {
	option := func(opts *gencfg.ProcessingOptions) {}

	cfg, err := LoadConfiguration("", option)
	if err != nil {
		t.Fatalf("LoadConfiguration() with options error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}
}

func TestPrepare(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if len(data) == 0 {
		t.Error("Prepare() returned empty data")
	}

	cfg := &Config{}
	if _, err = unmarshalConfig(data, cfg, true); err != nil {
		t.Errorf("Prepared config is not valid: %v", err)
	}
}

func TestDump(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	cfg.Split.Workers = 3

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}

	out := string(data)
	for _, want := range []string{"version: 1", "workers: 3", "name_collision: suffix"} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump() output missing %q:\n%s", want, out)
		}
	}

	// dumped configuration must load back
	path := filepath.Join(t.TempDir(), "dump.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	back, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration(dump) error = %v", err)
	}
	if back.Split.Workers != 3 {
		t.Errorf("Workers after reload = %d, want 3", back.Split.Workers)
	}
}

func TestCleanFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Chapter 1", "Chapter 1"},
		{`What? Why: "Now" <a|b> \/*`, "What Why Now ab"},
		{"  padded  ", "padded"},
		{"tab\tinside", "tabinside"},
		{`???`, badFileName},
		{"", badFileName},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CleanFileName(tt.in); got != tt.want {
				t.Errorf("CleanFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadConfiguration_NameTemplate(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Split.OutputNameTemplate != "" {
		t.Errorf("OutputNameTemplate = %q, want empty", cfg.Split.OutputNameTemplate)
	}

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "version: 1\nsplit:\n  output_name_template: '{{ .SourceFile }}/{{ .Title }}'\n"
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadConfiguration(configPath)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Split.OutputNameTemplate != "{{ .SourceFile }}/{{ .Title }}" {
		t.Errorf("OutputNameTemplate = %q, template must be kept as is", cfg.Split.OutputNameTemplate)
	}
}
