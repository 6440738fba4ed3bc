package config

import (
	"path/filepath"
	"sort"
)

// Preset is a well-known cache directory that `config init` offers to manage.
type Preset struct {
	Name        string
	HomePath    string
	Description string
}

// Presets lists the caches commonly found on ML workstations, with their
// default locations relative to the home directory.
var Presets = []Preset{
	{"CONDA_PKGS_DIRS", ".conda/pkgs", "Conda package cache"},
	{"HF_HOME", ".cache/huggingface", "HuggingFace hub models, datasets, tokenizers"},
	{"PIP_CACHE_DIR", ".cache/pip", "pip download cache"},
	{"TORCH_HOME", ".cache/torch", "PyTorch hub models and checkpoints"},
	{"TRANSFORMERS_CACHE", ".cache/huggingface/transformers", "HuggingFace transformers (subset of HF_HOME)"},
	{"XDG_CACHE_HOME", ".cache", "General XDG cache directory (large, includes many tools)"},
}

// DetectPresets returns a Var for every preset whose default directory
// exists under home.
func DetectPresets(home string) map[string]Var {
	vars := map[string]Var{}
	for _, preset := range Presets {
		path := filepath.Join(home, preset.HomePath)
		if info, err := fs.Stat(path); err == nil && info.IsDir() {
			vars[preset.Name] = Var{Source: path, Enabled: true}
		}
	}
	return vars
}

// PresetNames returns the names of all presets, sorted.
func PresetNames() []string {
	var names []string
	for _, preset := range Presets {
		names = append(names, preset.Name)
	}
	sort.Strings(names)
	return names
}
