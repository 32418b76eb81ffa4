// Package settings reads the global tunables in settings.ini. A per-user
// override file, when present, replaces individual keys of the bundled or
// configured base file.
package settings

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tinytelemetry/photon/configs"
	"github.com/tinytelemetry/photon/internal/iniconf"
	"github.com/tinytelemetry/photon/internal/model"
	"go.uber.org/zap"
)

// Settings holds the global tunables.
type Settings struct {
	CPUScaling  float64        `json:"cpu_scaling" yaml:"cpu_scaling"`
	MinParallel int            `json:"min_parallel" yaml:"min_parallel"`
	MaxParallel int            `json:"max_parallel" yaml:"max_parallel"`
	Priority    []model.Source `json:"priority" yaml:"priority"`
}

// Config holds optional load settings.
type Config struct {
	Logger *zap.Logger
}

// Error is a settings option that could not be applied.
type Error struct {
	File    string
	Section string
	Key     string
	Reason  string
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: [%s]: %s", e.File, e.Section, e.Reason)
	}
	return fmt.Sprintf("%s: [%s] %s: %s", e.File, e.Section, e.Key, e.Reason)
}

func builtin() Settings {
	return Settings{
		CPUScaling:  0.75,
		MinParallel: 1,
		MaxParallel: 16,
		Priority:    append([]model.Source(nil), model.Sources...),
	}
}

// DefaultOverridePath returns ~/.photon/settings.ini, or "" when the home
// directory is unknown.
func DefaultOverridePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".photon", configs.SettingsName)
}

// Load reads the base settings file (the bundled one when path is empty)
// and applies overridePath on top when that file exists.
func Load(path, overridePath string, conf ...Config) (Settings, error) {
	var cfg Config
	if len(conf) > 0 {
		cfg = conf[0]
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var base *iniconf.Document
	var err error
	if path == "" {
		base, err = iniconf.Parse(configs.SettingsName, configs.Settings)
	} else {
		base, err = iniconf.Load(path)
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}

	s := builtin()
	errs := apply(&s, base)

	if overridePath != "" {
		if _, statErr := os.Stat(overridePath); statErr == nil {
			override, err := iniconf.Load(overridePath)
			if err != nil {
				return Settings{}, fmt.Errorf("settings override: %w", err)
			}
			logger.Warn("applying settings override", zap.String("path", overridePath))
			errs = append(errs, apply(&s, override)...)
		}
	}

	if len(errs) == 0 {
		errs = s.validate()
	}
	if len(errs) > 0 {
		return Settings{}, fmt.Errorf("invalid settings: %w", errors.Join(errs...))
	}
	logger.Debug("settings loaded",
		zap.Float64("cpu_scaling", s.CPUScaling),
		zap.Int("min_parallel", s.MinParallel),
		zap.Int("max_parallel", s.MaxParallel))
	return s, nil
}

// Parse reads settings from memory without an override.
func Parse(name string, data []byte) (Settings, error) {
	doc, err := iniconf.Parse(name, data)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	s := builtin()
	errs := apply(&s, doc)
	if len(errs) == 0 {
		errs = s.validate()
	}
	if len(errs) > 0 {
		return Settings{}, fmt.Errorf("invalid settings: %w", errors.Join(errs...))
	}
	return s, nil
}

func apply(s *Settings, doc *iniconf.Document) []error {
	var errs []error
	for _, sec := range doc.Sections() {
		bad := func(key, reason string) {
			errs = append(errs, &Error{File: doc.Name, Section: sec.Name, Key: key, Reason: reason})
		}
		for _, key := range sec.Keys() {
			v, _ := sec.Get(key)
			if v.Empty() {
				continue
			}
			switch sec.Name + "." + key {
			case "cpu.scaling":
				f, err := floatValue(v)
				if err != nil {
					bad(key, err.Error())
					continue
				}
				s.CPUScaling = f
			case "puffin.min_parallel", "puffin.max_parallel":
				n, err := intValue(v)
				if err != nil {
					bad(key, err.Error())
					continue
				}
				if key == "min_parallel" {
					s.MinParallel = n
				} else {
					s.MaxParallel = n
				}
			case "data_sources.priority":
				items := v.List
				if v.Kind != iniconf.KindList {
					items = []string{v.Raw}
				}
				priority, err := parsePriority(items)
				if err != nil {
					bad(key, err.Error())
					continue
				}
				s.Priority = priority
			default:
				bad(key, "unknown option")
			}
		}
	}
	return errs
}

func parsePriority(items []string) ([]model.Source, error) {
	out := make([]model.Source, 0, len(items))
	seen := make(map[model.Source]bool, len(items))
	for _, item := range items {
		src, ok := model.ParseSource(item)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", item)
		}
		if seen[src] {
			return nil, fmt.Errorf("source %q listed twice", item)
		}
		seen[src] = true
		out = append(out, src)
	}
	return out, nil
}

func (s Settings) validate() []error {
	var errs []error
	if s.CPUScaling <= 0 || math.IsNaN(s.CPUScaling) {
		errs = append(errs, fmt.Errorf("cpu scaling must be positive, got %v", s.CPUScaling))
	}
	if s.MinParallel < 1 {
		errs = append(errs, fmt.Errorf("min_parallel must be at least 1, got %d", s.MinParallel))
	}
	if s.MaxParallel < s.MinParallel {
		errs = append(errs, fmt.Errorf("max_parallel (%d) is below min_parallel (%d)", s.MaxParallel, s.MinParallel))
	}
	return errs
}

// Parallelism returns floor(cpus*CPUScaling) clamped to the puffin bounds.
func (s Settings) Parallelism(cpus int) int {
	n := int(math.Floor(float64(cpus) * s.CPUScaling))
	return max(s.MinParallel, min(n, s.MaxParallel))
}

func floatValue(v iniconf.Value) (float64, error) {
	if v.Kind == iniconf.KindFloat || v.Kind == iniconf.KindInt {
		return v.Float, nil
	}
	f, err := strconv.ParseFloat(v.Raw, 64)
	if err != nil {
		return 0, fmt.Errorf("expected a float, got %q", v.Raw)
	}
	return f, nil
}

func intValue(v iniconf.Value) (int, error) {
	if v.Kind == iniconf.KindInt {
		return v.Int, nil
	}
	n, err := strconv.Atoi(v.Raw)
	if err != nil {
		return 0, fmt.Errorf("expected an int, got %q", v.Raw)
	}
	return n, nil
}
