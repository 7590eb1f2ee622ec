// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// MODE TYPE
// =============================================================================

// Mode selects the persona and the upstream model(s) used for a turn.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeCoding   Mode = "coding"
	ModeStudy    Mode = "study"
	ModeThinking Mode = "thinking"
	ModeResearch Mode = "research"
)

// DefaultMode is used when no mode is given and as the fallback for unknown modes.
const DefaultMode = ModeNormal

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// ParseMode parses a mode name strictly. Unknown names are an error.
func ParseMode(s string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := defaultRegistry.Lookup(mode); !ok {
		return "", fmt.Errorf("unknown mode %q (valid: %s)", s, strings.Join(defaultRegistry.Names(), ", "))
	}
	return mode, nil
}

// =============================================================================
// MODEL CONFIG
// =============================================================================

// ModelConfig is the static description of a mode.
type ModelConfig struct {
	Mode        Mode     `json:"mode"`
	Models      []string `json:"models"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
}

// MultiModel reports whether the mode fans out to several models.
func (c ModelConfig) MultiModel() bool {
	return len(c.Models) > 1
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps modes to their model configuration. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	order   []Mode
	configs map[Mode]ModelConfig
}

// Resolution is the outcome of resolving a requested mode.
type Resolution struct {
	Requested Mode
	Mode      Mode
	Models    []string
	// FellBack is set when the requested mode was unknown or empty and the
	// default mode was used instead.
	FellBack bool
}

// MultiModel reports whether the resolution needs a sequential fan-out.
func (r Resolution) MultiModel() bool {
	return len(r.Models) > 1
}

// NewRegistry builds a registry from configs, keeping their order.
// A config for DefaultMode is required.
func NewRegistry(configs ...ModelConfig) (*Registry, error) {
	r := &Registry{configs: make(map[Mode]ModelConfig, len(configs))}
	for _, cfg := range configs {
		if cfg.Mode == "" {
			return nil, fmt.Errorf("model config with empty mode")
		}
		if len(cfg.Models) == 0 {
			return nil, fmt.Errorf("mode %q has no models", cfg.Mode)
		}
		if _, dup := r.configs[cfg.Mode]; dup {
			return nil, fmt.Errorf("mode %q configured twice", cfg.Mode)
		}
		cfg.Models = append([]string(nil), cfg.Models...)
		r.configs[cfg.Mode] = cfg
		r.order = append(r.order, cfg.Mode)
	}
	if _, ok := r.configs[DefaultMode]; !ok {
		return nil, fmt.Errorf("registry is missing the %q mode", DefaultMode)
	}
	return r, nil
}

// Lookup returns the config for mode without any fallback.
func (r *Registry) Lookup(mode Mode) (ModelConfig, bool) {
	cfg, ok := r.configs[mode]
	if !ok {
		return ModelConfig{}, false
	}
	cfg.Models = append([]string(nil), cfg.Models...)
	return cfg, true
}

// Resolve maps mode to its models. Unknown or empty modes resolve to
// DefaultMode with FellBack set.
func (r *Registry) Resolve(mode Mode) Resolution {
	res := Resolution{Requested: mode, Mode: mode}
	cfg, ok := r.Lookup(mode)
	if !ok {
		cfg, _ = r.Lookup(DefaultMode)
		res.Mode = DefaultMode
		res.FellBack = true
	}
	res.Models = cfg.Models
	return res
}

// Modes returns every config in registration order.
func (r *Registry) Modes() []ModelConfig {
	out := make([]ModelConfig, 0, len(r.order))
	for _, mode := range r.order {
		cfg, _ := r.Lookup(mode)
		out = append(out, cfg)
	}
	return out
}

// Names returns the registered mode names in order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	for i, mode := range r.order {
		out[i] = string(mode)
	}
	return out
}

// Next returns the mode after m in registration order, wrapping around.
func (r *Registry) Next(m Mode) Mode {
	for i, mode := range r.order {
		if mode == m {
			return r.order[(i+1)%len(r.order)]
		}
	}
	return DefaultMode
}

// =============================================================================
// DEFAULT MODES
// =============================================================================

var defaultRegistry = mustRegistry(
	ModelConfig{
		Mode:        ModeNormal,
		Models:      []string{"nvidia/nemotron-nano-12b-v2-vl:free"},
		Label:       "Normal Chat",
		Description: "General conversation and questions",
		Icon:        "💬",
	},
	ModelConfig{
		Mode:        ModeCoding,
		Models:      []string{"mistralai/devstral-2512:free"},
		Label:       "Coding",
		Description: "Programming and development help",
		Icon:        "💻",
	},
	ModelConfig{
		Mode:        ModeStudy,
		Models:      []string{"allenai/olmo-3.1-32b-think:free"},
		Label:       "Study",
		Description: "Learning and educational content",
		Icon:        "📚",
	},
	ModelConfig{
		Mode: ModeThinking,
		Models: []string{
			"allenai/olmo-3.1-32b-think:free",
			"nvidia/nemotron-3-nano-30b-a3b:free",
		},
		Label:       "Thinking",
		Description: "Deep reasoning and analysis",
		Icon:        "🧠",
	},
	ModelConfig{
		Mode:        ModeResearch,
		Models:      []string{"nvidia/nemotron-3-nano-30b-a3b:free"},
		Label:       "Deep Research",
		Description: "In-depth research and exploration",
		Icon:        "🔬",
	},
)

// DefaultRegistry returns the built-in mode table.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

func mustRegistry(configs ...ModelConfig) *Registry {
	r, err := NewRegistry(configs...)
	if err != nil {
		panic(err)
	}
	return r
}
