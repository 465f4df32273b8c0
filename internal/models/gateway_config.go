package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GatewayConfig is the configuration graph handed to the routing layer.
type GatewayConfig struct {
	Providers []Provider    `json:"providers" yaml:"providers"`
	Models    []ModelConfig `json:"models" yaml:"models"`
	Pipelines []Pipeline    `json:"pipelines" yaml:"pipelines"`
}

// Provider is an upstream LLM provider with resolved credentials.
type Provider struct {
	Key    string            `json:"key" yaml:"key"`
	Type   string            `json:"type" yaml:"type"`
	APIKey string            `json:"api_key" yaml:"api_key"`
	Params map[string]string `json:"params" yaml:"params"`
}

// ModelConfig binds a model key to the provider serving it.
// Provider always names the Key of a Provider in the same GatewayConfig.
type ModelConfig struct {
	Key      string            `json:"key" yaml:"key"`
	Type     string            `json:"type" yaml:"type"`
	Provider string            `json:"provider" yaml:"provider"`
	Params   map[string]string `json:"params" yaml:"params"`
}

// Pipeline is an ordered chain of plugins for one request kind.
type Pipeline struct {
	Name    string         `json:"name" yaml:"name"`
	Type    PipelineType   `json:"type" yaml:"type"`
	Plugins []PluginConfig `json:"plugins" yaml:"plugins"`
}

// PipelineType enumerates supported request kinds.
type PipelineType string

const (
	PipelineTypeChat       PipelineType = "chat"
	PipelineTypeCompletion PipelineType = "completion"
	PipelineTypeEmbeddings PipelineType = "embeddings"
)

// ErrUnsupportedPipelineType is returned for pipeline kinds outside the closed set.
var ErrUnsupportedPipelineType = errors.New("unsupported pipeline type")

// ParsePipelineType matches name case-insensitively against the supported kinds.
func ParsePipelineType(name string) (PipelineType, error) {
	switch strings.ToLower(name) {
	case string(PipelineTypeChat):
		return PipelineTypeChat, nil
	case string(PipelineTypeCompletion):
		return PipelineTypeCompletion, nil
	case string(PipelineTypeEmbeddings):
		return PipelineTypeEmbeddings, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPipelineType, name)
	}
}

// PluginType is the tag of a PluginConfig variant.
type PluginType string

const (
	PluginTypeModelRouter PluginType = "model-router"
	PluginTypeLogging     PluginType = "logging"
	PluginTypeTracing     PluginType = "tracing"
)

// PluginConfig is one of ModelRouterPlugin, LoggingPlugin or TracingPlugin.
type PluginConfig interface {
	PluginType() PluginType
	isPluginConfig()
}

// ModelRouterPlugin routes requests among a membership list of model keys.
type ModelRouterPlugin struct {
	Models []string `json:"models" yaml:"models"`
}

// LoggingPlugin logs requests at the given level.
type LoggingPlugin struct {
	Level string `json:"level" yaml:"level"`
}

// TracingPlugin exports request traces to an endpoint.
type TracingPlugin struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

func (ModelRouterPlugin) PluginType() PluginType { return PluginTypeModelRouter }
func (LoggingPlugin) PluginType() PluginType     { return PluginTypeLogging }
func (TracingPlugin) PluginType() PluginType     { return PluginTypeTracing }

func (ModelRouterPlugin) isPluginConfig() {}
func (LoggingPlugin) isPluginConfig()     {}
func (TracingPlugin) isPluginConfig()     {}

// MarshalJSON adds the "type" tag next to the variant fields.
func (p ModelRouterPlugin) MarshalJSON() ([]byte, error) {
	type Fields ModelRouterPlugin
	return json.Marshal(struct {
		Type PluginType `json:"type"`
		Fields
	}{p.PluginType(), Fields(p)})
}

// MarshalJSON adds the "type" tag next to the variant fields.
func (p LoggingPlugin) MarshalJSON() ([]byte, error) {
	type Fields LoggingPlugin
	return json.Marshal(struct {
		Type PluginType `json:"type"`
		Fields
	}{p.PluginType(), Fields(p)})
}

// MarshalJSON adds the "type" tag next to the variant fields.
func (p TracingPlugin) MarshalJSON() ([]byte, error) {
	type Fields TracingPlugin
	return json.Marshal(struct {
		Type PluginType `json:"type"`
		Fields
	}{p.PluginType(), Fields(p)})
}

// MarshalYAML adds the "type" tag next to the variant fields.
func (p ModelRouterPlugin) MarshalYAML() (interface{}, error) {
	type Fields ModelRouterPlugin
	return struct {
		Type   PluginType `yaml:"type"`
		Fields `yaml:",inline"`
	}{p.PluginType(), Fields(p)}, nil
}

// MarshalYAML adds the "type" tag next to the variant fields.
func (p LoggingPlugin) MarshalYAML() (interface{}, error) {
	type Fields LoggingPlugin
	return struct {
		Type   PluginType `yaml:"type"`
		Fields `yaml:",inline"`
	}{p.PluginType(), Fields(p)}, nil
}

// MarshalYAML adds the "type" tag next to the variant fields.
func (p TracingPlugin) MarshalYAML() (interface{}, error) {
	type Fields TracingPlugin
	return struct {
		Type   PluginType `yaml:"type"`
		Fields `yaml:",inline"`
	}{p.PluginType(), Fields(p)}, nil
}

const redactedValue = "***"

// Redacted returns a copy of the configuration with credentials masked,
// suitable for printing.
func (c *GatewayConfig) Redacted() *GatewayConfig {
	out := &GatewayConfig{
		Providers: make([]Provider, 0, len(c.Providers)),
		Models:    c.Models,
		Pipelines: make([]Pipeline, 0, len(c.Pipelines)),
	}

	for _, p := range c.Providers {
		if p.APIKey != "" {
			p.APIKey = redactedValue
		}
		out.Providers = append(out.Providers, p)
	}

	for _, pl := range c.Pipelines {
		plugins := make([]PluginConfig, 0, len(pl.Plugins))
		for _, plugin := range pl.Plugins {
			if tracing, ok := plugin.(TracingPlugin); ok && tracing.APIKey != "" {
				tracing.APIKey = redactedValue
				plugin = tracing
			}
			plugins = append(plugins, plugin)
		}
		pl.Plugins = plugins
		out.Pipelines = append(out.Pipelines, pl)
	}

	return out
}
