package apiconfig

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"api_config/internal/secrets"
)

// ProviderType is the kind of an upstream provider as reported by the API.
type ProviderType string

const (
	ProviderTypeAzure     ProviderType = "azure"
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeBedrock   ProviderType = "bedrock"
	ProviderTypeVertexAI  ProviderType = "vertexai"
)

// ParseProviderType accepts the provider kind in any case, with or without
// word separators ("OpenAI", "open_ai", "vertex-ai").
func ParseProviderType(name string) (ProviderType, error) {
	normalized := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(name)))
	switch ProviderType(normalized) {
	case ProviderTypeAzure, ProviderTypeOpenAI, ProviderTypeAnthropic, ProviderTypeBedrock, ProviderTypeVertexAI:
		return ProviderType(normalized), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProviderType, name)
	}
}

// ProviderDTO is a provider as delivered by the configuration API.
// Config is decoded per ProviderType during transformation.
type ProviderDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ProviderType string          `json:"provider_type"`
	Config       json.RawMessage `json:"config"`
	Enabled      bool            `json:"enabled"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

// OpenAIProviderConfig is the config payload of an openai provider
type OpenAIProviderConfig struct {
	APIKey         *secrets.Reference `json:"api_key"`
	OrganizationID *string            `json:"organization_id,omitempty"`
}

// APIKeyProviderConfig is the config payload of providers that only carry
// an api key (anthropic, azure, bedrock, vertexai).
type APIKeyProviderConfig struct {
	APIKey *secrets.Reference `json:"api_key"`
}

// ModelDTO is a model definition. ProviderID refers to ProviderDTO.ID, not
// to the provider's internal key.
type ModelDTO struct {
	ID            string          `json:"id"`
	Key           string          `json:"key"`
	ModelType     string          `json:"model_type"`
	ProviderID    string          `json:"provider_id"`
	ConfigDetails json.RawMessage `json:"config_details"`
	Enabled       bool            `json:"enabled"`
	CreatedAt     *time.Time      `json:"created_at,omitempty"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty"`
}

// PipelineDTO is a request pipeline with its ordered plugins.
type PipelineDTO struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	PipelineType string      `json:"pipeline_type"`
	Description  *string     `json:"description,omitempty"`
	Plugins      []PluginDTO `json:"plugins"`
	Enabled      bool        `json:"enabled"`
	CreatedAt    *time.Time  `json:"created_at,omitempty"`
	UpdatedAt    *time.Time  `json:"updated_at,omitempty"`
}

// PluginDTO is one plugin entry of a pipeline. Enabled defaults to true
// when the field is absent.
type PluginDTO struct {
	PluginType      string          `json:"plugin_type"`
	ConfigData      json.RawMessage `json:"config_data"`
	Enabled         bool            `json:"enabled"`
	OrderInPipeline int             `json:"order_in_pipeline"`
}

func (p *PluginDTO) UnmarshalJSON(data []byte) error {
	type Fields PluginDTO
	aux := Fields{Enabled: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = PluginDTO(aux)
	return nil
}

// ModelRouterConfig is the config_data of a model-router plugin
type ModelRouterConfig struct {
	Models []ModelRouterEntry `json:"models"`
}

// ModelRouterEntry is accepted with its priority, which is not carried
// into the internal plugin.
type ModelRouterEntry struct {
	Key      *string `json:"key"`
	Priority *int    `json:"priority,omitempty"`
}

// ConfigurationBundle is the raw configuration fetched in one cycle.
type ConfigurationBundle struct {
	Providers   []ProviderDTO `json:"providers"`
	Models      []ModelDTO    `json:"models"`
	Pipelines   []PipelineDTO `json:"pipelines"`
	Version     *string       `json:"version,omitempty"`
	LastUpdated *time.Time    `json:"last_updated,omitempty"`
}
