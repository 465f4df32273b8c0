package apiconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"api_config/internal/diagnostics"
	"api_config/internal/metrics"
	"api_config/internal/models"
	"api_config/internal/secrets"
	"api_config/internal/utils"
)

// Result is the outcome of one transformation: the configuration that could
// be assembled and a diagnostic for every entity left out of it.
type Result struct {
	Config      *models.GatewayConfig
	Diagnostics []diagnostics.Diagnostic
}

// Transformer converts a fetched bundle into the internal configuration
// graph. It never fails as a whole: malformed entities are skipped.
type Transformer struct {
	resolver secrets.Resolver
	logger   *utils.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
	now      func() time.Time
}

// NewTransformer creates a transformer; without WithResolver it resolves
// secrets from the process environment.
func NewTransformer(opts ...Option) *Transformer {
	return newTransformer(buildOptions(opts))
}

func newTransformer(o *options) *Transformer {
	return &Transformer{
		resolver: o.resolver,
		logger:   o.logger.Named("transformer"),
		metrics:  o.metrics,
		tracer:   o.tracer(),
		now:      o.now,
	}
}

// transformPass holds the state of a single Transform call.
type transformPass struct {
	t       *Transformer
	cycleID string

	// providerKeys maps ProviderDTO.ID to the internal Provider.Key of
	// every provider transformed so far.
	providerKeys map[string]string
	diags        []diagnostics.Diagnostic
}

// Transform builds the configuration from bundle. Providers are transformed
// before models since models reference them; pipelines come last. Output
// keeps the relative order of the enabled source entries.
func (t *Transformer) Transform(ctx context.Context, bundle *ConfigurationBundle) *Result {
	ctx, span := t.tracer.Start(ctx, "apiconfig.Transform")
	defer span.End()

	if bundle == nil {
		bundle = &ConfigurationBundle{}
	}

	pass := &transformPass{
		t:            t,
		cycleID:      CycleIDFromContext(ctx),
		providerKeys: make(map[string]string, len(bundle.Providers)),
	}

	cfg := &models.GatewayConfig{
		Providers: make([]models.Provider, 0, len(bundle.Providers)),
		Models:    make([]models.ModelConfig, 0, len(bundle.Models)),
		Pipelines: make([]models.Pipeline, 0, len(bundle.Pipelines)),
	}

	for _, dto := range bundle.Providers {
		if !dto.Enabled {
			continue
		}
		provider, err := pass.transformProvider(ctx, dto)
		if err != nil {
			pass.skip(diagnostics.StageProvider, dto.ID, dto.Name, "", err)
			continue
		}
		pass.providerKeys[dto.ID] = provider.Key
		cfg.Providers = append(cfg.Providers, provider)
	}

	for _, dto := range bundle.Models {
		if !dto.Enabled {
			continue
		}
		model, err := pass.transformModel(dto)
		if err != nil {
			pass.skip(diagnostics.StageModel, dto.ID, dto.Key, "", err)
			continue
		}
		cfg.Models = append(cfg.Models, model)
	}

	for _, dto := range bundle.Pipelines {
		if !dto.Enabled {
			continue
		}
		pipeline, err := pass.transformPipeline(dto)
		if err != nil {
			pass.skip(diagnostics.StagePipeline, dto.ID, dto.Name, "", err)
			continue
		}
		cfg.Pipelines = append(cfg.Pipelines, pipeline)
	}

	t.logger.Info("Transformed API configuration",
		"cycle_id", pass.cycleID,
		"providers", len(cfg.Providers),
		"models", len(cfg.Models),
		"pipelines", len(cfg.Pipelines),
		"skipped", len(pass.diags),
	)
	t.metrics.SetLoaded(len(cfg.Providers), len(cfg.Models), len(cfg.Pipelines))
	span.SetAttributes(
		attribute.Int("apiconfig.providers", len(cfg.Providers)),
		attribute.Int("apiconfig.models", len(cfg.Models)),
		attribute.Int("apiconfig.pipelines", len(cfg.Pipelines)),
		attribute.Int("apiconfig.skipped", len(pass.diags)),
	)

	return &Result{Config: cfg, Diagnostics: pass.diags}
}

func (p *transformPass) skip(stage diagnostics.Stage, id, key, parent string, err error) {
	d := diagnostics.Diagnostic{
		CycleID:   p.cycleID,
		Timestamp: p.t.now().UTC(),
		Stage:     stage,
		EntityID:  id,
		EntityKey: key,
		Parent:    parent,
		Reason:    err.Error(),
	}
	p.diags = append(p.diags, d)
	p.t.metrics.RecordSkipped(string(stage))

	keyvals := []interface{}{"cycle_id", p.cycleID, "stage", stage, "id", id, "key", key, "error", err}
	if parent != "" {
		keyvals = append(keyvals, "pipeline", parent)
	}
	p.t.logger.Error(fmt.Sprintf("Failed to transform %s, skipping", stage), keyvals...)
}

func (p *transformPass) transformProvider(ctx context.Context, dto ProviderDTO) (models.Provider, error) {
	kind, err := ParseProviderType(dto.ProviderType)
	if err != nil {
		return models.Provider{}, err
	}

	apiKeyRef, params, err := decodeProviderConfig(kind, dto.Config)
	if err != nil {
		return models.Provider{}, err
	}

	apiKey, err := p.t.resolver.Resolve(secrets.WithOwner(ctx, "provider "+dto.Name), apiKeyRef)
	if err != nil {
		return models.Provider{}, fmt.Errorf("failed to resolve api_key (%s): %w", apiKeyRef, err)
	}

	return models.Provider{
		Key:    dto.Name,
		Type:   string(kind),
		APIKey: apiKey,
		Params: params,
	}, nil
}

// decodeProviderConfig decodes the kind-specific config payload into its
// api key reference and side parameters.
func decodeProviderConfig(kind ProviderType, raw json.RawMessage) (secrets.Reference, map[string]string, error) {
	params := make(map[string]string)

	if isNullJSON(raw) {
		return secrets.Reference{}, nil, fmt.Errorf("%w: %s provider has no config", ErrInvalidProviderConfig, kind)
	}

	var apiKey *secrets.Reference
	switch kind {
	case ProviderTypeOpenAI:
		var c OpenAIProviderConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return secrets.Reference{}, nil, fmt.Errorf("%w: %v", ErrInvalidProviderConfig, err)
		}
		if c.OrganizationID != nil {
			params["organization_id"] = *c.OrganizationID
		}
		apiKey = c.APIKey
	default:
		var c APIKeyProviderConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return secrets.Reference{}, nil, fmt.Errorf("%w: %v", ErrInvalidProviderConfig, err)
		}
		apiKey = c.APIKey
	}

	if apiKey == nil {
		return secrets.Reference{}, nil, fmt.Errorf("%w: %s provider config is missing api_key", ErrInvalidProviderConfig, kind)
	}
	return *apiKey, params, nil
}

func (p *transformPass) transformModel(dto ModelDTO) (models.ModelConfig, error) {
	providerKey, ok := p.providerKeys[dto.ProviderID]
	if !ok {
		return models.ModelConfig{}, fmt.Errorf("%w for provider ID %s (model key '%s')", ErrProviderNotFound, dto.ProviderID, dto.Key)
	}

	params, err := convertConfigDetails(dto.ConfigDetails)
	if err != nil {
		return models.ModelConfig{}, err
	}

	return models.ModelConfig{
		Key:      dto.Key,
		Type:     dto.ModelType,
		Provider: providerKey,
		Params:   params,
	}, nil
}

// convertConfigDetails flattens a JSON object into a string map. null or an
// absent payload gives an empty map; any other non-object is an error.
func convertConfigDetails(raw json.RawMessage) (map[string]string, error) {
	params := make(map[string]string)
	if isNullJSON(raw) {
		return params, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w (got %s)", ErrConfigDetailsNotObject, jsonKind(trimmed))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigDetailsNotObject, err)
	}

	for key, value := range fields {
		s, err := convertJSONValue(value)
		if err != nil {
			return nil, fmt.Errorf("config_details.%s: %w", key, err)
		}
		params[key] = s
	}
	return params, nil
}

// convertJSONValue renders one JSON value as a parameter string: strings
// unchanged, numbers and booleans as text, null as "", arrays and objects
// as compact JSON.
func convertJSONValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case 'n':
		return "", nil
	case '[', '{':
		return compactJSON(raw)
	default:
		return canonicalNumber(raw)
	}
}

// compactJSON re-encodes structured values with sorted object keys, no
// insignificant whitespace and numbers in canonical form at every depth.
func compactJSON(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch v := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case json.Number:
		s, err := formatNumber(v)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case string:
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return err
		}
		buf.Truncate(buf.Len() - 1) // trailing newline
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unexpected JSON value of type %T", v)
	}
	return nil
}

func canonicalNumber(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", err
	}
	return formatNumber(n)
}

// formatNumber renders integer literals with their digits and every other
// number as a float in shortest round-trip form.
func formatNumber(n json.Number) (string, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			if i == 0 && strings.HasPrefix(s, "-") {
				return formatFloat(math.Copysign(0, -1)), nil
			}
			return strconv.FormatInt(i, 10), nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return strconv.FormatUint(u, 10), nil
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("invalid number %s: %w", s, err)
	}
	return formatFloat(f), nil
}

// formatFloat writes the shortest digits that round-trip f. Whole numbers
// keep a ".0" suffix; magnitudes outside [1e-5, 1e16) use an exponent
// without a plus sign, e.g. 1.5e300 and 1e-7.
func formatFloat(f float64) string {
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	var b strings.Builder
	if f < 0 {
		b.WriteByte('-')
		f = -f
	}

	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	e, _ := strconv.Atoi(exp)
	digits := strings.Replace(mantissa, ".", "", 1)

	// f == 0.<digits> * 10^point
	point := e + 1
	zeros := point - len(digits)

	switch {
	case zeros >= 0 && point <= 16:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", zeros))
		b.WriteString(".0")
	case point > 0 && point <= 16:
		b.WriteString(digits[:point])
		b.WriteByte('.')
		b.WriteString(digits[point:])
	case point > -5 && point <= 0:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", -point))
		b.WriteString(digits)
	default:
		b.WriteByte(digits[0])
		if len(digits) > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		b.WriteByte('e')
		b.WriteString(strconv.Itoa(point - 1))
	}
	return b.String()
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func jsonKind(raw []byte) string {
	switch raw[0] {
	case '"':
		return "string"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}

func (p *transformPass) transformPipeline(dto PipelineDTO) (models.Pipeline, error) {
	kind, err := models.ParsePipelineType(dto.PipelineType)
	if err != nil {
		return models.Pipeline{}, err
	}

	plugins := make([]models.PluginConfig, 0, len(dto.Plugins))
	for _, pluginDTO := range dto.Plugins {
		if !pluginDTO.Enabled {
			continue
		}
		plugin, err := decodePlugin(pluginDTO)
		if err != nil {
			p.skip(diagnostics.StagePlugin, strconv.Itoa(pluginDTO.OrderInPipeline), pluginDTO.PluginType, dto.Name, err)
			continue
		}
		plugins = append(plugins, plugin)
	}

	return models.Pipeline{
		Name:    dto.Name,
		Type:    kind,
		Plugins: plugins,
	}, nil
}

// decodePlugin dispatches on the plugin type tag. Unknown tags are rejected.
func decodePlugin(dto PluginDTO) (models.PluginConfig, error) {
	switch models.PluginType(dto.PluginType) {
	case models.PluginTypeModelRouter:
		return decodeModelRouter(dto.ConfigData)
	case models.PluginTypeLogging:
		return decodeLogging(dto.ConfigData), nil
	case models.PluginTypeTracing:
		return decodeTracing(dto.ConfigData)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPluginType, dto.PluginType)
	}
}

// decodeModelRouter keeps the model keys in their given order. Priorities
// are accepted but not carried over.
func decodeModelRouter(raw json.RawMessage) (models.PluginConfig, error) {
	if isNullJSON(raw) {
		return nil, fmt.Errorf("%w: model-router requires config_data", ErrInvalidPluginConfig)
	}

	var cfg ModelRouterConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: model-router: %v", ErrInvalidPluginConfig, err)
	}
	if cfg.Models == nil {
		return nil, fmt.Errorf("%w: model-router is missing field \"models\"", ErrInvalidPluginConfig)
	}

	keys := make([]string, 0, len(cfg.Models))
	for i, entry := range cfg.Models {
		if entry.Key == nil {
			return nil, fmt.Errorf("%w: model-router entry %d is missing field \"key\"", ErrInvalidPluginConfig, i)
		}
		keys = append(keys, *entry.Key)
	}
	return models.ModelRouterPlugin{Models: keys}, nil
}

// decodeLogging reads an optional string "level", defaulting to warning.
func decodeLogging(raw json.RawMessage) models.PluginConfig {
	level, ok := stringField(raw, "level")
	if !ok {
		level = "warning"
	}
	return models.LoggingPlugin{Level: level}
}

func decodeTracing(raw json.RawMessage) (models.PluginConfig, error) {
	endpoint, ok := stringField(raw, "endpoint")
	if !ok {
		return nil, ErrMissingTracingEndpoint
	}
	apiKey, _ := stringField(raw, "api_key")
	return models.TracingPlugin{Endpoint: endpoint, APIKey: apiKey}, nil
}

// stringField returns obj[name] when raw is an object and the field holds a
// string.
func stringField(raw json.RawMessage, name string) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return "", false
	}
	value, ok := obj[name]
	if !ok || isNullJSON(value) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return "", false
	}
	return s, true
}
