package apiconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingBaseURL is returned when the fetcher has no base URL
	ErrMissingBaseURL = errors.New("API base URL is required")

	// Fetch-phase failure kinds, matched with errors.Is on a *FetchError
	ErrTransport        = errors.New("transport failure")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrDecode           = errors.New("decode failure")

	// Transform-phase failures; these only ever reach diagnostics
	ErrUnsupportedProviderType = errors.New("unsupported provider type")
	ErrInvalidProviderConfig   = errors.New("invalid provider config")
	ErrProviderNotFound        = errors.New("provider key not found")
	ErrConfigDetailsNotObject  = errors.New("config_details is not a JSON object")
	ErrUnknownPluginType       = errors.New("unknown plugin type")
	ErrInvalidPluginConfig     = errors.New("invalid plugin config")
	ErrMissingTracingEndpoint  = errors.New("missing endpoint for tracing plugin")
)

// bodyExcerptLimit caps the response body kept on status failures
const bodyExcerptLimit = 512

// FetchError reports a failed request to the configuration API.
type FetchError struct {
	Kind       error // ErrTransport, ErrUnexpectedStatus or ErrDecode
	Resource   string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case ErrUnexpectedStatus:
		if e.Body == "" {
			return fmt.Sprintf("%s API returned error status %d from %s", e.Resource, e.StatusCode, e.URL)
		}
		return fmt.Sprintf("%s API returned error status %d from %s: %s", e.Resource, e.StatusCode, e.URL, e.Body)
	case ErrDecode:
		return fmt.Sprintf("failed to parse %s response from %s as JSON: %v", e.Resource, e.URL, e.Err)
	default:
		return fmt.Sprintf("failed to fetch %s from %s: %v", e.Resource, e.URL, e.Err)
	}
}

// Unwrap exposes both the failure kind and the underlying cause.
func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// kindLabel is the metrics label of the failure kind
func (e *FetchError) kindLabel() string {
	switch e.Kind {
	case ErrUnexpectedStatus:
		return "status"
	case ErrDecode:
		return "decode"
	default:
		return "transport"
	}
}
