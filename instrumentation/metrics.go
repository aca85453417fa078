package instrumentation

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the authentication service.
type Metrics struct {
	// Flow metrics
	LoginsInitiated    metric.Int64Counter
	CallbacksProcessed metric.Int64Counter
	TokensRefreshed    metric.Int64Counter
	Logouts            metric.Int64Counter

	// Security metrics
	RateLimitExceeded metric.Int64Counter

	// Provider metrics
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	serverMeter := inst.Meter("server")
	providerMeter := inst.Meter("provider")

	m := &Metrics{}
	var err error

	m.LoginsInitiated, err = serverMeter.Int64Counter(
		"auth.logins.initiated",
		metric.WithDescription("Number of login flows initiated"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logins.initiated counter: %w", err)
	}

	m.CallbacksProcessed, err = serverMeter.Int64Counter(
		"auth.callbacks.processed",
		metric.WithDescription("Number of provider callbacks processed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callbacks.processed counter: %w", err)
	}

	m.TokensRefreshed, err = serverMeter.Int64Counter(
		"auth.tokens.refreshed",
		metric.WithDescription("Number of access tokens reissued from refresh tokens"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens.refreshed counter: %w", err)
	}

	m.Logouts, err = serverMeter.Int64Counter(
		"auth.logouts",
		metric.WithDescription("Number of logout requests processed"),
		metric.WithUnit("{logout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create logouts counter: %w", err)
	}

	m.RateLimitExceeded, err = serverMeter.Int64Counter(
		"auth.ratelimit.exceeded",
		metric.WithDescription("Number of requests rejected by rate limiting"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.exceeded counter: %w", err)
	}

	m.ProviderAPICallsTotal, err = providerMeter.Int64Counter(
		"auth.provider.api.calls",
		metric.WithDescription("Number of identity provider API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.calls counter: %w", err)
	}

	m.ProviderAPIDuration, err = providerMeter.Float64Histogram(
		"auth.provider.api.duration",
		metric.WithDescription("Identity provider API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.duration histogram: %w", err)
	}

	return m, nil
}
