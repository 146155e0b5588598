package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	ledger          LedgerStore
	dedup           DedupIndex
	sender          Sender
	crm             CRMClient
	brands          BrandResolver
	tasks           TaskRunner
	scheduler       *DeliveryScheduler
	reconcilerOpts  []ReconcilerOption
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithLedgerStore(store LedgerStore) Option {
	return func(b *serviceBuilder) {
		b.ledger = store
	}
}

func WithDedupIndex(index DedupIndex) Option {
	return func(b *serviceBuilder) {
		b.dedup = index
	}
}

func WithSender(sender Sender) Option {
	return func(b *serviceBuilder) {
		b.sender = sender
	}
}

func WithCRMClient(client CRMClient) Option {
	return func(b *serviceBuilder) {
		b.crm = client
	}
}

func WithBrandResolver(resolver BrandResolver) Option {
	return func(b *serviceBuilder) {
		b.brands = resolver
	}
}

func WithTaskRunner(runner TaskRunner) Option {
	return func(b *serviceBuilder) {
		b.tasks = runner
	}
}

func WithScheduler(scheduler *DeliveryScheduler) Option {
	return func(b *serviceBuilder) {
		b.scheduler = scheduler
	}
}

func WithReconcilerOptions(options ...ReconcilerOption) Option {
	return func(b *serviceBuilder) {
		b.reconcilerOpts = append(b.reconcilerOpts, options...)
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	return serviceBuilder{
		runtimeConfig:   runtime,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     deliveryErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults, loaded config, and runtime overrides
// into the effective service configuration. Later layers win.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	delivery := map[string]any{}
	if includeZero || cfg.Delivery.MaxAttempts > 0 {
		delivery["max_attempts"] = cfg.Delivery.MaxAttempts
	}
	if includeZero || cfg.Delivery.BackoffCapMinutes > 0 {
		delivery["backoff_cap_minutes"] = cfg.Delivery.BackoffCapMinutes
	}
	if includeZero || cfg.Delivery.JitterMaxSeconds > 0 {
		delivery["jitter_max_seconds"] = cfg.Delivery.JitterMaxSeconds
	}
	if includeZero || cfg.Delivery.BatchSize > 0 {
		delivery["batch_size"] = cfg.Delivery.BatchSize
	}
	if includeZero || cfg.Delivery.TickIntervalSeconds > 0 {
		delivery["tick_interval_seconds"] = cfg.Delivery.TickIntervalSeconds
	}
	if includeZero || cfg.Delivery.DedupWindowDays > 0 {
		delivery["dedup_window_days"] = cfg.Delivery.DedupWindowDays
	}
	if len(delivery) > 0 {
		layer["delivery"] = delivery
	}

	reconcile := map[string]any{}
	if includeZero || len(cfg.Reconcile.ContactDelaysSeconds) > 0 {
		reconcile["contact_delays_seconds"] = append([]int(nil), cfg.Reconcile.ContactDelaysSeconds...)
	}
	if includeZero || len(cfg.Reconcile.GlobalDelaysSeconds) > 0 {
		reconcile["global_delays_seconds"] = append([]int(nil), cfg.Reconcile.GlobalDelaysSeconds...)
	}
	if includeZero || cfg.Reconcile.LookbackMinutes > 0 {
		reconcile["lookback_minutes"] = cfg.Reconcile.LookbackMinutes
	}
	if includeZero || cfg.Reconcile.ScanLimit > 0 {
		reconcile["scan_limit"] = cfg.Reconcile.ScanLimit
	}
	if len(reconcile) > 0 {
		layer["reconcile"] = reconcile
	}

	if includeZero || len(cfg.Brands) > 0 {
		brands := map[string]any{}
		for brand, creds := range cfg.Brands {
			brands[brand] = map[string]any{
				"access_token": creds.AccessToken,
				"pixel_id":     creds.PixelID,
			}
		}
		layer["brands"] = brands
	}
	return layer
}
