// Package pennant is a client-side feature-flag evaluation SDK. Given a
// declarative datafile describing features, targeting rules, traffic
// allocations, variations and typed variables, an Instance decides
// deterministically whether a feature is enabled, which variation is
// assigned, and what each typed variable resolves to for a caller-supplied
// context.
//
// The same (datafile revision, feature, context) tuple always yields the
// same decision, across every client implementation sharing the datafile
// wire contract.
package pennant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pennant-io/pennant-go/internal/emitter"
	"github.com/pennant-io/pennant-go/internal/fetch"
	"github.com/pennant-io/pennant-go/internal/logging"
	"github.com/pennant-io/pennant-go/internal/metrics"
)

// datafileView is the immutable per-datafile snapshot evaluations operate
// on: the content plus key indexes. Replaced atomically as a whole.
type datafileView struct {
	content  *DatafileContent
	features map[string]*Feature
	segments map[string]*Segment
}

func newDatafileView(content *DatafileContent) *datafileView {
	view := &datafileView{
		content:  content,
		features: make(map[string]*Feature, len(content.Features)),
		segments: make(map[string]*Segment, len(content.Segments)),
	}
	for idx := range content.Features {
		view.features[content.Features[idx].Key] = &content.Features[idx]
	}
	for idx := range content.Segments {
		view.segments[content.Segments[idx].Key] = &content.Segments[idx]
	}
	return view
}

func emptyDatafileContent() *DatafileContent {
	return &DatafileContent{SchemaVersion: "1", Revision: "unknown"}
}

// Instance holds the current datafile view, the override tables, the
// refresher and the event emitter. It is safe for concurrent use.
type Instance struct {
	id      string
	logger  *slog.Logger
	emitter *emitter.Emitter
	metrics *metrics.Metrics

	datafileURL         string
	fetcher             *fetch.Client
	handleDatafileFetch DatafileFetchFunc
	refreshInterval     time.Duration

	bucketKeySeparator   string
	configureBucketKey   ConfigureBucketKeyFunc
	configureBucketValue ConfigureBucketValueFunc
	interceptContext     InterceptContextFunc

	view              atomic.Pointer[datafileView]
	ready             atomic.Bool
	refreshInProgress atomic.Bool

	overridesMu sync.RWMutex
	sticky      FeatureOverrides
	initial     FeatureOverrides

	refreshMu   sync.Mutex
	refreshStop chan struct{}
}

// CreateInstance builds an Instance from options. It returns
// ErrMissingDatafileOptions when no datafile source was supplied, and a
// parse error when an inline datafile is malformed.
//
// With an inline datafile the instance is ready on return. With only a
// URL the initial fetch runs asynchronously; the instance becomes ready
// (and the periodic refresher starts, when configured) once it succeeds.
func CreateInstance(options Options) (*Instance, error) {
	if options.DatafileContent == nil && options.Datafile == nil && options.DatafileURL == "" {
		return nil, ErrMissingDatafileOptions
	}

	instance := &Instance{
		id:                   uuid.NewString(),
		emitter:              emitter.New(),
		datafileURL:          options.DatafileURL,
		fetcher:              fetch.New(options.HTTPClient),
		handleDatafileFetch:  options.HandleDatafileFetch,
		refreshInterval:      options.RefreshInterval,
		bucketKeySeparator:   options.BucketKeySeparator,
		configureBucketKey:   options.ConfigureBucketKey,
		configureBucketValue: options.ConfigureBucketValue,
		interceptContext:     options.InterceptContext,
		sticky:               options.StickyFeatures,
		initial:              options.InitialFeatures,
	}
	instance.logger = logging.ForInstance(options.Logger, instance.id)
	if instance.bucketKeySeparator == "" {
		instance.bucketKeySeparator = DefaultBucketKeySeparator
	}
	if options.MetricsRegisterer != nil {
		instance.metrics = metrics.New(options.MetricsRegisterer)
	}

	if options.OnReady != nil {
		instance.On(EventReady, func(...any) { options.OnReady() })
	}
	if options.OnRefresh != nil {
		instance.On(EventRefresh, func(...any) { options.OnRefresh() })
	}
	if options.OnUpdate != nil {
		instance.On(EventUpdate, func(...any) { options.OnUpdate() })
	}
	if options.OnActivation != nil {
		listener := options.OnActivation
		instance.On(EventActivation, func(args ...any) {
			listener(
				args[0].(string),
				args[1].(string),
				args[2].(Context),
				args[3].(Context),
				args[4].(Evaluation),
			)
		})
	}

	switch {
	case options.DatafileContent != nil:
		instance.install(options.DatafileContent)
		instance.markReady()
	case options.Datafile != nil:
		content, err := ParseDatafile(options.Datafile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDatafileParse, err)
		}
		instance.install(content)
		instance.markReady()
	default:
		instance.install(emptyDatafileContent())
		go instance.initialFetch()
	}

	return instance, nil
}

func (i *Instance) initialFetch() {
	content, err := i.fetchDatafile(context.Background())
	if err != nil {
		i.logger.Error("initial datafile fetch failed", slog.String("error", err.Error()))
		return
	}
	i.install(content)
	i.markReady()
	if i.refreshInterval > 0 {
		i.StartRefreshing()
	}
}

func (i *Instance) fetchDatafile(ctx context.Context) (*DatafileContent, error) {
	if i.handleDatafileFetch != nil {
		return i.handleDatafileFetch(ctx, i.datafileURL)
	}

	start := time.Now()
	body, err := i.fetcher.Datafile(ctx, i.datafileURL)
	i.metrics.ObserveFetch(time.Since(start))
	if err != nil {
		return nil, err
	}
	return ParseDatafile(body)
}

// install publishes a new datafile view. The pointer swap is the only
// synchronization: an in-flight evaluation keeps operating on the
// snapshot it read at entry.
func (i *Instance) install(content *DatafileContent) {
	i.view.Store(newDatafileView(content))
}

// markReady flips the instance ready exactly once, emitting EventReady.
func (i *Instance) markReady() {
	if i.ready.CompareAndSwap(false, true) {
		i.logger.Info("instance ready", slog.String("revision", i.GetRevision()))
		i.emitter.Emit(string(EventReady))
	}
}

func (i *Instance) snapshot() *datafileView {
	return i.view.Load()
}

// IsReady reports whether a datafile has been installed.
func (i *Instance) IsReady() bool {
	return i.ready.Load()
}

// GetRevision returns the current datafile's revision string.
func (i *Instance) GetRevision() string {
	return i.snapshot().content.Revision
}

// GetFeature returns the named feature from the current datafile
// snapshot, or nil. The returned value is shared and must not be
// mutated.
func (i *Instance) GetFeature(featureKey string) *Feature {
	return i.snapshot().features[featureKey]
}

// GetVariableKeys lists the variable schema keys of the named feature.
func (i *Instance) GetVariableKeys(featureKey string) []string {
	feature := i.GetFeature(featureKey)
	if feature == nil {
		return nil
	}
	keys := make([]string, len(feature.VariablesSchema))
	for idx, schema := range feature.VariablesSchema {
		keys[idx] = schema.Key
	}
	return keys
}

// SetDatafile decodes and installs datafile JSON. On malformed input the
// previous datafile is retained and an error wrapping ErrDatafileParse is
// returned.
func (i *Instance) SetDatafile(data []byte) error {
	content, err := ParseDatafile(data)
	if err != nil {
		i.logger.Error("could not parse datafile", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrDatafileParse, err)
	}
	i.install(content)
	i.markReady()
	return nil
}

// SetDatafileContent installs an already-decoded datafile.
func (i *Instance) SetDatafileContent(content *DatafileContent) {
	i.install(content)
	i.markReady()
}

// SetStickyFeatures replaces the sticky override table. Pass nil to clear.
func (i *Instance) SetStickyFeatures(overrides FeatureOverrides) {
	i.overridesMu.Lock()
	i.sticky = overrides
	i.overridesMu.Unlock()
}

// SetInitialFeatures replaces the initial override table. Pass nil to
// clear.
func (i *Instance) SetInitialFeatures(overrides FeatureOverrides) {
	i.overridesMu.Lock()
	i.initial = overrides
	i.overridesMu.Unlock()
}

func (i *Instance) stickyFor(featureKey string) (FeatureOverride, bool) {
	i.overridesMu.RLock()
	defer i.overridesMu.RUnlock()
	override, ok := i.sticky[featureKey]
	return override, ok
}

func (i *Instance) initialFor(featureKey string) (FeatureOverride, bool) {
	i.overridesMu.RLock()
	defer i.overridesMu.RUnlock()
	override, ok := i.initial[featureKey]
	return override, ok
}

func (i *Instance) interceptedContext(context Context) Context {
	if i.interceptContext == nil {
		return context
	}
	return i.interceptContext(context)
}

func (i *Instance) recordEvaluation(kind string, reason Reason) {
	i.metrics.ObserveEvaluation(kind, string(reason))
}

// Refresh refetches the datafile and installs the result atomically. It
// is a warn-and-skip no-op while another refresh is in progress (event
// handlers must not call it synchronously), and warns when no datafile
// URL was configured. EventRefresh is emitted on every successful cycle;
// EventUpdate additionally when the revision changed.
func (i *Instance) Refresh() {
	if !i.refreshInProgress.CompareAndSwap(false, true) {
		i.logger.Warn("refresh already in progress, skipping")
		i.metrics.ObserveRefresh(metrics.RefreshOutcomeSkipped)
		return
	}
	defer i.refreshInProgress.Store(false)

	if i.datafileURL == "" {
		i.logger.Warn("cannot refresh without a datafile url")
		return
	}

	content, err := i.fetchDatafile(context.Background())
	if err != nil {
		i.logger.Error("datafile refresh failed", slog.String("error", err.Error()))
		i.metrics.ObserveRefresh(metrics.RefreshOutcomeFailure)
		return
	}

	previousRevision := i.GetRevision()
	i.install(content)
	i.markReady()
	i.metrics.ObserveRefresh(metrics.RefreshOutcomeSuccess)

	i.emitter.Emit(string(EventRefresh))
	if content.Revision != previousRevision {
		i.logger.Info("datafile updated",
			slog.String("previous_revision", previousRevision),
			slog.String("revision", content.Revision),
		)
		i.emitter.Emit(string(EventUpdate))
	}
}

// StartRefreshing schedules periodic Refresh calls at the configured
// interval on a background goroutine. Starting twice is a warn-and-no-op.
func (i *Instance) StartRefreshing() {
	i.refreshMu.Lock()
	defer i.refreshMu.Unlock()

	if i.datafileURL == "" {
		i.logger.Warn("cannot start refreshing without a datafile url")
		return
	}
	if i.refreshInterval <= 0 {
		i.logger.Warn("cannot start refreshing without a refresh interval")
		return
	}
	if i.refreshStop != nil {
		i.logger.Warn("refreshing has already started")
		return
	}

	stop := make(chan struct{})
	i.refreshStop = stop

	go func() {
		ticker := time.NewTicker(i.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				i.Refresh()
			}
		}
	}()
}

// StopRefreshing cancels the periodic refresher. A fetch already in
// flight completes naturally and still installs its result if it
// succeeds.
func (i *Instance) StopRefreshing() {
	i.refreshMu.Lock()
	defer i.refreshMu.Unlock()
	if i.refreshStop == nil {
		return
	}
	close(i.refreshStop)
	i.refreshStop = nil
}

// IsEnabled evaluates the feature flag for the context.
func (i *Instance) IsEnabled(featureKey string, context Context) bool {
	evaluation := i.EvaluateFlag(featureKey, context)
	return evaluation.Enabled != nil && *evaluation.Enabled
}

// GetVariation evaluates the assigned variation for the context. It
// returns "" when no variation applies.
func (i *Instance) GetVariation(featureKey string, context Context) string {
	evaluation := i.EvaluateVariation(featureKey, context)
	if evaluation.VariationValue == nil {
		return ""
	}
	return *evaluation.VariationValue
}

// GetVariable resolves a variable's raw value for the context, or nil.
func (i *Instance) GetVariable(featureKey string, variableKey string, context Context) any {
	evaluation := i.EvaluateVariable(featureKey, variableKey, context)
	return evaluation.VariableValue
}

// Activate evaluates the variation and, when one resolves, emits
// EventActivation carrying the final context and a captured context
// restricted to attributes whose capture flag is set. It returns the
// variation value, or "" when none resolved.
func (i *Instance) Activate(featureKey string, context Context) string {
	evaluation := i.EvaluateVariation(featureKey, context)
	if evaluation.VariationValue == nil {
		return ""
	}

	finalContext := i.interceptedContext(context)
	captured := Context{}
	view := i.snapshot()
	for _, attribute := range view.content.Attributes {
		if !attribute.Capture {
			continue
		}
		if value, ok := finalContext[attribute.Key]; ok {
			captured[attribute.Key] = value
		}
	}

	i.metrics.ObserveActivation()
	i.emitter.Emit(string(EventActivation),
		featureKey, *evaluation.VariationValue, finalContext, captured, evaluation)
	return *evaluation.VariationValue
}

// On registers a listener and returns its subscription id for Off.
// Listeners fire synchronously on the emitting goroutine, in registration
// order.
func (i *Instance) On(event EventName, listener func(args ...any)) int {
	return i.emitter.AddListener(string(event), listener)
}

// AddListener is an alias for On.
func (i *Instance) AddListener(event EventName, listener func(args ...any)) int {
	return i.On(event, listener)
}

// Off removes the subscription with the given id.
func (i *Instance) Off(event EventName, id int) {
	i.emitter.RemoveListener(string(event), id)
}

// RemoveListener is an alias for Off.
func (i *Instance) RemoveListener(event EventName, id int) {
	i.Off(event, id)
}

// RemoveAllListeners drops every listener for the named events, or all
// listeners when none are named.
func (i *Instance) RemoveAllListeners(events ...EventName) {
	names := make([]string, len(events))
	for idx, event := range events {
		names[idx] = string(event)
	}
	i.emitter.RemoveAllListeners(names...)
}
