package pennant

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InterceptContextFunc transforms the caller context once per evaluation,
// before bucketing and traffic matching. It must be pure. Force-entry
// lookups intentionally see the original context instead.
type InterceptContextFunc func(context Context) Context

// DatafileFetchFunc replaces the built-in HTTP fetcher entirely.
type DatafileFetchFunc func(ctx context.Context, url string) (*DatafileContent, error)

// ActivationListener receives activation events registered via
// Options.OnActivation.
type ActivationListener func(featureKey string, variationValue string, finalContext Context, capturedContext Context, evaluation Evaluation)

// Options configures a new Instance. At least one of DatafileContent,
// Datafile or DatafileURL must be set.
type Options struct {
	// DatafileContent installs an already-decoded datafile inline.
	DatafileContent *DatafileContent
	// Datafile installs a datafile from raw JSON inline.
	Datafile []byte
	// DatafileURL fetches the initial datafile asynchronously; the
	// instance becomes ready once the fetch succeeds.
	DatafileURL string

	// HandleDatafileFetch overrides the built-in fetcher for DatafileURL
	// and Refresh.
	HandleDatafileFetch DatafileFetchFunc
	// HTTPClient customizes the built-in fetcher's transport, e.g. for
	// session configuration or proxies. Ignored when HandleDatafileFetch
	// is set.
	HTTPClient *http.Client

	// RefreshInterval enables periodic refresh once the first fetch
	// succeeded. Zero disables the refresher.
	RefreshInterval time.Duration

	// BucketKeySeparator joins bucket-key parts; defaults to ".".
	BucketKeySeparator string
	// ConfigureBucketKey post-processes the assembled bucket key.
	ConfigureBucketKey ConfigureBucketKeyFunc
	// ConfigureBucketValue post-processes the hashed bucket value.
	ConfigureBucketValue ConfigureBucketValueFunc
	// InterceptContext transforms the context once per evaluation.
	InterceptContext InterceptContextFunc

	// InitialFeatures short-circuit evaluation around readiness
	// transitions; StickyFeatures short-circuit it unconditionally.
	InitialFeatures FeatureOverrides
	StickyFeatures  FeatureOverrides

	// Logger defaults to a JSON stderr logger at warn level.
	Logger *slog.Logger

	// MetricsRegisterer enables Prometheus instrumentation when set.
	MetricsRegisterer prometheus.Registerer

	// Listener conveniences, registered before any event can fire.
	OnReady      func()
	OnRefresh    func()
	OnUpdate     func()
	OnActivation ActivationListener
}
