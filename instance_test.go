package pennant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pennant-io/pennant-go/internal/logging"
)

func TestCreateInstanceRequiresDatafileSource(t *testing.T) {
	_, err := CreateInstance(Options{Logger: logging.Discard()})
	if !errors.Is(err, ErrMissingDatafileOptions) {
		t.Fatalf("CreateInstance() error = %v, want ErrMissingDatafileOptions", err)
	}
}

func TestCreateInstanceInlineJSON(t *testing.T) {
	instance, err := CreateInstance(Options{
		Datafile: []byte(sampleDatafileJSON),
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	if !instance.IsReady() {
		t.Fatal("instance not ready after inline datafile")
	}
	if got := instance.GetRevision(); got != "r1" {
		t.Fatalf("GetRevision() = %q, want r1", got)
	}
}

func TestCreateInstanceMalformedInlineJSON(t *testing.T) {
	_, err := CreateInstance(Options{
		Datafile: []byte(`{"revision": `),
		Logger:   logging.Discard(),
	})
	if !errors.Is(err, ErrDatafileParse) {
		t.Fatalf("CreateInstance() error = %v, want ErrDatafileParse", err)
	}
}

func TestReadyEventFiresOnce(t *testing.T) {
	readyCalls := 0
	instance, err := CreateInstance(Options{
		DatafileContent: pipelineDatafile(),
		Logger:          logging.Discard(),
		OnReady:         func() { readyCalls++ },
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	// Listener registration precedes the inline install, so the
	// construction-time ready event is observed.
	if readyCalls != 1 {
		t.Fatalf("ready fired %d times after construction, want 1", readyCalls)
	}

	// Further installs must not re-fire ready.
	instance.SetDatafileContent(pipelineDatafile())
	if readyCalls != 1 {
		t.Fatalf("ready fired %d times after reinstall, want 1", readyCalls)
	}
}

func TestAsyncConstructionViaFetchHandler(t *testing.T) {
	content := pipelineDatafile()
	ready := make(chan struct{})

	instance, err := CreateInstance(Options{
		DatafileURL: "https://cdn.example.com/datafile.json",
		Logger:      logging.Discard(),
		HandleDatafileFetch: func(ctx context.Context, url string) (*DatafileContent, error) {
			if url != "https://cdn.example.com/datafile.json" {
				t.Errorf("fetch url = %q", url)
			}
			return content, nil
		},
		OnReady: func() { close(ready) },
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("instance never became ready")
	}
	if got := instance.GetRevision(); got != "r1" {
		t.Fatalf("GetRevision() = %q, want r1", got)
	}
}

func TestAsyncConstructionFetchFailureStaysNotReady(t *testing.T) {
	instance, err := CreateInstance(Options{
		DatafileURL: "https://cdn.example.com/datafile.json",
		Logger:      logging.Discard(),
		HandleDatafileFetch: func(ctx context.Context, url string) (*DatafileContent, error) {
			return nil, errors.New("boom")
		},
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	// The failed fetch is asynchronous; give it a moment to settle.
	time.Sleep(50 * time.Millisecond)
	if instance.IsReady() {
		t.Fatal("instance ready despite failed initial fetch")
	}
	if got := instance.GetRevision(); got != "unknown" {
		t.Fatalf("GetRevision() = %q, want unknown (empty datafile)", got)
	}
}

func TestSetDatafileKeepsPreviousOnParseError(t *testing.T) {
	instance, err := CreateInstance(Options{
		DatafileContent: pipelineDatafile(),
		Logger:          logging.Discard(),
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	if err := instance.SetDatafile([]byte(`not json`)); !errors.Is(err, ErrDatafileParse) {
		t.Fatalf("SetDatafile() error = %v, want ErrDatafileParse", err)
	}
	if got := instance.GetRevision(); got != "r1" {
		t.Fatalf("GetRevision() = %q after failed install, want r1", got)
	}
}

func TestRefreshEmitsUpdateOnlyOnRevisionChange(t *testing.T) {
	revisions := []string{"r1", "r2"}
	fetchCount := 0

	var refreshes, updates int
	instance, err := CreateInstance(Options{
		DatafileContent: pipelineDatafile(), // installs r1
		DatafileURL:     "https://cdn.example.com/datafile.json",
		Logger:          logging.Discard(),
		HandleDatafileFetch: func(ctx context.Context, url string) (*DatafileContent, error) {
			content := pipelineDatafile()
			content.Revision = revisions[fetchCount]
			fetchCount++
			return content, nil
		},
		OnRefresh: func() { refreshes++ },
		OnUpdate:  func() { updates++ },
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	// First refresh returns the same revision: refresh only.
	instance.Refresh()
	if refreshes != 1 || updates != 0 {
		t.Fatalf("after same-revision refresh: refreshes=%d updates=%d, want 1/0", refreshes, updates)
	}

	// Second refresh returns a new revision: refresh and update.
	instance.Refresh()
	if refreshes != 2 || updates != 1 {
		t.Fatalf("after new-revision refresh: refreshes=%d updates=%d, want 2/1", refreshes, updates)
	}
	if got := instance.GetRevision(); got != "r2" {
		t.Fatalf("GetRevision() = %q, want r2", got)
	}
}

func TestRefreshWithoutURLWarnsAndSkips(t *testing.T) {
	fetchCalled := false
	instance, err := CreateInstance(Options{
		DatafileContent: pipelineDatafile(),
		Logger:          logging.Discard(),
		HandleDatafileFetch: func(ctx context.Context, url string) (*DatafileContent, error) {
			fetchCalled = true
			return pipelineDatafile(), nil
		},
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	instance.Refresh()
	if fetchCalled {
		t.Fatal("refresh without a datafile url still fetched")
	}
}

func TestReentrantRefreshIsSkipped(t *testing.T) {
	fetchCount := 0

	instance, err := CreateInstance(Options{
		DatafileContent: pipelineDatafile(),
		DatafileURL:     "https://cdn.example.com/datafile.json",
		Logger:          logging.Discard(),
		HandleDatafileFetch: func(ctx context.Context, url string) (*DatafileContent, error) {
			fetchCount++
			return pipelineDatafile(), nil
		},
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	// A listener calling Refresh synchronously must be detected by the
	// in-progress flag and skipped, not recurse.
	instance.On(EventRefresh, func(...any) {
		instance.Refresh()
	})

	instance.Refresh()
	if fetchCount != 1 {
		t.Fatalf("fetch count = %d, want 1 (reentrant refresh must be skipped)", fetchCount)
	}
}

func TestStartRefreshingTwiceIsNoOp(t *testing.T) {
	instance, err := CreateInstance(Options{
		DatafileContent: pipelineDatafile(),
		DatafileURL:     "https://cdn.example.com/datafile.json",
		RefreshInterval: time.Hour,
		Logger:          logging.Discard(),
		HandleDatafileFetch: func(ctx context.Context, url string) (*DatafileContent, error) {
			return pipelineDatafile(), nil
		},
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	instance.StartRefreshing()
	instance.StartRefreshing() // must warn and do nothing
	instance.StopRefreshing()
	instance.StopRefreshing() // stopping twice is fine too

	// After a stop, a fresh start must be possible again.
	instance.StartRefreshing()
	instance.StopRefreshing()
}

func TestPeriodicRefreshTicks(t *testing.T) {
	refreshed := make(chan struct{}, 4)
	fetches := 0

	instance, err := CreateInstance(Options{
		DatafileContent: pipelineDatafile(),
		DatafileURL:     "https://cdn.example.com/datafile.json",
		RefreshInterval: 10 * time.Millisecond,
		Logger:          logging.Discard(),
		HandleDatafileFetch: func(ctx context.Context, url string) (*DatafileContent, error) {
			fetches++
			return pipelineDatafile(), nil
		},
		OnRefresh: func() {
			select {
			case refreshed <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}

	instance.StartRefreshing()
	defer instance.StopRefreshing()

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic refresh never fired")
	}
}

func TestSetStickyFeaturesReplacesWholesale(t *testing.T) {
	instance := pinnedInstance(t, pipelineDatafile(), 10000, nil)
	context := Context{"userId": "user-1"}

	instance.SetStickyFeatures(FeatureOverrides{
		"foo": {Enabled: boolRef(false)},
	})
	if instance.IsEnabled("foo", context) {
		t.Fatal("sticky disabled override not applied")
	}

	instance.SetStickyFeatures(nil)
	if !instance.IsEnabled("foo", context) {
		t.Fatal("sticky table not cleared")
	}
}

func TestActivate(t *testing.T) {
	type activation struct {
		featureKey     string
		variationValue string
		finalContext   Context
		captured       Context
		evaluation     Evaluation
	}
	var got *activation

	instance := pinnedInstance(t, pipelineDatafile(), 75000, func(options *Options) {
		options.OnActivation = func(featureKey, variationValue string, finalContext, captured Context, evaluation Evaluation) {
			got = &activation{featureKey, variationValue, finalContext, captured, evaluation}
		}
	})

	context := Context{"userId": "user-1", "country": "nl"}
	value := instance.Activate("foo", context)
	if value != "treatment" {
		t.Fatalf("Activate() = %q, want treatment", value)
	}
	if got == nil {
		t.Fatal("activation event not emitted")
	}
	if got.featureKey != "foo" || got.variationValue != "treatment" {
		t.Fatalf("activation = %q/%q, want foo/treatment", got.featureKey, got.variationValue)
	}

	// Only attributes with the capture flag make it into the captured
	// context; "country" does not carry it in the fixture.
	if _, ok := got.captured["userId"]; !ok {
		t.Fatal("captured context missing userId")
	}
	if _, ok := got.captured["country"]; ok {
		t.Fatal("captured context leaked non-capture attribute country")
	}
	if got.evaluation.Reason != ReasonAllocated {
		t.Fatalf("activation evaluation reason = %s, want allocated", got.evaluation.Reason)
	}
}

func TestActivateWithoutVariation(t *testing.T) {
	fired := false
	content := pipelineDatafile()
	content.Features[1].Required = nil // bar: no variations at all

	instance := pinnedInstance(t, content, 10000, func(options *Options) {
		options.OnActivation = func(string, string, Context, Context, Evaluation) { fired = true }
	})

	if got := instance.Activate("bar", Context{"userId": "user-1"}); got != "" {
		t.Fatalf("Activate() = %q, want empty", got)
	}
	if fired {
		t.Fatal("activation emitted without a resolved variation")
	}
}

func TestListenerRegistrationAndRemoval(t *testing.T) {
	instance := pinnedInstance(t, pipelineDatafile(), 75000, nil)

	calls := 0
	id := instance.On(EventActivation, func(...any) { calls++ })
	instance.Activate("foo", Context{"userId": "user-1"})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	instance.Off(EventActivation, id)
	instance.Activate("foo", Context{"userId": "user-1"})
	if calls != 1 {
		t.Fatalf("calls = %d after Off, want 1", calls)
	}

	instance.AddListener(EventActivation, func(...any) { calls++ })
	instance.RemoveAllListeners(EventActivation)
	instance.Activate("foo", Context{"userId": "user-1"})
	if calls != 1 {
		t.Fatalf("calls = %d after RemoveAllListeners, want 1", calls)
	}
}

func TestGetFeatureAndVariableKeys(t *testing.T) {
	instance := pinnedInstance(t, pipelineDatafile(), 10000, nil)

	if instance.GetFeature("missing") != nil {
		t.Fatal("GetFeature returned a missing feature")
	}
	feature := instance.GetFeature("foo")
	if feature == nil || feature.Key != "foo" {
		t.Fatalf("GetFeature(foo) = %+v", feature)
	}

	keys := instance.GetVariableKeys("foo")
	if len(keys) != 1 || keys[0] != "color" {
		t.Fatalf("GetVariableKeys = %v, want [color]", keys)
	}
	if instance.GetVariableKeys("missing") != nil {
		t.Fatal("GetVariableKeys for missing feature should be nil")
	}
}

func TestConcurrentEvaluationAndSwap(t *testing.T) {
	instance := pinnedInstance(t, pipelineDatafile(), 75000, nil)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			content := pipelineDatafile()
			if i%2 == 0 {
				content.Revision = "r2"
			}
			instance.SetDatafileContent(content)
		}
	}()

	context := Context{"userId": "user-1"}
	for i := 0; i < 500; i++ {
		evaluation := instance.EvaluateVariation("foo", context)
		if evaluation.Reason != ReasonAllocated {
			t.Fatalf("Reason = %s during swaps, want allocated", evaluation.Reason)
		}
	}
	<-done
}
