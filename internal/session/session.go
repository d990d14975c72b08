// Package session orchestrates the tool: it owns the in-memory
// kubeconfig document, drives probing, discovery and persistence, and
// exposes a state machine the UI collaborator renders.
//
// The document on disk is the one shared resource. Saves are
// serialized through the Persisting state, and a failed save rolls the
// in-memory document back to the last successfully saved snapshot so
// the UI never presents phantom state as committed.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"k8s.io/client-go/tools/clientcmd/api"

	"ktx/internal/cloud"
	"ktx/internal/config"
	"ktx/internal/index"
	"ktx/internal/kubeconfig"
	"ktx/internal/merge"
	"ktx/internal/probe"
	"ktx/pkg/logging"
)

const eventBufferSize = 256

type pendingAction struct {
	deleteNames []string
	imports     []cloud.DiscoveredCluster
}

// Session is the orchestrator. All methods are safe for concurrent
// use; background work (probing, discovery) reports back through the
// event channel.
type Session struct {
	mu sync.Mutex

	store *kubeconfig.Store
	path  string
	cfg   config.Config

	doc       *api.Config
	lastSaved *api.Config

	idx          *index.Index
	health       map[string]probe.Record
	passComplete bool

	state   State
	query   string
	pending pendingAction

	events      chan Event
	prober      *probe.Prober
	probeOpts   probe.Options
	probeCancel context.CancelFunc
	discoverers map[cloud.Provider]cloud.Discoverer
}

// New loads the kubeconfig at path and returns a session in Browsing
// state with a freshly built index.
func New(store *kubeconfig.Store, path string, cfg config.Config) (*Session, error) {
	doc, err := store.Load(path)
	if err != nil {
		return nil, err
	}

	session := &Session{
		store:  store,
		path:   path,
		cfg:    cfg,
		doc:    doc,
		idx:    index.New(),
		health: make(map[string]probe.Record),
		state:  StateBrowsing,
		events: make(chan Event, eventBufferSize),
		prober: probe.NewProber(),
		probeOpts: probe.Options{
			Timeout:     time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
			Concurrency: cfg.Probe.Concurrency,
		},
		discoverers: discoverersFor(cfg),
	}
	session.lastSaved = doc.DeepCopy()
	session.idx.Build(session.doc, session.health)
	return session, nil
}

func discoverersFor(cfg config.Config) map[cloud.Provider]cloud.Discoverer {
	enabled := func(p cloud.Provider) bool {
		if len(cfg.Discovery.Providers) == 0 {
			return true
		}
		return slices.Contains(cfg.Discovery.Providers, string(p))
	}
	discoverers := make(map[cloud.Provider]cloud.Discoverer)
	for _, d := range cloud.Discoverers() {
		if enabled(d.Provider()) {
			discoverers[d.Provider()] = d
		}
	}
	return discoverers
}

// Events returns the channel the UI collaborator consumes. Events are
// dropped, not blocked on, when the consumer falls behind.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		logging.Warn("session", "event buffer full, dropping %s", event.Type)
	}
}

// setStateLocked transitions the state machine and notifies the UI.
// Callers hold the mutex.
func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	logging.Debug("session", "state %s -> %s", s.state, state)
	s.state = state
	s.emit(Event{Type: EventStateChanged, State: state})
}

// returnStateLocked is where the machine lands after a background
// operation finishes: Searching when a filter is active, else Browsing.
func (s *Session) returnStateLocked() State {
	if s.query != "" {
		return StateSearching
	}
	return StateBrowsing
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Path returns the kubeconfig path this session manages.
func (s *Session) Path() string {
	return s.path
}

// Entries returns the index entries the UI should display: the full
// index, filtered and ranked by the active search query if any.
func (s *Session) Entries() []index.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.Search(s.query)
}

// CurrentContext returns the document's current-context name.
func (s *Session) CurrentContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.CurrentContext
}

// Search activates or updates the fuzzy filter.
func (s *Session) Search(query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBrowsing && s.state != StateSearching {
		return fmt.Errorf("cannot search while %s", s.state)
	}
	s.query = query
	s.setStateLocked(s.returnStateLocked())
	s.emit(Event{Type: EventIndexUpdated})
	return nil
}

// ClearSearch drops the filter and returns to Browsing.
func (s *Session) ClearSearch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = ""
	if s.state == StateSearching {
		s.setStateLocked(StateBrowsing)
	}
	s.emit(Event{Type: EventIndexUpdated})
}

// Query returns the active search query.
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// ProbeAll probes every context in the document.
func (s *Session) ProbeAll(ctx context.Context) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.doc.Contexts))
	for name := range s.doc.Contexts {
		names = append(names, name)
	}
	s.mu.Unlock()
	slices.Sort(names)
	return s.Probe(ctx, names)
}

// Probe starts a health probe pass over the named contexts. Results
// stream in as EventProbeRecord events; the pass ends with a state
// change back to Browsing/Searching. Health from a previous pass is
// discarded so sweep decisions only ever see one coherent pass.
func (s *Session) Probe(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBrowsing && s.state != StateSearching {
		return fmt.Errorf("cannot probe while %s", s.state)
	}
	if len(names) == 0 {
		return fmt.Errorf("nothing to probe")
	}
	for _, name := range names {
		if _, ok := s.doc.Contexts[name]; !ok {
			return fmt.Errorf("unknown context %q", name)
		}
	}

	probeCtx, cancel := context.WithCancel(ctx)
	s.probeCancel = cancel
	s.passComplete = false
	s.health = make(map[string]probe.Record)
	s.idx.Build(s.doc, s.health)
	s.setStateLocked(StateProbing)

	records := s.prober.Probe(probeCtx, s.doc, names, s.probeOpts)
	go s.consumeProbe(probeCtx, records, len(names))
	return nil
}

func (s *Session) consumeProbe(ctx context.Context, records <-chan probe.Record, submitted int) {
	received := 0
	for record := range records {
		s.mu.Lock()
		s.health[record.Context] = record
		s.idx.Build(s.doc, s.health)
		s.mu.Unlock()
		received++
		s.emit(Event{Type: EventProbeRecord, Record: record})
		s.emit(Event{Type: EventIndexUpdated})
	}

	// Read the batch context before releasing it below; afterwards it
	// always reports cancelled.
	cancelled := ctx.Err() != nil

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probeCancel != nil {
		s.probeCancel()
		s.probeCancel = nil
	}
	s.passComplete = received == submitted && !cancelled
	logging.Info("session", "probe pass finished: %d/%d results, complete=%t",
		received, submitted, s.passComplete)
	s.setStateLocked(s.returnStateLocked())
}

// CancelProbe aborts an in-flight probe pass. Completed records stay;
// the pass counts as incomplete, so it cannot feed a sweep.
func (s *Session) CancelProbe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probeCancel != nil {
		s.probeCancel()
	}
}

// Health returns a copy of the health records of the current pass.
func (s *Session) Health() map[string]probe.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	health := make(map[string]probe.Record, len(s.health))
	for name, record := range s.health {
		health[name] = record
	}
	return health
}

// SweepCandidates returns the contexts a sweep would remove. Only a
// completed probe pass yields candidates; partial results never do.
func (s *Session) SweepCandidates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.passComplete {
		return nil
	}
	return probe.Sweep(s.health)
}

// RequestDelete stages the named contexts for removal and moves to
// ConfirmingDeletion. Nothing touches the document until Confirm.
func (s *Session) RequestDelete(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBrowsing && s.state != StateSearching {
		return fmt.Errorf("cannot delete while %s", s.state)
	}
	if len(names) == 0 {
		return fmt.Errorf("nothing to delete")
	}
	for _, name := range names {
		if _, ok := s.doc.Contexts[name]; !ok {
			return fmt.Errorf("unknown context %q", name)
		}
	}
	s.pending = pendingAction{deleteNames: slices.Clone(names)}
	s.setStateLocked(StateConfirmingDeletion)
	return nil
}

// RequestImport stages discovered clusters for import and moves to
// ConfirmingImport.
func (s *Session) RequestImport(clusters []cloud.DiscoveredCluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBrowsing && s.state != StateSearching {
		return fmt.Errorf("cannot import while %s", s.state)
	}
	if len(clusters) == 0 {
		return fmt.Errorf("nothing to import")
	}
	s.pending = pendingAction{imports: slices.Clone(clusters)}
	s.setStateLocked(StateConfirmingImport)
	return nil
}

// PendingDelete returns the staged deletion batch.
func (s *Session) PendingDelete() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pending.deleteNames)
}

// PendingImport returns the staged import batch.
func (s *Session) PendingImport() []cloud.DiscoveredCluster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.pending.imports)
}

// Cancel abandons a staged deletion or import.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConfirmingDeletion && s.state != StateConfirmingImport {
		return
	}
	s.pending = pendingAction{}
	s.setStateLocked(s.returnStateLocked())
}

// Confirm executes the staged action and persists the result. On a
// failed save the document rolls back to the last saved snapshot.
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConfirmingDeletion:
		names := s.pending.deleteNames
		s.pending = pendingAction{}
		s.applyDeleteLocked(names)
		return s.persistLocked()

	case StateConfirmingImport:
		clusters := s.pending.imports
		s.pending = pendingAction{}
		return s.applyImportLocked(ctx, clusters)

	default:
		return fmt.Errorf("nothing to confirm while %s", s.state)
	}
}

// applyDeleteLocked removes the named contexts, clears current-context
// if it was among them, and prunes clusters/users those contexts
// referenced once nothing else references them. Entries belonging to
// surviving contexts are never touched.
func (s *Session) applyDeleteLocked(names []string) {
	orphanClusters := make(map[string]bool)
	orphanUsers := make(map[string]bool)

	for _, name := range names {
		context, ok := s.doc.Contexts[name]
		if !ok {
			continue
		}
		orphanClusters[context.Cluster] = true
		orphanUsers[context.AuthInfo] = true
		delete(s.doc.Contexts, name)
		if s.doc.CurrentContext == name {
			s.doc.CurrentContext = ""
		}
		delete(s.health, name)
		logging.Info("session", "deleting context %s", name)
	}

	for _, context := range s.doc.Contexts {
		delete(orphanClusters, context.Cluster)
		delete(orphanUsers, context.AuthInfo)
	}
	for cluster := range orphanClusters {
		delete(s.doc.Clusters, cluster)
	}
	for user := range orphanUsers {
		delete(s.doc.AuthInfos, user)
	}
}

func (s *Session) applyImportLocked(ctx context.Context, clusters []cloud.DiscoveredCluster) error {
	builders := make(map[cloud.Provider]merge.AuthBuilder, len(s.discoverers))
	for provider, discoverer := range s.discoverers {
		builders[provider] = discoverer
	}

	result, mergeErr := merge.Merge(ctx, s.doc, clusters, builders)
	if mergeErr != nil && len(result.Imported) == 0 {
		// Nothing landed; no reason to touch the file.
		s.setStateLocked(s.returnStateLocked())
		s.emit(Event{Type: EventError, Err: mergeErr})
		return mergeErr
	}

	if err := s.persistLocked(); err != nil {
		return err
	}
	if mergeErr != nil {
		// The clusters that did import are saved; report the rest.
		s.emit(Event{Type: EventError, Err: mergeErr})
		return mergeErr
	}
	return nil
}

// SwitchCurrent makes name the current context and persists.
func (s *Session) SwitchCurrent(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBrowsing && s.state != StateSearching {
		return fmt.Errorf("cannot switch context while %s", s.state)
	}
	if _, ok := s.doc.Contexts[name]; !ok {
		return fmt.Errorf("unknown context %q", name)
	}
	s.doc.CurrentContext = name
	return s.persistLocked()
}

// persistLocked is the single save path: Persisting state, write
// through the store, roll back on failure. Callers hold the mutex, so
// saves are naturally serialized.
func (s *Session) persistLocked() error {
	s.setStateLocked(StatePersisting)

	if err := s.store.Save(s.doc, s.path); err != nil {
		logging.Error("session", err, "save failed, rolling back")
		s.doc = s.lastSaved.DeepCopy()
		s.idx.Build(s.doc, s.health)
		s.setStateLocked(s.returnStateLocked())
		s.emit(Event{Type: EventError, Err: err})
		s.emit(Event{Type: EventIndexUpdated})
		return err
	}

	s.lastSaved = s.doc.DeepCopy()
	s.idx.Build(s.doc, s.health)
	s.setStateLocked(s.returnStateLocked())
	s.emit(Event{Type: EventSaved})
	s.emit(Event{Type: EventIndexUpdated})
	return nil
}

// Reload re-reads the document from disk, discarding in-memory changes
// and probe results.
func (s *Session) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBrowsing && s.state != StateSearching {
		return fmt.Errorf("cannot reload while %s", s.state)
	}

	doc, err := s.store.Load(s.path)
	if err != nil {
		s.emit(Event{Type: EventError, Err: err})
		return err
	}
	s.doc = doc
	s.lastSaved = doc.DeepCopy()
	s.health = make(map[string]probe.Record)
	s.passComplete = false
	s.idx.Build(s.doc, s.health)
	s.emit(Event{Type: EventIndexUpdated})
	return nil
}

// Providers returns the discoverers this session may use, in a stable
// order.
func (s *Session) Providers() []cloud.Provider {
	providers := make([]cloud.Provider, 0, len(s.discoverers))
	for provider := range s.discoverers {
		providers = append(providers, provider)
	}
	slices.Sort(providers)
	return providers
}

// ConfiguredProviders returns the enabled providers whose ambient
// credentials look usable. This shells out to the provider CLIs, so
// call it off the UI loop.
func (s *Session) ConfiguredProviders(ctx context.Context) []cloud.Provider {
	var configured []cloud.Provider
	for _, provider := range s.Providers() {
		if s.discoverers[provider].Configured(ctx) {
			configured = append(configured, provider)
		}
	}
	return configured
}

// Levels returns the drilldown level names of a provider, or nil for
// an unknown one.
func (s *Session) Levels(provider cloud.Provider) []string {
	discoverer, ok := s.discoverers[provider]
	if !ok {
		return nil
	}
	return discoverer.Levels()
}

// Discover lists the next drilldown level for a provider: account-like
// options while path is shorter than the provider's level count,
// clusters at the leaf. Results arrive as events; the state returns to
// Browsing/Searching once they do.
func (s *Session) Discover(ctx context.Context, provider cloud.Provider, path []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBrowsing && s.state != StateSearching {
		return fmt.Errorf("cannot discover while %s", s.state)
	}
	discoverer, ok := s.discoverers[provider]
	if !ok {
		return fmt.Errorf("unknown or disabled provider %q", provider)
	}

	path = slices.Clone(path)
	s.setStateLocked(StateDiscovering)

	go func() {
		if len(path) < len(discoverer.Levels()) {
			options, err := discoverer.ListOptions(ctx, path)
			s.finishDiscovery(Event{
				Type:     EventDiscoveryOptions,
				Provider: provider,
				Path:     path,
				Options:  options,
			}, err)
			return
		}
		clusters, err := discoverer.ListClusters(ctx, path)
		s.finishDiscovery(Event{
			Type:     EventDiscoveryClusters,
			Provider: provider,
			Path:     path,
			Clusters: clusters,
		}, err)
	}()
	return nil
}

func (s *Session) finishDiscovery(event Event, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		logging.Warn("session", "discovery failed: %v", err)
		s.emit(Event{Type: EventError, Err: err})
	} else {
		s.emit(event)
	}
	s.setStateLocked(s.returnStateLocked())
}
