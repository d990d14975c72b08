// Package probe tests reachability of kubeconfig contexts against
// their cluster endpoints.
//
// Probes are fanned out over a bounded worker pool; each probe carries
// its own timeout so a single hung cluster cannot stall a batch.
// Outcomes are classified results, not errors: the operator acts on
// them.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"

	"ktx/pkg/logging"
)

// Status classifies the outcome of a single context probe.
type Status int

const (
	StatusUnknown Status = iota
	StatusReachable
	StatusUnreachable
	StatusAuthFailed
)

// String makes Status satisfy fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusReachable:
		return "reachable"
	case StatusUnreachable:
		return "unreachable"
	case StatusAuthFailed:
		return "auth-failed"
	default:
		return "unknown"
	}
}

// Record is the result of probing one context. Records are ephemeral;
// they are never persisted to the kubeconfig.
type Record struct {
	Context   string
	Status    Status
	Version   string // apiserver version, set when reachable
	Err       error
	CheckedAt time.Time
}

// Options tunes a probe batch.
type Options struct {
	// Timeout bounds each individual probe. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Concurrency bounds how many probes run in parallel. Defaults to
	// DefaultConcurrency.
	Concurrency int
}

const (
	DefaultTimeout     = 5 * time.Second
	DefaultConcurrency = 8
)

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// NewClientsetFromConfig creates a clientset from a rest.Config.
// Package-level variable to allow overriding in tests.
var NewClientsetFromConfig = func(c *rest.Config) (kubernetes.Interface, error) {
	return kubernetes.NewForConfig(c)
}

// Prober runs reachability probes against cluster endpoints.
type Prober struct{}

// NewProber creates a Prober.
func NewProber() *Prober {
	return &Prober{}
}

// Probe probes the named contexts of doc and streams one Record per
// name on the returned channel. The channel is closed once the batch
// drains. Cancelling ctx stops issuing new probes and abandons
// in-flight ones; the channel is buffered for the full batch, so
// abandoned workers never block on a reader that went away.
func (p *Prober) Probe(ctx context.Context, doc *api.Config, names []string, opts Options) <-chan Record {
	opts = opts.withDefaults()
	results := make(chan Record, len(names))
	snapshot := doc.DeepCopy()

	pool := pond.New(opts.Concurrency, len(names))
	go func() {
		defer close(results)
		for _, name := range names {
			if ctx.Err() != nil {
				break
			}
			name := name
			pool.Submit(func() {
				if ctx.Err() != nil {
					return
				}
				record := p.probeOne(ctx, snapshot, name, opts.Timeout)
				if ctx.Err() != nil {
					// Abandoned mid-flight; the partial result is
					// discarded, completed ones stay delivered.
					return
				}
				results <- record
			})
		}
		pool.StopAndWait()
	}()
	return results
}

// probeOne resolves a context to a rest config and calls the apiserver
// version endpoint. A context whose cluster/user references fail to
// resolve reports unreachable rather than failing the batch.
func (p *Prober) probeOne(ctx context.Context, doc *api.Config, name string, timeout time.Duration) Record {
	record := Record{Context: name, CheckedAt: time.Now()}

	clientConfig := clientcmd.NewNonInteractiveClientConfig(*doc, name, &clientcmd.ConfigOverrides{}, nil)
	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		record.Status = StatusUnreachable
		record.Err = fmt.Errorf("failed to resolve context %q: %w", name, err)
		return record
	}
	restConfig.Timeout = timeout

	clientset, err := NewClientsetFromConfig(restConfig)
	if err != nil {
		record.Status = StatusUnreachable
		record.Err = fmt.Errorf("failed to build client for context %q: %w", name, err)
		return record
	}

	// Same request ServerVersion issues, but with the batch context
	// threaded through so cancellation aborts in-flight probes.
	body, err := clientset.Discovery().RESTClient().Get().AbsPath("/version").Do(ctx).Raw()
	switch {
	case err == nil:
		var info version.Info
		if unmarshalErr := json.Unmarshal(body, &info); unmarshalErr != nil {
			record.Status = StatusUnreachable
			record.Err = fmt.Errorf("unexpected version response from %s: %w", restConfig.Host, unmarshalErr)
			break
		}
		record.Status = StatusReachable
		record.Version = fmt.Sprintf("%s.%s", info.Major, info.Minor)
	case apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err):
		record.Status = StatusAuthFailed
		record.Err = err
	default:
		record.Status = StatusUnreachable
		record.Err = err
	}
	logging.Debug("probe", "context %s: %s", name, record.Status)
	return record
}

// Sweep returns the contexts that are conclusively stale after a
// completed probe pass: unreachable ones, sorted by name. Auth failures
// are excluded; a rejected credential does not mean the cluster is
// gone, so removing those needs explicit operator confirmation.
func Sweep(records map[string]Record) []string {
	var stale []string
	for name, record := range records {
		if record.Status == StatusUnreachable {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	return stale
}
