// Package merge folds discovered clusters into a kubeconfig document,
// resolving name collisions deterministically. Importing the same
// cluster twice is a no-op; an existing entry that differs is never
// overwritten, the import gets a suffixed name instead.
package merge

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"k8s.io/client-go/tools/clientcmd/api"

	"ktx/internal/cloud"
	"ktx/pkg/logging"
)

// Outcome says what happened to one discovered cluster during a merge.
type Outcome string

const (
	OutcomeAdded  Outcome = "added"
	OutcomeReused Outcome = "reused"
)

// Imported records the final names chosen for one discovered cluster.
type Imported struct {
	Cluster cloud.DiscoveredCluster
	// ContextName is the context entry the cluster ended up under.
	ContextName string
	ClusterName string
	UserName    string
	Outcome     Outcome
}

// Result maps every discovered cluster to its final names so the
// caller can report what was added vs reused.
type Result struct {
	Imported []Imported
}

// Added returns how many contexts the merge actually created.
func (r Result) Added() int {
	count := 0
	for _, imported := range r.Imported {
		if imported.Outcome == OutcomeAdded {
			count++
		}
	}
	return count
}

// AuthBuilder constructs the kubeconfig user for a discovered cluster.
// Satisfied by cloud.Discoverer.
type AuthBuilder interface {
	BuildAuth(ctx context.Context, dc *cloud.DiscoveredCluster) (*api.AuthInfo, error)
}

// Merge folds discovered clusters into doc in place. Auth for each
// cluster comes from the matching provider's builder. A cluster whose
// auth cannot be built is skipped with an error recorded against the
// whole merge; already-merged clusters stay merged.
func Merge(ctx context.Context, doc *api.Config, discovered []cloud.DiscoveredCluster, builders map[cloud.Provider]AuthBuilder) (Result, error) {
	var result Result
	var errs []string

	for _, dc := range discovered {
		builder, ok := builders[dc.Provider]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s/%s: no auth builder for provider", dc.Provider, dc.Name))
			continue
		}

		authInfo, err := builder.BuildAuth(ctx, &dc)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s/%s: %v", dc.Provider, dc.Name, err))
			continue
		}

		imported := mergeOne(doc, dc, authInfo)
		result.Imported = append(result.Imported, imported)
		logging.Info("merge", "%s cluster %s -> context %s (%s)",
			dc.Provider, dc.Name, imported.ContextName, imported.Outcome)
	}

	if len(errs) > 0 {
		return result, fmt.Errorf("failed to import %d cluster(s): %s", len(errs), strings.Join(errs, "; "))
	}
	return result, nil
}

func mergeOne(doc *api.Config, dc cloud.DiscoveredCluster, authInfo *api.AuthInfo) Imported {
	base := baseName(dc)

	cluster := &api.Cluster{
		Server:                   dc.Server,
		CertificateAuthorityData: dc.CertificateAuthorityData,
	}

	clusterName, clusterReused := placeCluster(doc, base, cluster)
	userName, userReused := placeUser(doc, base, authInfo)

	context := &api.Context{Cluster: clusterName, AuthInfo: userName}
	contextName, contextReused := placeContext(doc, base, context)

	outcome := OutcomeAdded
	if clusterReused && userReused && contextReused {
		outcome = OutcomeReused
	}
	return Imported{
		Cluster:     dc,
		ContextName: contextName,
		ClusterName: clusterName,
		UserName:    userName,
		Outcome:     outcome,
	}
}

// place walks the deterministic candidate sequence base, base-2,
// base-3, ... until it finds either a free name (claim it) or an
// equivalent existing entry (reuse it). Differing entries are stepped
// over, never overwritten.
func place(base string, probe func(name string) (exists, equivalent bool), claim func(name string)) (string, bool) {
	name := base
	for i := 2; ; i++ {
		exists, equivalent := probe(name)
		if !exists {
			claim(name)
			return name, false
		}
		if equivalent {
			return name, true
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
}

// placeCluster returns the name the cluster entry ends up under and
// whether an equivalent existing entry was reused.
func placeCluster(doc *api.Config, base string, cluster *api.Cluster) (string, bool) {
	return place(base,
		func(name string) (bool, bool) {
			existing, ok := doc.Clusters[name]
			return ok, ok && clustersEquivalent(existing, cluster)
		},
		func(name string) { doc.Clusters[name] = cluster })
}

func placeUser(doc *api.Config, base string, authInfo *api.AuthInfo) (string, bool) {
	return place(base,
		func(name string) (bool, bool) {
			existing, ok := doc.AuthInfos[name]
			return ok, ok && usersEquivalent(existing, authInfo)
		},
		func(name string) { doc.AuthInfos[name] = authInfo })
}

func placeContext(doc *api.Config, base string, context *api.Context) (string, bool) {
	return place(base,
		func(name string) (bool, bool) {
			existing, ok := doc.Contexts[name]
			equivalent := ok && existing.Cluster == context.Cluster &&
				existing.AuthInfo == context.AuthInfo &&
				existing.Namespace == context.Namespace
			return ok, equivalent
		},
		func(name string) { doc.Contexts[name] = context })
}

var invalidNameChars = regexp.MustCompile(`[^a-z0-9.-]+`)

// baseName derives the candidate entry name for a discovered cluster:
// "<provider>-<account>-<cluster>", lower-cased and sanitized.
func baseName(dc cloud.DiscoveredCluster) string {
	name := fmt.Sprintf("%s-%s-%s", dc.Provider, dc.Account, dc.Name)
	name = strings.ToLower(name)
	name = invalidNameChars.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}

func clustersEquivalent(a, b *api.Cluster) bool {
	return a.Server == b.Server &&
		bytes.Equal(a.CertificateAuthorityData, b.CertificateAuthorityData) &&
		a.InsecureSkipTLSVerify == b.InsecureSkipTLSVerify
}

// usersEquivalent compares the authentication method, ignoring
// volatile fields like cached tokens other tools may have written.
func usersEquivalent(a, b *api.AuthInfo) bool {
	if !bytes.Equal(a.ClientCertificateData, b.ClientCertificateData) ||
		!bytes.Equal(a.ClientKeyData, b.ClientKeyData) {
		return false
	}
	if a.Token != b.Token || a.Username != b.Username {
		return false
	}
	return reflect.DeepEqual(a.Exec, b.Exec)
}
