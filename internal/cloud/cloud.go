// Package cloud discovers managed Kubernetes clusters on GKE, EKS and
// AKS and produces normalized cluster + auth descriptors for import
// into the kubeconfig.
//
// Discovery is read-only against the providers and relies on whatever
// ambient credentials (gcloud/aws/az login, Azure SDK credential chain)
// are already present in the environment; ktx never manages provider
// credentials itself.
package cloud

import (
	"context"

	"k8s.io/client-go/tools/clientcmd/api"
)

// Provider identifies a managed-cluster provider.
type Provider string

const (
	ProviderGKE Provider = "gke"
	ProviderEKS Provider = "eks"
	ProviderAKS Provider = "aks"
)

// DiscoveredCluster is the normalized output of discovery: enough to
// synthesize a Cluster, User and Context entry. Ephemeral; either the
// merger consumes it or it is discarded.
type DiscoveredCluster struct {
	Provider Provider
	// Account is the provider account scope: GCP project ID, AWS
	// profile, Azure subscription ID.
	Account string
	Region  string
	Name    string

	Server                   string
	CertificateAuthorityData []byte

	// ResourceGroup is set for AKS clusters only.
	ResourceGroup string
}

// Option is one selectable choice at a drilldown level (a project, a
// profile, a region, a subscription).
type Option struct {
	ID    string
	Label string
}

// Discoverer lists managed clusters of one provider and constructs
// kubeconfig auth for them.
//
// Discovery is scoped by a drilldown path of level selections, one ID
// per level (GKE: project; EKS: profile, region; AKS: subscription).
// ListOptions serves the incomplete levels; ListClusters requires the
// complete path.
type Discoverer interface {
	Provider() Provider

	// Configured reports whether the provider's ambient credentials
	// look usable. Unconfigured providers are hidden from discovery.
	Configured(ctx context.Context) bool

	// Levels names the drilldown levels above the cluster list.
	Levels() []string

	// ListOptions lists the choices for the level at len(path).
	ListOptions(ctx context.Context, path []string) ([]Option, error)

	// ListClusters lists the clusters under a complete path.
	ListClusters(ctx context.Context, path []string) ([]DiscoveredCluster, error)

	// BuildAuth constructs the kubeconfig user for a discovered
	// cluster. It may fill in fields of dc (AKS learns the endpoint CA
	// only from the credential call).
	BuildAuth(ctx context.Context, dc *DiscoveredCluster) (*api.AuthInfo, error)
}

// Discoverers returns the discoverer for every supported provider.
func Discoverers() []Discoverer {
	return []Discoverer{NewGKEDiscoverer(), NewEKSDiscoverer(), NewAKSDiscoverer()}
}

// ByProvider finds the discoverer for the given provider.
func ByProvider(provider Provider) (Discoverer, bool) {
	for _, d := range Discoverers() {
		if d.Provider() == provider {
			return d, true
		}
	}
	return nil, false
}
