package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/tools/clientcmd/api"

	"ktx/internal/cloud"
)

// staticAuthBuilder returns a fixed auth entry, or an error.
type staticAuthBuilder struct {
	authInfo *api.AuthInfo
	err      error
}

func (b *staticAuthBuilder) BuildAuth(_ context.Context, _ *cloud.DiscoveredCluster) (*api.AuthInfo, error) {
	return b.authInfo, b.err
}

func gkeAnalytics() cloud.DiscoveredCluster {
	return cloud.DiscoveredCluster{
		Provider:                 cloud.ProviderGKE,
		Account:                  "proj1",
		Region:                   "us-east1",
		Name:                     "analytics",
		Server:                   "https://34.1.2.3",
		CertificateAuthorityData: []byte("ca"),
	}
}

func gkeExecAuth() *api.AuthInfo {
	return &api.AuthInfo{Exec: &api.ExecConfig{
		APIVersion: "client.authentication.k8s.io/v1beta1",
		Command:    "gke-gcloud-auth-plugin",
	}}
}

func builders() map[cloud.Provider]AuthBuilder {
	return map[cloud.Provider]AuthBuilder{
		cloud.ProviderGKE: &staticAuthBuilder{authInfo: gkeExecAuth()},
	}
}

func TestMergeAddsNewCluster(t *testing.T) {
	doc := api.NewConfig()

	result, err := Merge(context.Background(), doc, []cloud.DiscoveredCluster{gkeAnalytics()}, builders())
	require.NoError(t, err)
	require.Len(t, result.Imported, 1)

	imported := result.Imported[0]
	assert.Equal(t, OutcomeAdded, imported.Outcome)
	assert.Equal(t, "gke-proj1-analytics", imported.ContextName)
	assert.Equal(t, "gke-proj1-analytics", imported.ClusterName)
	assert.Equal(t, "gke-proj1-analytics", imported.UserName)

	require.Contains(t, doc.Contexts, "gke-proj1-analytics")
	assert.Equal(t, "https://34.1.2.3", doc.Clusters["gke-proj1-analytics"].Server)
	assert.Equal(t, 1, result.Added())
}

func TestMergeIsIdempotent(t *testing.T) {
	doc := api.NewConfig()

	_, err := Merge(context.Background(), doc, []cloud.DiscoveredCluster{gkeAnalytics()}, builders())
	require.NoError(t, err)
	snapshot := doc.DeepCopy()

	result, err := Merge(context.Background(), doc, []cloud.DiscoveredCluster{gkeAnalytics()}, builders())
	require.NoError(t, err)

	assert.Equal(t, snapshot, doc, "second import must not change the document")
	require.Len(t, result.Imported, 1)
	assert.Equal(t, OutcomeReused, result.Imported[0].Outcome)
	assert.Equal(t, 0, result.Added())
}

func TestMergeSuffixesDifferingEntry(t *testing.T) {
	doc := api.NewConfig()
	// Same name, different endpoint: pre-existing entry must survive.
	doc.Clusters["gke-proj1-analytics"] = &api.Cluster{Server: "https://old.example.com"}
	doc.AuthInfos["gke-proj1-analytics"] = &api.AuthInfo{Token: "legacy"}
	doc.Contexts["gke-proj1-analytics"] = &api.Context{
		Cluster:  "gke-proj1-analytics",
		AuthInfo: "gke-proj1-analytics",
	}

	result, err := Merge(context.Background(), doc, []cloud.DiscoveredCluster{gkeAnalytics()}, builders())
	require.NoError(t, err)
	require.Len(t, result.Imported, 1)

	imported := result.Imported[0]
	assert.Equal(t, "gke-proj1-analytics-2", imported.ClusterName)
	assert.Equal(t, "gke-proj1-analytics-2", imported.UserName)
	assert.Equal(t, "gke-proj1-analytics-2", imported.ContextName)

	// Untouched original.
	assert.Equal(t, "https://old.example.com", doc.Clusters["gke-proj1-analytics"].Server)
	assert.Equal(t, "legacy", doc.AuthInfos["gke-proj1-analytics"].Token)
}

func TestMergeSuffixIsDeterministic(t *testing.T) {
	build := func() *api.Config {
		doc := api.NewConfig()
		doc.Clusters["gke-proj1-analytics"] = &api.Cluster{Server: "https://old-a.example.com"}
		doc.Clusters["gke-proj1-analytics-2"] = &api.Cluster{Server: "https://old-b.example.com"}
		return doc
	}

	docA, docB := build(), build()
	for _, doc := range []*api.Config{docA, docB} {
		result, err := Merge(context.Background(), doc, []cloud.DiscoveredCluster{gkeAnalytics()}, builders())
		require.NoError(t, err)
		assert.Equal(t, "gke-proj1-analytics-3", result.Imported[0].ClusterName)
	}
}

func TestMergeReusesEquivalentClusterUnderExistingName(t *testing.T) {
	doc := api.NewConfig()
	doc.Clusters["gke-proj1-analytics"] = &api.Cluster{
		Server:                   "https://34.1.2.3",
		CertificateAuthorityData: []byte("ca"),
	}

	result, err := Merge(context.Background(), doc, []cloud.DiscoveredCluster{gkeAnalytics()}, builders())
	require.NoError(t, err)

	imported := result.Imported[0]
	assert.Equal(t, "gke-proj1-analytics", imported.ClusterName)
	// Context and user were still missing, so the merge counts as added.
	assert.Equal(t, OutcomeAdded, imported.Outcome)
	assert.Len(t, doc.Clusters, 1)
}

func TestMergeAuthFailureIsolated(t *testing.T) {
	doc := api.NewConfig()
	eksCluster := cloud.DiscoveredCluster{
		Provider: cloud.ProviderEKS,
		Account:  "default",
		Region:   "us-east-1",
		Name:     "payments",
		Server:   "https://eks.example.com",
	}

	allBuilders := builders()
	allBuilders[cloud.ProviderEKS] = &staticAuthBuilder{err: errors.New("token retrieval failed")}

	result, err := Merge(context.Background(), doc,
		[]cloud.DiscoveredCluster{gkeAnalytics(), eksCluster}, allBuilders)

	// The failing cluster is reported, the healthy one still lands.
	require.Error(t, err)
	require.Len(t, result.Imported, 1)
	assert.Equal(t, "gke-proj1-analytics", result.Imported[0].ContextName)
	assert.NotContains(t, doc.Contexts, "eks-default-payments")
}

func TestBaseNameSanitization(t *testing.T) {
	dc := cloud.DiscoveredCluster{
		Provider: cloud.ProviderAKS,
		Account:  "Sub_ID With Spaces",
		Name:     "Web/Cluster",
	}
	assert.Equal(t, "aks-sub-id-with-spaces-web-cluster", baseName(dc))
}
