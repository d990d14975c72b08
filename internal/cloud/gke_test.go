package cloud

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCommands replaces RunCommand with a fixture map keyed by the
// joined command line, restoring the original afterwards.
func stubCommands(t *testing.T, fixtures map[string]string, failures map[string]error) *int {
	t.Helper()
	original := RunCommand
	calls := new(int)
	RunCommand = func(_ context.Context, name string, args ...string) (string, error) {
		*calls++
		key := strings.Join(append([]string{name}, args...), " ")
		if err, ok := failures[key]; ok {
			return "", err
		}
		if out, ok := fixtures[key]; ok {
			return out, nil
		}
		return "", fmt.Errorf("unexpected command: %s", key)
	}
	t.Cleanup(func() { RunCommand = original })
	return calls
}

const gkeProjectsJSON = `[
  {"projectId": "proj1", "name": "Analytics", "lifecycleState": "ACTIVE"},
  {"projectId": "proj2", "name": "Dormant", "lifecycleState": "DELETE_REQUESTED"},
  {"projectId": "sys-123456", "name": "System", "lifecycleState": "ACTIVE"}
]`

func gkeClustersJSON(caB64 string) string {
	return fmt.Sprintf(`[
  {"name": "analytics", "zone": "us-east1-b", "endpoint": "34.1.2.3",
   "masterAuth": {"clusterCaCertificate": %q}}
]`, caB64)
}

func TestGKEListOptionsFiltersProjects(t *testing.T) {
	stubCommands(t, map[string]string{
		"gcloud --format json projects list": gkeProjectsJSON,
	}, nil)

	discoverer := NewGKEDiscoverer()
	options, err := discoverer.ListOptions(context.Background(), nil)
	require.NoError(t, err)

	// Inactive and sys- projects are dropped.
	require.Len(t, options, 1)
	assert.Equal(t, "proj1", options[0].ID)
	assert.Equal(t, "Analytics (proj1)", options[0].Label)
}

func TestGKEListClusters(t *testing.T) {
	ca := []byte("---CA---")
	stubCommands(t, map[string]string{
		"gcloud --format json container clusters list --project proj1": gkeClustersJSON(
			base64.StdEncoding.EncodeToString(ca)),
	}, nil)

	discoverer := NewGKEDiscoverer()
	clusters, err := discoverer.ListClusters(context.Background(), []string{"proj1"})
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	dc := clusters[0]
	assert.Equal(t, ProviderGKE, dc.Provider)
	assert.Equal(t, "proj1", dc.Account)
	assert.Equal(t, "us-east1-b", dc.Region)
	assert.Equal(t, "analytics", dc.Name)
	assert.Equal(t, "https://34.1.2.3", dc.Server)
	assert.Equal(t, ca, dc.CertificateAuthorityData)
}

func TestGKEListClustersRequiresProject(t *testing.T) {
	discoverer := NewGKEDiscoverer()
	_, err := discoverer.ListClusters(context.Background(), nil)
	assert.Error(t, err)
}

func TestGKEAuthErrorNotRetried(t *testing.T) {
	calls := stubCommands(t, nil, map[string]error{
		"gcloud --format json container clusters list --project proj1": &CommandError{
			Command: "gcloud",
			Stderr:  "ERROR: (gcloud.container.clusters.list) Your credentials have expired, please run gcloud auth login",
			Err:     errors.New("exit status 1"),
		},
	})

	discoverer := NewGKEDiscoverer()
	_, err := discoverer.ListClusters(context.Background(), []string{"proj1"})

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 1, *calls, "auth errors must surface without retries")
}

func TestGKETransientErrorRetried(t *testing.T) {
	calls := stubCommands(t, nil, map[string]error{
		"gcloud --format json container clusters list --project proj1": &CommandError{
			Command: "gcloud",
			Stderr:  "ERROR: internal server error",
			Err:     errors.New("exit status 1"),
		},
	})

	discoverer := NewGKEDiscoverer()
	_, err := discoverer.ListClusters(context.Background(), []string{"proj1"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, maxListAttempts, *calls)
}

func TestGKEBuildAuth(t *testing.T) {
	discoverer := NewGKEDiscoverer()
	dc := &DiscoveredCluster{Provider: ProviderGKE, Account: "proj1", Name: "analytics"}

	authInfo, err := discoverer.BuildAuth(context.Background(), dc)
	require.NoError(t, err)
	require.NotNil(t, authInfo.Exec)
	assert.Equal(t, "gke-gcloud-auth-plugin", authInfo.Exec.Command)
	assert.True(t, authInfo.Exec.ProvideClusterInfo)
}

func TestGKEConfigured(t *testing.T) {
	stubCommands(t, map[string]string{
		"gcloud --format json info": `{"config": {"account": "dev@example.com"}}`,
	}, nil)
	assert.True(t, NewGKEDiscoverer().Configured(context.Background()))
}

func TestGKENotConfigured(t *testing.T) {
	stubCommands(t, map[string]string{
		"gcloud --format json info": `{"config": {"account": ""}}`,
	}, nil)
	assert.False(t, NewGKEDiscoverer().Configured(context.Background()))
}
