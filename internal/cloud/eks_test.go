package cloud

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEKSListOptions(t *testing.T) {
	t.Run("profiles", func(t *testing.T) {
		stubCommands(t, map[string]string{
			"aws configure list-profiles": "default\nstaging\n\n",
		}, nil)

		options, err := NewEKSDiscoverer().ListOptions(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, options, 2)
		assert.Equal(t, "default", options[0].ID)
		assert.Equal(t, "staging", options[1].ID)
	})

	t.Run("regions", func(t *testing.T) {
		stubCommands(t, map[string]string{
			"aws --profile default --output json ec2 describe-regions": `{
  "Regions": [{"RegionName": "us-east-1"}, {"RegionName": "eu-west-1"}]
}`,
		}, nil)

		options, err := NewEKSDiscoverer().ListOptions(context.Background(), []string{"default"})
		require.NoError(t, err)
		require.Len(t, options, 2)
		assert.Equal(t, "us-east-1", options[0].ID)
	})

	t.Run("too deep", func(t *testing.T) {
		_, err := NewEKSDiscoverer().ListOptions(context.Background(), []string{"default", "us-east-1"})
		assert.Error(t, err)
	})
}

func TestEKSListClusters(t *testing.T) {
	ca := []byte("---EKS-CA---")
	stubCommands(t, map[string]string{
		"aws --profile default --output json --region us-east-1 eks list-clusters": `{"clusters": ["payments"]}`,
		"aws --profile default --output json --region us-east-1 eks describe-cluster --name payments": `{
  "cluster": {
    "name": "payments",
    "endpoint": "https://ABC123.gr7.us-east-1.eks.amazonaws.com",
    "certificateAuthority": {"data": "` + base64.StdEncoding.EncodeToString(ca) + `"}
  }
}`,
	}, nil)

	clusters, err := NewEKSDiscoverer().ListClusters(context.Background(), []string{"default", "us-east-1"})
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	dc := clusters[0]
	assert.Equal(t, ProviderEKS, dc.Provider)
	assert.Equal(t, "default", dc.Account)
	assert.Equal(t, "us-east-1", dc.Region)
	assert.Equal(t, "payments", dc.Name)
	assert.Equal(t, "https://ABC123.gr7.us-east-1.eks.amazonaws.com", dc.Server)
	assert.Equal(t, ca, dc.CertificateAuthorityData)
}

func TestEKSBuildAuth(t *testing.T) {
	dc := &DiscoveredCluster{
		Provider: ProviderEKS,
		Account:  "staging",
		Region:   "eu-west-1",
		Name:     "payments",
	}

	authInfo, err := NewEKSDiscoverer().BuildAuth(context.Background(), dc)
	require.NoError(t, err)
	require.NotNil(t, authInfo.Exec)
	assert.Equal(t, "aws", authInfo.Exec.Command)
	assert.Contains(t, authInfo.Exec.Args, "get-token")
	assert.Contains(t, authInfo.Exec.Args, "payments")
	assert.Contains(t, authInfo.Exec.Args, "eu-west-1")
	assert.Contains(t, authInfo.Exec.Args, "staging")
}

func TestEKSConfigured(t *testing.T) {
	stubCommands(t, map[string]string{"aws configure list-profiles": "default\n"}, nil)
	assert.True(t, NewEKSDiscoverer().Configured(context.Background()))

	stubCommands(t, map[string]string{"aws configure list-profiles": "\n"}, nil)
	assert.False(t, NewEKSDiscoverer().Configured(context.Background()))
}
