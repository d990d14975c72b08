package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerservice/armcontainerservice"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// aksDiscoverer lists AKS clusters through the Azure SDK. Drilldown:
// subscription -> clusters. Subscription enumeration goes through the
// az CLI because it reflects the operator's az login session.
type aksDiscoverer struct{}

// NewAKSDiscoverer creates the AKS discoverer.
func NewAKSDiscoverer() Discoverer {
	return &aksDiscoverer{}
}

func (d *aksDiscoverer) Provider() Provider { return ProviderAKS }

func (d *aksDiscoverer) Levels() []string { return []string{"subscription"} }

// NewAzureCredential builds the SDK token credential from the ambient
// az CLI session. Package-level variable to allow overriding in tests.
var NewAzureCredential = func() (azcore.TokenCredential, error) {
	return azidentity.NewAzureCLICredential(nil)
}

// ListManagedClusters pages through every AKS cluster in the
// subscription. Package-level variable to allow overriding in tests.
var ListManagedClusters = func(ctx context.Context, subscription string) ([]*armcontainerservice.ManagedCluster, error) {
	cred, err := NewAzureCredential()
	if err != nil {
		return nil, err
	}
	client, err := armcontainerservice.NewManagedClustersClient(subscription, cred, nil)
	if err != nil {
		return nil, err
	}

	var clusters []*armcontainerservice.ManagedCluster
	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, page.Value...)
	}
	return clusters, nil
}

// ListClusterUserCredentials fetches the user kubeconfig blob for one
// AKS cluster. Package-level variable to allow overriding in tests.
var ListClusterUserCredentials = func(ctx context.Context, subscription, resourceGroup, name string) ([]byte, error) {
	cred, err := NewAzureCredential()
	if err != nil {
		return nil, err
	}
	client, err := armcontainerservice.NewManagedClustersClient(subscription, cred, nil)
	if err != nil {
		return nil, err
	}

	result, err := client.ListClusterUserCredentials(ctx, resourceGroup, name, nil)
	if err != nil {
		return nil, err
	}
	if len(result.Kubeconfigs) == 0 || len(result.Kubeconfigs[0].Value) == 0 {
		return nil, fmt.Errorf("no kubeconfig returned for cluster %s", name)
	}
	return result.Kubeconfigs[0].Value, nil
}

type azAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	User struct {
		Name string `json:"name"`
	} `json:"user"`
}

func (d *aksDiscoverer) Configured(ctx context.Context) bool {
	var account azAccount
	if err := runJSON(ctx, &account, "az", "account", "show", "--output", "json"); err != nil {
		return false
	}
	return account.User.Name != ""
}

func (d *aksDiscoverer) ListOptions(ctx context.Context, path []string) ([]Option, error) {
	if len(path) != 0 {
		return nil, fmt.Errorf("aks has no drilldown level %d", len(path))
	}
	return withListRetry(ctx, ProviderAKS, func() ([]Option, error) {
		var accounts []azAccount
		if err := runJSON(ctx, &accounts, "az", "account", "list", "--output", "json"); err != nil {
			return nil, cliErr(ProviderAKS, err)
		}
		var options []Option
		for _, account := range accounts {
			if account.ID == "" || account.Name == "" {
				continue
			}
			options = append(options, Option{
				ID:    account.ID,
				Label: fmt.Sprintf("%s (%s)", account.Name, account.ID),
			})
		}
		return options, nil
	})
}

func (d *aksDiscoverer) ListClusters(ctx context.Context, path []string) ([]DiscoveredCluster, error) {
	if len(path) != 1 {
		return nil, fmt.Errorf("aks discovery needs a subscription, got path %v", path)
	}
	subscription := path[0]

	return withListRetry(ctx, ProviderAKS, func() ([]DiscoveredCluster, error) {
		clusters, err := ListManagedClusters(ctx, subscription)
		if err != nil {
			return nil, sdkErr(ProviderAKS, err)
		}

		discovered := make([]DiscoveredCluster, 0, len(clusters))
		for _, cluster := range clusters {
			if cluster == nil || cluster.Name == nil {
				continue
			}
			dc := DiscoveredCluster{
				Provider:      ProviderAKS,
				Account:       subscription,
				Name:          *cluster.Name,
				ResourceGroup: resourceGroupFromID(stringValue(cluster.ID)),
			}
			if cluster.Location != nil {
				dc.Region = *cluster.Location
			}
			if cluster.Properties != nil && cluster.Properties.Fqdn != nil {
				dc.Server = "https://" + *cluster.Properties.Fqdn + ":443"
			}
			discovered = append(discovered, dc)
		}
		return discovered, nil
	})
}

// BuildAuth retrieves the cluster's user kubeconfig and lifts its auth
// entry out; the endpoint CA travels in the same blob, so it is filled
// into dc as a side effect.
func (d *aksDiscoverer) BuildAuth(ctx context.Context, dc *DiscoveredCluster) (*api.AuthInfo, error) {
	blob, err := ListClusterUserCredentials(ctx, dc.Account, dc.ResourceGroup, dc.Name)
	if err != nil {
		return nil, sdkErr(ProviderAKS, err)
	}

	credConfig, err := clientcmd.Load(blob)
	if err != nil {
		return nil, &APIError{Provider: ProviderAKS,
			Err: fmt.Errorf("invalid credential kubeconfig for cluster %s: %w", dc.Name, err)}
	}

	for _, cluster := range credConfig.Clusters {
		if len(cluster.CertificateAuthorityData) > 0 {
			dc.CertificateAuthorityData = cluster.CertificateAuthorityData
		}
		if dc.Server == "" && cluster.Server != "" {
			dc.Server = cluster.Server
		}
		break
	}
	for _, authInfo := range credConfig.AuthInfos {
		return authInfo, nil
	}
	return nil, &APIError{Provider: ProviderAKS,
		Err: fmt.Errorf("credential kubeconfig for cluster %s has no user entry", dc.Name)}
}

// sdkErr classifies an Azure SDK failure by HTTP status.
func sdkErr(provider Provider, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 401, 403:
			return &AuthError{Provider: provider, Err: err}
		case 429:
			return &RateLimitedError{Provider: provider, Err: err}
		}
		return &APIError{Provider: provider, Err: err}
	}
	var authFailed *azidentity.AuthenticationFailedError
	if errors.As(err, &authFailed) {
		return &AuthError{Provider: provider, Err: err}
	}
	return &APIError{Provider: provider, Err: err}
}

// resourceGroupFromID extracts the resource group segment of an ARM
// resource ID.
func resourceGroupFromID(id string) string {
	segments := strings.Split(id, "/")
	for i := 0; i < len(segments)-1; i++ {
		if strings.EqualFold(segments[i], "resourcegroups") {
			return segments[i+1]
		}
	}
	return ""
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
