package cloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"k8s.io/client-go/tools/clientcmd/api"
)

// gkeDiscoverer lists GKE clusters through the gcloud CLI with JSON
// output. Drilldown: project -> clusters.
type gkeDiscoverer struct{}

// NewGKEDiscoverer creates the GKE discoverer.
func NewGKEDiscoverer() Discoverer {
	return &gkeDiscoverer{}
}

func (d *gkeDiscoverer) Provider() Provider { return ProviderGKE }

func (d *gkeDiscoverer) Levels() []string { return []string{"project"} }

type gcloudInfo struct {
	Config struct {
		Account string `json:"account"`
	} `json:"config"`
}

func (d *gkeDiscoverer) Configured(ctx context.Context) bool {
	var info gcloudInfo
	if err := runJSON(ctx, &info, "gcloud", "--format", "json", "info"); err != nil {
		return false
	}
	return info.Config.Account != ""
}

type gcloudProject struct {
	ProjectID      string `json:"projectId"`
	Name           string `json:"name"`
	LifecycleState string `json:"lifecycleState"`
}

func (d *gkeDiscoverer) ListOptions(ctx context.Context, path []string) ([]Option, error) {
	if len(path) != 0 {
		return nil, fmt.Errorf("gke has no drilldown level %d", len(path))
	}
	return withListRetry(ctx, ProviderGKE, func() ([]Option, error) {
		var projects []gcloudProject
		if err := runJSON(ctx, &projects, "gcloud", "--format", "json", "projects", "list"); err != nil {
			return nil, cliErr(ProviderGKE, err)
		}
		var options []Option
		for _, project := range projects {
			// System projects are not meaningful import targets.
			if project.ProjectID == "" || strings.HasPrefix(project.ProjectID, "sys-") {
				continue
			}
			if project.LifecycleState != "ACTIVE" {
				continue
			}
			options = append(options, Option{
				ID:    project.ProjectID,
				Label: fmt.Sprintf("%s (%s)", project.Name, project.ProjectID),
			})
		}
		return options, nil
	})
}

type gkeCluster struct {
	Name       string `json:"name"`
	Zone       string `json:"zone"`
	Location   string `json:"location"`
	Endpoint   string `json:"endpoint"`
	MasterAuth struct {
		ClusterCACertificate string `json:"clusterCaCertificate"`
	} `json:"masterAuth"`
}

func (d *gkeDiscoverer) ListClusters(ctx context.Context, path []string) ([]DiscoveredCluster, error) {
	if len(path) != 1 {
		return nil, fmt.Errorf("gke discovery needs a project, got path %v", path)
	}
	project := path[0]

	return withListRetry(ctx, ProviderGKE, func() ([]DiscoveredCluster, error) {
		var clusters []gkeCluster
		err := runJSON(ctx, &clusters, "gcloud",
			"--format", "json", "container", "clusters", "list", "--project", project)
		if err != nil {
			return nil, cliErr(ProviderGKE, err)
		}

		discovered := make([]DiscoveredCluster, 0, len(clusters))
		for _, cluster := range clusters {
			region := cluster.Location
			if region == "" {
				region = cluster.Zone
			}
			dc := DiscoveredCluster{
				Provider: ProviderGKE,
				Account:  project,
				Region:   region,
				Name:     cluster.Name,
				Server:   "https://" + cluster.Endpoint,
			}
			if cluster.MasterAuth.ClusterCACertificate != "" {
				ca, decodeErr := base64.StdEncoding.DecodeString(cluster.MasterAuth.ClusterCACertificate)
				if decodeErr != nil {
					return nil, &APIError{Provider: ProviderGKE,
						Err: fmt.Errorf("invalid CA data for cluster %s: %w", cluster.Name, decodeErr)}
				}
				dc.CertificateAuthorityData = ca
			}
			discovered = append(discovered, dc)
		}
		return discovered, nil
	})
}

// BuildAuth returns the standard GKE exec-credential user, the same
// stanza `gcloud container clusters get-credentials` writes.
func (d *gkeDiscoverer) BuildAuth(_ context.Context, _ *DiscoveredCluster) (*api.AuthInfo, error) {
	return &api.AuthInfo{
		Exec: &api.ExecConfig{
			APIVersion:         "client.authentication.k8s.io/v1beta1",
			Command:            "gke-gcloud-auth-plugin",
			InstallHint:        "Install gke-gcloud-auth-plugin for kubectl by following https://cloud.google.com/kubernetes-engine/docs/how-to/cluster-access-for-kubectl",
			ProvideClusterInfo: true,
			InteractiveMode:    api.IfAvailableExecInteractiveMode,
		},
	}, nil
}
