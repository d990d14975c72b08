package cloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"k8s.io/client-go/tools/clientcmd/api"
)

// eksDiscoverer lists EKS clusters through the aws CLI with JSON
// output. Drilldown: profile -> region -> clusters.
type eksDiscoverer struct{}

// NewEKSDiscoverer creates the EKS discoverer.
func NewEKSDiscoverer() Discoverer {
	return &eksDiscoverer{}
}

func (d *eksDiscoverer) Provider() Provider { return ProviderEKS }

func (d *eksDiscoverer) Levels() []string { return []string{"profile", "region"} }

func (d *eksDiscoverer) Configured(ctx context.Context) bool {
	stdout, err := RunCommand(ctx, "aws", "configure", "list-profiles")
	if err != nil {
		return false
	}
	return strings.TrimSpace(stdout) != ""
}

func (d *eksDiscoverer) ListOptions(ctx context.Context, path []string) ([]Option, error) {
	switch len(path) {
	case 0:
		return d.listProfiles(ctx)
	case 1:
		return d.listRegions(ctx, path[0])
	default:
		return nil, fmt.Errorf("eks has no drilldown level %d", len(path))
	}
}

func (d *eksDiscoverer) listProfiles(ctx context.Context) ([]Option, error) {
	stdout, err := RunCommand(ctx, "aws", "configure", "list-profiles")
	if err != nil {
		return nil, cliErr(ProviderEKS, err)
	}
	var options []Option
	for _, profile := range strings.Split(stdout, "\n") {
		profile = strings.TrimSpace(profile)
		if profile != "" {
			options = append(options, Option{ID: profile, Label: profile})
		}
	}
	return options, nil
}

type awsRegionList struct {
	Regions []struct {
		RegionName string `json:"RegionName"`
	} `json:"Regions"`
}

func (d *eksDiscoverer) listRegions(ctx context.Context, profile string) ([]Option, error) {
	return withListRetry(ctx, ProviderEKS, func() ([]Option, error) {
		var regions awsRegionList
		err := runJSON(ctx, &regions, "aws",
			"--profile", profile, "--output", "json", "ec2", "describe-regions")
		if err != nil {
			return nil, cliErr(ProviderEKS, err)
		}
		var options []Option
		for _, region := range regions.Regions {
			if region.RegionName != "" {
				options = append(options, Option{ID: region.RegionName, Label: region.RegionName})
			}
		}
		return options, nil
	})
}

type eksClusterList struct {
	Clusters []string `json:"clusters"`
}

type eksClusterDetail struct {
	Cluster struct {
		Name                 string `json:"name"`
		Endpoint             string `json:"endpoint"`
		CertificateAuthority struct {
			Data string `json:"data"`
		} `json:"certificateAuthority"`
	} `json:"cluster"`
}

func (d *eksDiscoverer) ListClusters(ctx context.Context, path []string) ([]DiscoveredCluster, error) {
	if len(path) != 2 {
		return nil, fmt.Errorf("eks discovery needs profile and region, got path %v", path)
	}
	profile, region := path[0], path[1]

	return withListRetry(ctx, ProviderEKS, func() ([]DiscoveredCluster, error) {
		var list eksClusterList
		err := runJSON(ctx, &list, "aws",
			"--profile", profile, "--output", "json", "--region", region,
			"eks", "list-clusters")
		if err != nil {
			return nil, cliErr(ProviderEKS, err)
		}

		discovered := make([]DiscoveredCluster, 0, len(list.Clusters))
		for _, name := range list.Clusters {
			// list-clusters yields names only; endpoint and CA need a
			// describe call per cluster.
			var detail eksClusterDetail
			err := runJSON(ctx, &detail, "aws",
				"--profile", profile, "--output", "json", "--region", region,
				"eks", "describe-cluster", "--name", name)
			if err != nil {
				return nil, cliErr(ProviderEKS, err)
			}

			dc := DiscoveredCluster{
				Provider: ProviderEKS,
				Account:  profile,
				Region:   region,
				Name:     name,
				Server:   detail.Cluster.Endpoint,
			}
			if data := detail.Cluster.CertificateAuthority.Data; data != "" {
				ca, decodeErr := base64.StdEncoding.DecodeString(data)
				if decodeErr != nil {
					return nil, &APIError{Provider: ProviderEKS,
						Err: fmt.Errorf("invalid CA data for cluster %s: %w", name, decodeErr)}
				}
				dc.CertificateAuthorityData = ca
			}
			discovered = append(discovered, dc)
		}
		return discovered, nil
	})
}

// BuildAuth returns the exec-credential user invoking `aws eks
// get-token`, the same stanza `aws eks update-kubeconfig` writes.
func (d *eksDiscoverer) BuildAuth(_ context.Context, dc *DiscoveredCluster) (*api.AuthInfo, error) {
	return &api.AuthInfo{
		Exec: &api.ExecConfig{
			APIVersion: "client.authentication.k8s.io/v1beta1",
			Command:    "aws",
			Args: []string{
				"--region", dc.Region,
				"--profile", dc.Account,
				"eks", "get-token",
				"--cluster-name", dc.Name,
				"--output", "json",
			},
			InteractiveMode: api.IfAvailableExecInteractiveMode,
		},
	}, nil
}
