package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"ktx/internal/config"
	"ktx/internal/kubeconfig"
	"ktx/internal/session"
	"ktx/internal/tui"
	"ktx/pkg/logging"
)

var (
	flagKubeconfig string
	flagLogLevel   string
)

// rootCmd represents the base command; without subcommands it launches
// the interactive context manager.
var rootCmd = &cobra.Command{
	Use:   "ktx",
	Short: "Manage kubeconfig contexts interactively",
	Long: `ktx is an interactive manager for kubeconfig contexts: fuzzy-search
and switch between them, test which clusters are still reachable, sweep
contexts whose clusters are gone, and import clusters straight from
GKE, EKS and AKS.`,
	// SilenceUsage prevents printing the usage block for errors we
	// already report ourselves.
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if flagLogLevel != "" {
			cfg.Log.Level = flagLogLevel
		}

		path := flagKubeconfig
		if path == "" {
			path = kubeconfig.DefaultPath()
		}

		logs := logging.InitForTUI(logging.ParseLevel(cfg.Log.Level))
		defer logging.CloseTUIChannel()

		sess, err := session.New(kubeconfig.NewStore(), path, cfg)
		if err != nil {
			return err
		}
		return tui.Run(sess, logs)
	},
}

// SetVersion sets the version reported by the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command. Called once from main.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "ktx version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero.
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&flagKubeconfig, "kubeconfig", "",
		"path to the kubeconfig file (default: $KUBECONFIG or ~/.kube/config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"log verbosity: debug, info, warn, error")
}
