package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/gh-sync-forks/internal/config"
	"github.com/naka-gawa/gh-sync-forks/internal/gateway"
)

// addGitHubFlags registers the flags shared by every command that talks to GitHub.
func addGitHubFlags(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().StringP("org", "o", "", "Target GitHub organization name (required unless set in the config file)")
	cmd.Flags().String("token", "", "GitHub access token (default is $GITHUB_TOKEN)")
	cmd.Flags().String("api", d.API, "GitHub API used to discover forks (rest|graphql)")
	cmd.Flags().String("protocol", d.Protocol, "Protocol used to clone forks (ssh|https)")
}

// loadConfig reads the config file and overrides it with the flags set on cmd.
// The token is taken from --token, then GITHUB_TOKEN, then the config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)
	if !cmd.Flags().Changed("token") {
		if token := os.Getenv("GITHUB_TOKEN"); token != "" {
			cfg.Token = token
		}
	}
	return cfg, nil
}

// applyFlags copies every flag the user set explicitly into cfg.
// Flags the command does not define are ignored.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	stringFlags := map[string]*string{
		"org":           &cfg.Org,
		"token":         &cfg.Token,
		"dir":           &cfg.Dir,
		"api":           &cfg.API,
		"protocol":      &cfg.Protocol,
		"upstream-base": &cfg.UpstreamBase,
		"git-name":      &cfg.GitName,
		"git-email":     &cfg.GitEmail,
		"metrics-file":  &cfg.MetricsFile,
		"output":        &cfg.Output,
	}
	for name, dst := range stringFlags {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}

	boolFlags := map[string]*bool{
		"clean":             &cfg.Clean,
		"reset":             &cfg.Reset,
		"continue-on-error": &cfg.ContinueOnError,
	}
	for name, dst := range boolFlags {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}

	listFlags := map[string]*[]string{
		"only": &cfg.Only,
		"skip": &cfg.Skip,
	}
	for name, dst := range listFlags {
		if flags.Changed(name) {
			*dst, _ = flags.GetStringSlice(name)
		}
	}

	if flags.Changed("op-timeout") {
		cfg.OpTimeout, _ = flags.GetDuration("op-timeout")
	}
}

// newLister builds the gateway selected by cfg.API.
func newLister(cfg *config.Config, logger *log.Logger) (gateway.Lister, error) {
	protocol := gateway.Protocol(cfg.Protocol)
	switch cfg.API {
	case config.APIGraphQL:
		return gateway.NewGraphQLGateway(cfg.Token, protocol, logger)
	case config.APIREST:
		return gateway.NewGitHubGateway(cfg.Token, protocol, logger)
	default:
		return nil, fmt.Errorf("unknown api %q", cfg.API)
	}
}
