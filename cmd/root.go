// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand enables all children commands to read flags from CLI
// flags, environment variables prefixed with PATRONGATE, or config.yaml
// (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("PATRONGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/patrongate", "$HOME/.patrongate", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	return &cobra.Command{
		Use:   "patrongate",
		Short: "A patron business-logic gateway that composes backend services into one API",
		Long: `A patron business-logic gateway that composes backend services into one API.

Patrongate aggregates the user, group, credential, permission and circulation
services of a library platform into composite patron views, and orchestrates
multi-step credential workflows such as password resets.`,
	}
}
