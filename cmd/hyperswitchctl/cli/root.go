// Package cli implements hyperswitchctl's subcommands, grounded on the
// options-struct-plus-newXCmd shape the pack's own cobra-based CLI
// (onr-admin) uses.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wikimedia/hyperswitch/openapi"
	"gopkg.in/yaml.v3"
)

// NewRootCmd assembles the hyperswitchctl command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hyperswitchctl",
		Short: "Inspect and exercise a HyperSwitch specification offline",
	}
	cmd.AddCommand(
		newValidateCmd(),
		newTreeCmd(),
		newRequestCmd(),
		newWatchCmd(),
	)
	return cmd
}

// loadDocument reads and decodes a spec file into an *openapi.Document.
func loadDocument(path string) (*openapi.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc openapi.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
