package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wikimedia/hyperswitch/internal/filter/builtin"
	"github.com/wikimedia/hyperswitch/routetree"
	"github.com/wikimedia/hyperswitch/spec"
)

func newTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <spec-file>",
		Short: "Print the route tree a spec file produces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			result, err := spec.Load(doc, spec.Options{DisableHandlers: true, Registry: builtin.NewRegistry(nil)})
			if err != nil {
				return fmt.Errorf("%s is invalid: %w", args[0], err)
			}
			printTree(cmd.OutOrStdout(), result.Root, "")
			return nil
		},
	}
	return cmd
}

func printTree(w io.Writer, node *routetree.Node, prefix string) {
	if node.Value != nil {
		verbs := make([]string, 0, len(node.Value.Methods))
		for v := range node.Value.Methods {
			verbs = append(verbs, v)
		}
		sort.Strings(verbs)
		if len(verbs) > 0 {
			fmt.Fprintf(w, "%-40s %v\n", displayPath(prefix), verbs)
		}
	}

	children := node.Children()
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		child := children[k]
		if child == node {
			continue // greedy segment's self-edge
		}
		printTree(w, child, prefix+"/"+k)
	}
}

func displayPath(prefix string) string {
	if prefix == "" {
		return "/"
	}
	return prefix
}
