package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wikimedia/hyperswitch"
	"github.com/wikimedia/hyperswitch/message"
)

type requestOptions struct {
	method string
}

func newRequestCmd() *cobra.Command {
	opts := requestOptions{method: "get"}
	cmd := &cobra.Command{
		Use:   "request <spec-file> <path>",
		Short: "Issue one dry-run request against a spec file's route tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			cfg := hyperswitch.DefaultConfig()
			cfg.Spec = doc
			cfg.SkipResources = true
			cfg.DisableHandlers = true

			eng, err := hyperswitch.New(cfg, nil, nil, nil)
			if err != nil {
				return fmt.Errorf("loading %s: %w", args[0], err)
			}

			req := message.NewRequest(args[1])
			req.Method = opts.method
			resp, err := eng.Request(req)
			if err != nil {
				return err
			}
			return printResponse(cmd, resp)
		},
	}
	cmd.Flags().StringVarP(&opts.method, "method", "X", "get", "HTTP method")
	return cmd
}

func printResponse(cmd *cobra.Command, resp *message.Response) error {
	fmt.Fprintf(cmd.OutOrStdout(), "status: %d\n", resp.Status)
	if resp.Body == nil {
		return nil
	}
	obj, err := message.AsObject(resp.Body)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
