package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/students-api/internal/apidocs"
)

func newOpenAPICmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				out []byte
				err error
			)
			switch strings.ToLower(format) {
			case "json":
				out, err = apidocs.JSON(cmd.Context())
			case "yaml", "yml":
				out, err = apidocs.YAML(cmd.Context())
			default:
				return fmt.Errorf("unsupported format %q (want json or yaml)", format)
			}
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(out)))
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	return cmd
}
