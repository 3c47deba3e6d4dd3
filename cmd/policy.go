package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/masterfile-cli/internal/policy"
	"github.com/sells-group/masterfile-cli/internal/prompt"
)

var policyCmd = &cobra.Command{
	Use:   "policy <equipment-number>",
	Short: "Show the extraction policy and prompt for an equipment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := policy.Load(cfg.Policy.File)
		if err != nil {
			return err
		}
		components, _ := cmd.Flags().GetStringSlice("component")
		formatPolicy(os.Stdout, reg, args[0], components)
		return nil
	},
}

func init() {
	policyCmd.Flags().StringSlice("component", []string{"Shell", "Head"}, "component names for the sample prompt")
	rootCmd.AddCommand(policyCmd)
}

// formatPolicy writes the resolved policy followed by the prompt it builds.
func formatPolicy(out io.Writer, reg *policy.Registry, number string, components []string) {
	p := reg.For(number)

	required := make([]string, 0, len(p.Required))
	for _, f := range p.Required {
		required = append(required, string(f))
	}

	_, _ = fmt.Fprintf(out, "Equipment:  %s\n", number)
	if !reg.Has(number) {
		_, _ = fmt.Fprintln(out, "Policy:     none configured, using full extraction")
	}
	_, _ = fmt.Fprintf(out, "Class:      %s\n", p.Class)
	_, _ = fmt.Fprintf(out, "Required:   %s\n", strings.Join(required, ", "))
	_, _ = fmt.Fprintf(out, "Insulation: %s\n", p.Insulation.Label)
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, prompt.Build(number, components, p))
}
