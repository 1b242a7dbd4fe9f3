package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/wa-autoresponder/internal/extract"
)

type extractOutput struct {
	Place   *matchOutput `json:"place"`
	Time    *matchOutput `json:"time"`
	Day     *matchOutput `json:"day"`
	Payment *matchOutput `json:"payment"`
}

type matchOutput struct {
	Value string `json:"value"`
	Kind  string `json:"kind"`
}

func toMatchOutput(m extract.Match) *matchOutput {
	if !m.Found() {
		return nil
	}
	return &matchOutput{Value: m.Value, Kind: m.Kind.String()}
}

func newExtractCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "extract <text...>",
		Short: "Show the place, time and payment facts found in a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ents := extract.Extract(strings.Join(args, " "))
			out := extractOutput{
				Place:   toMatchOutput(ents.Place),
				Time:    toMatchOutput(ents.Time),
				Day:     toMatchOutput(ents.Day),
				Payment: toMatchOutput(ents.Payment),
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			w := cmd.OutOrStdout()
			for _, row := range []struct {
				name  string
				match *matchOutput
			}{
				{"place", out.Place},
				{"time", out.Time},
				{"day", out.Day},
				{"payment", out.Payment},
			} {
				if row.match == nil {
					fmt.Fprintf(w, "%-8s -\n", row.name)
					continue
				}
				fmt.Fprintf(w, "%-8s %s (%s)\n", row.name, row.match.Value, row.match.Kind)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
