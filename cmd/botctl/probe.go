package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/wa-autoresponder/cmd/mainconfig"
	"github.com/wolfman30/wa-autoresponder/internal/llm"
)

const probeMessage = "Reply with the single word: ok"

type probeResult struct {
	ID      string
	Model   string
	Latency time.Duration
	Reply   string
	Err     error
}

// probeBackends sends one short request to every backend, skipping the
// dispatcher so each is tested on its own.
func probeBackends(ctx context.Context, backends []llm.Backend, timeout time.Duration) []probeResult {
	results := make([]probeResult, 0, len(backends))
	for _, b := range backends {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		resp, err := b.Client.Complete(reqCtx, llm.Request{
			Model:       b.Model,
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: probeMessage}},
			MaxTokens:   16,
			Temperature: 0,
		})
		cancel()
		results = append(results, probeResult{
			ID:      b.ID,
			Model:   b.Model,
			Latency: time.Since(start),
			Reply:   resp.Text,
			Err:     err,
		})
	}
	return results
}

func newProbeCmd(e *env) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send a test prompt to each configured model backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := e.loadConfig()
			specs, err := cfg.LoadBackends()
			if err != nil {
				return err
			}
			awsCfg, err := mainconfig.LoadAWSConfig(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("load aws config: %w", err)
			}
			backends, cleanup, err := mainconfig.BuildBackends(cmd.Context(), specs, awsCfg)
			if err != nil {
				return err
			}
			defer cleanup()

			failed := 0
			w := cmd.OutOrStdout()
			for _, r := range probeBackends(cmd.Context(), backends, timeout) {
				status := "ok"
				detail := r.Reply
				if r.Err != nil {
					failed++
					status = "FAIL"
					if llm.IsTransient(r.Err) {
						status = "FAIL (transient)"
					}
					detail = r.Err.Error()
				}
				fmt.Fprintf(w, "%-12s %-32s %-16s %6dms  %s\n", r.ID, r.Model, status, r.Latency.Milliseconds(), detail)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d backends failed", failed, len(backends))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "per-backend request timeout")
	return cmd
}
