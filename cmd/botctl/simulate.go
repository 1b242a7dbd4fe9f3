package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/wa-autoresponder/cmd/mainconfig"
	"github.com/wolfman30/wa-autoresponder/internal/app/bootstrap"
	"github.com/wolfman30/wa-autoresponder/internal/llm"
	"github.com/wolfman30/wa-autoresponder/internal/messaging"
	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
	"github.com/wolfman30/wa-autoresponder/internal/orchestrator"
)

// offlineGenerator echoes the steering instruction instead of calling a model,
// which is enough to walk the slot-filling flow without credentials.
type offlineGenerator struct{}

func (offlineGenerator) Generate(_ context.Context, prompt llm.Prompt) (string, error) {
	if len(prompt.System) == 0 {
		return "[offline]", nil
	}
	return "[offline] " + prompt.System[len(prompt.System)-1], nil
}

func newSimulateCmd(e *env) *cobra.Command {
	var (
		offline        bool
		conversationID string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Chat with the assistant locally using an in-memory conversation store",
		Long: "simulate runs the full orchestrator against an in-memory store and prints replies " +
			"instead of sending them. Type /state to see the negotiation, /reset to start over, /quit to leave.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := e.loadConfig()
			logger := e.logger(cfg)

			var generator orchestrator.Generator = offlineGenerator{}
			if !offline {
				awsCfg, err := mainconfig.LoadAWSConfig(cmd.Context(), cfg)
				if err != nil {
					return fmt.Errorf("load aws config: %w", err)
				}
				dispatcher, cleanup, err := mainconfig.BuildDispatcher(cmd.Context(), cfg, awsCfg, logger, nil)
				if err != nil {
					return err
				}
				defer cleanup()
				generator = dispatcher
			}

			out := cmd.OutOrStdout()
			sender := messaging.SenderFunc(func(_ context.Context, _ string, text string) error {
				_, err := fmt.Fprintf(out, "bot> %s\n", text)
				return err
			})
			orch := orchestrator.New(
				negotiation.NewMemoryStore(logger),
				negotiation.NewMachine(bootstrap.NegotiationPolicy(cfg), nil),
				generator,
				sender,
				orchestrator.WithLogger(logger),
				orchestrator.WithAck(cfg.AckText),
				orchestrator.WithPromptBuilder(orchestrator.NewPromptBuilder(orchestrator.Profile{
					Name:       cfg.ProviderName,
					Website:    cfg.ProviderWebsite,
					Schedule:   cfg.ProviderSchedule,
					ExtraAreas: cfg.ProviderAreas,
					Rates:      cfg.ProviderRates,
				}, cfg.Persona)),
			)
			return runSimulation(cmd.Context(), orch, conversationID, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "do not call any model backend")
	cmd.Flags().StringVar(&conversationID, "conversation", "simulator", "conversation id to use")
	return cmd
}

func runSimulation(ctx context.Context, orch *orchestrator.Orchestrator, id string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "you> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		case "/reset":
			if err := orch.Reset(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(out, "-- conversation reset")
		case "/state":
			st, ok, err := orch.Conversation(ctx, id)
			if err != nil {
				return err
			}
			printState(out, st, ok)
		default:
			turn, err := orch.HandleInbound(ctx, orchestrator.Inbound{
				ConversationID: id,
				Channel:        "terminal",
				Text:           line,
				ReceivedAt:     time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "-- %s\n", turn.Outcome)
		}
		fmt.Fprint(out, "you> ")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func printState(out io.Writer, st negotiation.State, ok bool) {
	if !ok {
		fmt.Fprintln(out, "-- no conversation yet")
		return
	}
	for _, slot := range negotiation.AllSlots {
		v := st.Slot(slot)
		value := "-"
		if v.Filled() {
			value = v.Value
		}
		fmt.Fprintf(out, "-- %-8s %s\n", slot, value)
	}
	fmt.Fprintf(out, "-- closed=%t muted=%t\n", st.Closed, st.Muted(time.Now()))
}
