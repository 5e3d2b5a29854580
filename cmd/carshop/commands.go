package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/agent"
	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/MimeLyc/carshop-agent/internal/llm"
	"github.com/MimeLyc/carshop-agent/pkg/log"
	"github.com/spf13/cobra"
)

type chatOptions struct {
	token string
}

func newChatCmd() *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Long: `Start an interactive conversation with the assistant. Each line is one turn;
replies stream as they are generated and the last turns are kept as
context; type "reset" to start over. Pass --token to act as a signed-in user
so test drives can be scheduled.

Examples:
  carshop chat
  carshop chat --token "$(carshop session u-123)"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireLLM(); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if opts.token != "" {
				user, err := a.resolver.Resolve(ctx, opts.token)
				if err != nil {
					return err
				}
				ctx = identity.WithUser(ctx, user)
			}

			outbox := a.outboxService()
			if err := outbox.Start(); err != nil {
				return err
			}
			defer outbox.Stop()
			return runChat(ctx, a.agent, llm.NewHistory(chatHistoryWindow), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.token, "token", "", "Session token of the user to chat as")
	return cmd
}

// chatHistoryWindow bounds the messages replayed to the model each turn.
const chatHistoryWindow = 20

// runChat reads one user turn per line and streams each reply. The last
// turns are replayed from history; "reset" clears it.
func runChat(ctx context.Context, a agent.Agent, history *llm.History, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "exit", "quit":
			return nil
		case "reset":
			history.Clear()
			fmt.Fprint(out, "history cleared\n> ")
			continue
		}

		var reply strings.Builder
		req := agent.ChatRequest{UserMessage: line, ChatHistory: historyMessages(history)}
		err := a.Stream(ctx, req, func(ev agent.Event) error {
			switch ev.Type {
			case agent.EventTextDelta:
				reply.WriteString(ev.Delta)
				_, err := io.WriteString(out, ev.Delta)
				return err
			case agent.EventToolInput:
				_, err := fmt.Fprintf(out, "[%s %s]\n", ev.ToolName, ev.Input)
				return err
			case agent.EventError:
				_, err := fmt.Fprintf(out, "\n[error] %s", ev.ErrorText)
				return err
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(out, "\n[error] %v", err)
		}
		fmt.Fprint(out, "\n> ")

		if ctx.Err() != nil {
			return nil
		}
		history.Add(
			llm.Message{Role: llm.RoleUser, Content: line},
			llm.Message{Role: llm.RoleAssistant, Content: reply.String()},
		)
		log.Debug("chat history holds %d messages", history.Len())
	}
	return scanner.Err()
}

func historyMessages(h *llm.History) []agent.HistoryMessage {
	msgs := h.Messages()
	out := make([]agent.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, agent.HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func newAuditCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Sweep the catalog for malformed drive types once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			auditor, err := catalog.NewAuditor(store, cfg.Audit.CronExpr, catalog.WithRepair(repair || cfg.Audit.Repair))
			if err != nil {
				return err
			}
			report, err := auditor.Run(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), printJSON(report))
			return err
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Write repaired drive type and transmission values back")
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <trims.json>",
		Short: "Load trim rows from a JSON file",
		Long: `Insert or update catalog rows from a JSON array of trim records. Rows are
matched on trim_id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cards, err := readTrims(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.UpsertTrims(cmd.Context(), cards); err != nil {
				return fmt.Errorf("failed to load trims: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d trims\n", len(cards))
			return nil
		},
	}
}

func readTrims(path string) ([]catalog.CarCard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cards []catalog.CarCard
	if err := json.Unmarshal(data, &cards); err != nil {
		return nil, fmt.Errorf("invalid trims file %s: %w", path, err)
	}
	for i, c := range cards {
		if c.TrimID <= 0 {
			return nil, fmt.Errorf("invalid trims file %s: row %d has no trim_id", path, i)
		}
	}
	return cards, nil
}

func newSessionCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "session <user-id>",
		Short: "Issue a session token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			token, err := store.CreateSession(cmd.Context(), args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "How long the token stays valid")
	return cmd
}
