package main

import (
	"encoding/json"
	"fmt"
	"strings"

	chatservice "github.com/boddenberg/pdv-assistant-bfa-go/internal/chat/service"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/port"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func captureCmd() *cobra.Command {
	var (
		contextTag string
		commit     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "capture <texto>",
		Short: "Classifica uma frase e mostra (ou salva) o rascunho",
		Long: `Envia a frase ao classificador, junta as ações num único rascunho e o
exibe. Com --yes o rascunho é gravado no caixa local.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer func() { _ = logger.Sync() }()

			store, err := initStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return runCapture(cmd, logger, newClassifier(logger), store, strings.Join(args, " "), contextTag, commit, asJSON)
		},
	}

	cmd.Flags().StringVar(&contextTag, "context", domain.ContextQuickCapture, "classifier context (quick-capture, chat)")
	cmd.Flags().BoolVarP(&commit, "yes", "y", false, "save the draft without asking")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the draft as JSON")
	return cmd
}

func runCapture(cmd *cobra.Command, logger *zap.Logger, classifier port.Classifier, store port.LedgerStore, text, contextTag string, commit, asJSON bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	metrics := observability.NewMetrics()

	rs := service.NewReviewSession(viper.GetString("store.id"), contextTag, service.ReviewSessionDeps{
		Classifier: classifier,
		Committer:  service.NewCommitCoordinator(store, service.NewPageNavigator(), metrics, logger),
		Metrics:    metrics,
		Logger:     logger,
	})

	snap, err := rs.Submit(ctx, text)
	if err != nil {
		if snap != nil && snap.Message != "" {
			return fmt.Errorf("%s", snap.Message)
		}
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap.Draft); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, chatservice.Summarize(snap.Draft))
	}

	if !commit {
		return nil
	}

	snap, err = rs.Commit(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", domain.UserMessage(err), err)
	}

	c := snap.Committed
	switch {
	case c.Route != "":
		fmt.Fprintf(out, "Abra %s\n", c.Route)
	case c.ServiceOrderID != "":
		fmt.Fprintf(out, "%s (ordem %s)\n", snap.Message, c.ServiceOrderID)
	case c.TransactionID != "":
		fmt.Fprintf(out, "%s (lançamento %s)\n", snap.Message, c.TransactionID)
	default:
		fmt.Fprintln(out, snap.Message)
	}
	if c.DebtID != "" {
		fmt.Fprintf(out, "Fiado registrado (%s)\n", c.DebtID)
	}
	if n := len(c.ProductIDs); n > 0 {
		fmt.Fprintf(out, "%d produto(s) no estoque\n", n)
	}
	return nil
}
