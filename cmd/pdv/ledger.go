package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func ledgerCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Lista os lançamentos recentes e os fiados em aberto",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := newLogger()
			defer func() { _ = logger.Sync() }()

			store, err := initStore(ctx, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			storeID := viper.GetString("store.id")
			txs, err := store.Transactions(ctx, storeID, time.Now().Add(-since))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			debts, err := store.OpenDebts(ctx, storeID)
			if err != nil {
				return fmt.Errorf("failed to list debts: %w", err)
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "QUANDO\tTIPO\tVALOR\tPAGAMENTO\tDESCRIÇÃO")
			for _, tx := range txs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					tx.CreatedAt.Local().Format("02/01 15:04"),
					kindLabel(tx.Type),
					service.FormatBRL(tx.Amount),
					tx.PaymentMethod,
					tx.Description,
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if len(debts) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CLIENTE\tFIADO\tDESCRIÇÃO")
			for _, d := range debts {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.CustomerName, service.FormatBRL(d.Amount), d.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to list transactions")
	return cmd
}

func kindLabel(t domain.TransactionType) string {
	if t == domain.TransactionExpense {
		return "despesa"
	}
	return "venda"
}
