package main

import (
	"fmt"
	"strings"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"github.com/spf13/cobra"
)

func normalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <descritor>",
		Short: "Mostra a forma de pagamento reconhecida para um texto livre",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), service.NormalizePaymentMethod(strings.Join(args, " ")))
		},
	}
}
