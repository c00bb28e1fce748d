package main

import (
	"fmt"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Emite um token de acesso para a API (AUTH_ENABLED=true)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := viper.GetString("jwt.secret")
			if secret == "" {
				return fmt.Errorf("jwt secret not set (PDV_JWT_SECRET or jwt.secret)")
			}
			token, err := service.NewTokenService(secret, viper.GetDuration("jwt.ttl")).
				SignAccessToken(viper.GetString("store.id"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().String("secret", "", "HMAC secret (same as the server's JWT_SECRET)")
	cmd.Flags().Duration("ttl", 0, "token lifetime (default 12h)")
	_ = viper.BindPFlag("jwt.secret", cmd.Flags().Lookup("secret"))
	_ = viper.BindPFlag("jwt.ttl", cmd.Flags().Lookup("ttl"))
	return cmd
}
