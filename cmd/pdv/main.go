// Command pdv is the operator CLI: it captures a sale or expense from the
// terminal into the local SQLite ledger and lists what was recorded.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdv",
		Short: "Captura de vendas e despesas do PDV",
		Long: `pdv registra lançamentos no caixa local a partir de uma frase:

  pdv capture "vendi 2 camisas por 50 reais cada no pix" --yes

Sem --yes o rascunho é só exibido para conferência.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/pdv/config.yaml)")
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("db", "data/pdv.db", "SQLite ledger path")
	root.PersistentFlags().String("store", "local", "store id written on every record")

	_ = viper.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("database.path", root.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("store.id", root.PersistentFlags().Lookup("store"))

	root.AddCommand(captureCmd())
	root.AddCommand(normalizeCmd())
	root.AddCommand(ledgerCmd())
	root.AddCommand(tokenCmd())
	return root
}

func main() {
	_ = config.LoadDotEnv(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/pdv")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("classifier.url", "http://localhost:8090")
	viper.SetDefault("classifier.max_retries", 2)
	viper.SetDefault("classifier.retry_delay", "1s")
	viper.SetDefault("classifier.timeout", "10s")

	// PDV_DATABASE_PATH, PDV_CLASSIFIER_URL, PDV_JWT_SECRET ...
	viper.SetEnvPrefix("PDV")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}
