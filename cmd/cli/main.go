// Command omikuji is a terminal client for the omikuji mini-app: it runs a
// consent-gated visit against LINE Login and draws and shares fortunes.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/omikuji/internal/config"
	"github.com/and161185/omikuji/internal/fortune"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.LoadCLI()
	if err != nil {
		fail(err)
	}
	if err := newRootCmd(&cfg).Execute(); err != nil {
		fail(err)
	}
}

// newRootCmd builds the command tree. Flags default to the values in cfg.
func newRootCmd(cfg *config.CLI) *cobra.Command {
	root := &cobra.Command{
		Use:   "omikuji",
		Short: "Draw and share fortunes as a LINE mini-app",
		Long: `omikuji runs a mini-app visit against LINE Login.

A stored LINE session is never used until you confirm it with "proceed".

Environment Variables:
  LINE_CHANNEL_ID       LINE Login channel id
  LINE_CHANNEL_SECRET   channel secret (verifies ID tokens)
  LINE_REDIRECT_URL     callback URL registered for the channel
  LINE_MESSAGING_TOKEN  Messaging API token (direct messages)
  OMIKUJI_LEDGER_ADDR   ledger gRPC address (optional)
  OMIKUJI_PASSPHRASE    seals the stored credential`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.ChannelID, "channel-id", cfg.ChannelID, "LINE Login channel id")
	pf.StringVar(&cfg.ChannelSecret, "channel-secret", cfg.ChannelSecret, "LINE Login channel secret")
	pf.StringVar(&cfg.RedirectURL, "redirect-url", cfg.RedirectURL, "registered callback URL")
	pf.StringVar(&cfg.MessagingToken, "messaging-token", cfg.MessagingToken, "Messaging API channel access token")
	pf.StringSliceVar(&cfg.Scopes, "scopes", cfg.Scopes, "LINE Login scopes")
	pf.BoolVar(&cfg.InClient, "in-client", cfg.InClient, "pretend the app was opened from a LINE chat")
	pf.StringVar(&cfg.Deck, "deck", cfg.Deck, "fortune deck ("+strings.Join(fortune.Names(), ", ")+")")
	pf.StringVar(&cfg.LedgerAddr, "ledger", cfg.LedgerAddr, "ledger address; empty disables the ledger")
	pf.BoolVar(&cfg.LedgerTLS, "ledger-tls", cfg.LedgerTLS, "use TLS for the ledger connection")
	pf.StringVar(&cfg.ConfigDir, "config-dir", cfg.ConfigDir, "credential directory (default $XDG_CONFIG_HOME/omikuji)")
	pf.BoolVar(&cfg.Debug, "debug", cfg.Debug, "debug logging")

	root.AddCommand(
		newVisitCmd(cfg),
		newDecksCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "omikuji %s (%s)\n", version, buildDate)
		},
	}
}

func newDecksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decks",
		Short: "List fortune decks",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range fortune.Names() {
				if name == fortune.DeckOmikuji {
					name += " (default)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

// newLogger logs to stderr at warn level, or debug level with --debug.
func newLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.OutputPaths = []string{"stderr"}
	if !debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		zc.DisableStacktrace = true
	}
	return zc.Build()
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	if s, ok := status.FromError(err); ok && s.Code() != codes.OK {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
