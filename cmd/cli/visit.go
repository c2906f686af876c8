package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/omikuji/internal/config"
	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/fortune"
	"github.com/and161185/omikuji/internal/journal"
	"github.com/and161185/omikuji/internal/line"
	"github.com/and161185/omikuji/internal/model"
	"github.com/and161185/omikuji/internal/session"
)

const defaultHistory = 10

// loginHost is the host the visit drives; the LINE host completes the
// redirect login itself.
type loginHost interface {
	session.Host
	ExchangeCode(ctx context.Context, code, state string) error
}

type historian interface {
	History(ctx context.Context, idToken string, limit int) ([]model.Draw, error)
}

// visit is one interactive mini-app visit.
type visit struct {
	ctl    *session.Controller
	host   loginHost
	ledger historian // nil without a ledger
	out    io.Writer
	json   bool
}

func newVisitCmd(cfg *config.CLI) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "visit",
		Short: "Start an interactive visit",
		Long: `Start an interactive visit. Type "help" at the prompt for commands.

Login uses the redirect flow: "login" prints the authorization URL; after
approving, paste the URL LINE redirected to with "callback <url>".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runVisit(ctx, cfg, asJSON, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

func runVisit(ctx context.Context, cfg *config.CLI, asJSON bool, in io.Reader, out io.Writer) error {
	log, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	deck, err := fortune.Lookup(cfg.Deck)
	if err != nil {
		return err
	}

	dir := cfg.ConfigDir
	if dir == "" {
		dir = line.ConfigDir()
	}
	var passphrase []byte
	if cfg.Passphrase != "" {
		passphrase = []byte(cfg.Passphrase)
	}
	host := line.New(line.Config{
		ChannelID:      cfg.ChannelID,
		ChannelSecret:  cfg.ChannelSecret,
		RedirectURL:    cfg.RedirectURL,
		MessagingToken: cfg.MessagingToken,
		InClient:       cfg.InClient,
		Scopes:         cfg.Scopes,
	}, line.NewStore(dir, passphrase), printRedirect(out), line.WithLogger(log.Named("line")))

	opts := []session.Option{session.WithLogger(log.Named("session"))}
	v := &visit{host: host, out: out, json: asJSON}
	if cfg.LedgerAddr != "" {
		j, conn, err := journal.Dial(cfg.LedgerAddr, cfg.LedgerTLS, cfg.Scopes, journal.WithLogger(log.Named("journal")))
		if err != nil {
			return err
		}
		defer conn.Close()
		opts = append(opts, session.WithJournal(j))
		v.ledger = j
	}
	v.ctl = session.New(host, fortune.NewDrawer(deck, nil), opts...)
	return v.run(ctx, in)
}

func printRedirect(w io.Writer) line.Redirector {
	return func(_ context.Context, u string) error {
		_, err := fmt.Fprintf(w, "Open this URL to log in with LINE:\n  %s\nthen paste the redirected URL: callback <url>\n", u)
		return err
	}
}

// run initializes the session and reads commands until quit, EOF or ctx is done.
func (v *visit) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := v.ctl.Init(ctx); err != nil {
		v.report(err)
	}
	v.status()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		fmt.Fprint(v.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(v.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(v.out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if v.exec(ctx, l) {
				return nil
			}
		}
	}
}

// exec runs one command line and reports whether the visit is over.
func (v *visit) exec(ctx context.Context, l string) bool {
	fields := strings.Fields(l)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	var err error
	switch cmd {
	case "quit", "exit":
		return true
	case "help", "?":
		v.help()
		return false
	case "status":
		v.status()
		return false
	case "login":
		err = v.ctl.StartLogin(ctx)
	case "callback":
		err = v.callback(ctx, args)
	case "proceed", "yes":
		err = v.ctl.Proceed(ctx)
	case "draw":
		var f model.Fortune
		if f, err = v.ctl.Draw(ctx); err == nil {
			fmt.Fprintf(v.out, "%s\n%s\n", f.Title, f.Message)
			return false
		}
	case "share":
		var m session.ShareMethod
		if m, err = v.ctl.Share(ctx); err == nil && m != session.ShareUnsupported {
			fmt.Fprintf(v.out, "shared (%s)\n", m)
		}
	case "logout", "no":
		err = v.ctl.Logout(ctx)
	case "history":
		err = v.history(ctx, args)
		if err == nil {
			return false
		}
	case "reload":
		err = v.ctl.Init(ctx)
	default:
		fmt.Fprintf(v.out, "unknown command %q, try help\n", cmd)
		return false
	}
	if err != nil {
		v.report(err)
	}
	v.status()
	return false
}

// callback completes the redirect login and re-runs initialization, which
// lands in SessionPresentUnconfirmed like any other existing session.
func (v *visit) callback(ctx context.Context, args []string) error {
	var code, state string
	switch len(args) {
	case 1:
		u, err := url.Parse(args[0])
		if err != nil {
			return fmt.Errorf("callback: %w", err)
		}
		q := u.Query()
		if e := q.Get("error"); e != "" {
			return fmt.Errorf("callback: login refused: %s %s", e, q.Get("error_description"))
		}
		code, state = q.Get("code"), q.Get("state")
	case 2:
		code, state = args[0], args[1]
	default:
		return errors.New("usage: callback <redirected url> | callback <code> <state>")
	}
	if err := v.host.ExchangeCode(ctx, code, state); err != nil {
		return err
	}
	return v.ctl.Init(ctx)
}

func (v *visit) history(ctx context.Context, args []string) error {
	if v.ledger == nil {
		return errors.New("history: no ledger configured")
	}
	if v.ctl.State() != session.Authenticated {
		return errs.ErrNotAuthenticated
	}
	limit := defaultHistory
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("history: bad limit %q", args[0])
		}
		limit = n
	}
	draws, err := v.ledger.History(ctx, v.host.IDToken(), limit)
	if err != nil {
		return err
	}
	if v.json {
		printJSON(v.out, draws)
		return nil
	}
	if len(draws) == 0 {
		fmt.Fprintln(v.out, "no draws yet")
	}
	for _, d := range draws {
		fmt.Fprintf(v.out, "%s  %-9s %s\n", d.DrawnAt.Local().Format(time.DateTime), d.Deck, d.Title)
	}
	return nil
}

type statusView struct {
	State    string         `json:"state"`
	Name     string         `json:"name,omitempty"`
	Email    string         `json:"email,omitempty"`
	InClient bool           `json:"in_client"`
	CanShare bool           `json:"can_share"`
	Fortune  *model.Fortune `json:"fortune,omitempty"`
	Message  string         `json:"message,omitempty"`
}

func (v *visit) status() {
	s := v.ctl.Snapshot()
	view := statusView{State: s.State.String(), Fortune: s.Fortune, Message: s.Message}
	if s.Profile != nil {
		view.Name = s.Profile.DisplayName
	}
	if s.Claims != nil {
		view.Email = s.Claims.Email
	}
	if s.Capabilities != nil {
		view.InClient = s.Capabilities.InClient
		view.CanShare = s.Capabilities.CanShare
	}
	if v.json {
		printJSON(v.out, view)
		return
	}

	fmt.Fprintf(v.out, "[%s]", view.State)
	if view.Name != "" {
		fmt.Fprintf(v.out, " %s", view.Name)
	}
	if view.Email != "" {
		fmt.Fprintf(v.out, " <%s>", view.Email)
	}
	fmt.Fprintln(v.out)
	if view.Message != "" {
		fmt.Fprintln(v.out, view.Message)
	}
	switch s.State {
	case session.NoSession:
		fmt.Fprintln(v.out, `Not logged in. Type "login".`)
	case session.SessionPresentUnconfirmed:
		fmt.Fprintln(v.out, `A LINE session exists. Share your profile with this app? "proceed" or "logout".`)
	}
}

func (v *visit) report(err error) {
	var se *session.Error
	switch {
	case errors.Is(err, errs.ErrBusy):
		fmt.Fprintln(v.out, "busy, try again")
	case errors.Is(err, errs.ErrNotAuthenticated):
		fmt.Fprintln(v.out, "log in and proceed first")
	case errors.Is(err, errs.ErrNoFortune):
		fmt.Fprintln(v.out, `nothing to share yet, "draw" first`)
	case errors.Is(err, errs.ErrInvalidTransition):
		fmt.Fprintf(v.out, "not now: %v\n", err)
	case errors.As(err, &se):
		// the controller already put the user-facing text in the message slot
	default:
		fmt.Fprintf(v.out, "error: %v\n", err)
	}
}

func (v *visit) help() {
	fmt.Fprint(v.out, `Commands:
  status                      show the session
  login                       start LINE Login
  callback <url>              finish login with the redirected URL
  callback <code> <state>
  proceed                     share your profile with the app
  draw                        draw a fortune
  share                       share the last fortune
  history [n]                 recent draws from the ledger
  logout                      log out (or decline)
  reload                      run initialization again
  quit
`)
}

var _ loginHost = (*line.Host)(nil)
