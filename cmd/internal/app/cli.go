package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"nitroshare/cmd/internal/auth/session"
	"nitroshare/cmd/internal/register"
	"nitroshare/cmd/internal/router"
)

const (
	defaultSiteName   = "nitro_share"
	loginHint         = "run 'nitroshare login --username <name> --password-stdin'"
	minPasswordLength = register.MinPasswordLength

	// exitRedirected is returned when the auth guard sends a command to login.
	exitRedirected = 2
)

// ExitError signals a non-zero exit code for an outcome the command has
// already reported on its own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit code %d", e.Code) }

// ExitCode returns the process exit code.
func (e *ExitError) ExitCode() int { return e.Code }

// Command is one CLI verb. Route names the navigation target the command
// enters; the route guards run before Run. An empty Route is unguarded.
type Command struct {
	Name    string
	Summary string
	Usage   string
	Route   string

	// Flags returns the command's flag set. Nil means no flags.
	Flags func() *pflag.FlagSet

	Run func(ctx context.Context, args []string) error
}

// IO bundles the standard streams a command reads and writes.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Commands returns the command table bound to a.
func (a *App) Commands(s IO) []*Command {
	return []*Command{
		a.loginCommand(s),
		a.logoutCommand(s),
		a.meCommand(s),
		a.configCommand(s),
		a.checkCommand(s),
		a.registerCommand(s),
		a.serveCommand(),
		a.routesCommand(s),
	}
}

// Execute dispatches args[0] to its command after running the route guards.
func (a *App) Execute(ctx context.Context, args []string, s IO) error {
	cmds := a.Commands(s)
	if len(args) == 0 {
		printUsage(s.Err, cmds)
		return errors.New("command required")
	}

	var cmd *Command
	for _, c := range cmds {
		if c.Name == args[0] {
			cmd = c
			break
		}
	}
	if cmd == nil {
		return fmt.Errorf("unknown command %q\n\nRun 'nitroshare --help' for usage.", args[0])
	}

	rest := args[1:]
	if cmd.Flags != nil {
		fs := cmd.Flags()
		fs.SetOutput(io.Discard)
		if err := fs.Parse(rest); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				fmt.Fprintf(s.Out, "%s\n\nUsage: %s\n\nFlags:\n%s", cmd.Summary, cmd.Usage, fs.FlagUsages())
				return nil
			}
			return fmt.Errorf("%s: %w\n\nUsage: %s", cmd.Name, err, cmd.Usage)
		}
		rest = fs.Args()
	}

	if cmd.Route != "" {
		nav, err := a.router.Navigate(cmd.Route)
		if err != nil {
			return err
		}
		if nav.Redirected() {
			fmt.Fprintf(s.Err, "%s requires a session; %s\n", cmd.Name, loginHint)
			return &ExitError{Code: exitRedirected}
		}
	}

	return cmd.Run(ctx, rest)
}

func printUsage(w io.Writer, cmds []*Command) {
	fmt.Fprintln(w, "Usage: nitroshare [global flags] <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range cmds {
		fmt.Fprintf(tw, "  %s\t%s\n", c.Name, c.Summary)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprint(w, globalFlags(&globalOptions{}).FlagUsages())
}

func (a *App) loginCommand(s IO) *Command {
	var (
		username      string
		passwordStdin bool
	)
	return &Command{
		Name:    "login",
		Summary: "Log in and persist the session",
		Usage:   "nitroshare login --username <name> --password-stdin",
		Route:   router.RouteLogin,
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
			fs.StringVarP(&username, "username", "u", "", "account username or email")
			fs.BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if strings.TrimSpace(username) == "" {
				return errors.New("login: --username is required")
			}
			lines, err := readSecrets(s.In, passwordStdin, 1)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}

			u, err := a.sessions.Authenticate(ctx, a.api, username, lines[0])
			if err != nil {
				if errors.Is(err, session.ErrInvalidCredentials) {
					fmt.Fprintln(s.Err, "login failed: invalid username or password")
					return &ExitError{Code: 1}
				}
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(s.Out, "logged in as %s\n", u.Username)
			return nil
		},
	}
}

func (a *App) logoutCommand(s IO) *Command {
	return &Command{
		Name:    "logout",
		Summary: "End the session locally and on the backend",
		Usage:   "nitroshare logout",
		Route:   router.RouteHome,
		Run: func(ctx context.Context, _ []string) error {
			a.sessions.Logout(ctx)
			fmt.Fprintln(s.Out, "logged out")
			return nil
		},
	}
}

func (a *App) meCommand(s IO) *Command {
	var asJSON bool
	return &Command{
		Name:    "me",
		Summary: "Show the logged in user",
		Usage:   "nitroshare me [--json]",
		Route:   router.RouteProfile,
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("me", pflag.ContinueOnError)
			fs.BoolVar(&asJSON, "json", false, "output as JSON")
			return fs
		},
		Run: func(ctx context.Context, _ []string) error {
			u := a.sessions.UpdateUser(ctx)
			if u == nil {
				fmt.Fprintf(s.Err, "session ended; %s\n", loginHint)
				return &ExitError{Code: 1}
			}
			if asJSON {
				return writeIndented(s.Out, u)
			}
			tw := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "id\t%d\n", u.ID)
			fmt.Fprintf(tw, "username\t%s\n", u.Username)
			fmt.Fprintf(tw, "name\t%s\n", u.Name)
			fmt.Fprintf(tw, "email\t%s\n", u.Email)
			fmt.Fprintf(tw, "email verified\t%t\n", u.EmailVerified != nil)
			return tw.Flush()
		},
	}
}

func (a *App) configCommand(s IO) *Command {
	return &Command{
		Name:    "config",
		Summary: "Fetch and show the backend configuration",
		Usage:   "nitroshare config",
		Route:   router.RouteConfig,
		Run: func(ctx context.Context, _ []string) error {
			rep := a.site.Load(ctx)
			if rep == nil {
				fmt.Fprintln(s.Err, "configuration unavailable")
				return &ExitError{Code: 1}
			}
			return writeIndented(s.Out, rep)
		},
	}
}

func (a *App) checkCommand(s IO) *Command {
	return &Command{
		Name:    "check",
		Summary: "Check whether a username or email is free",
		Usage:   "nitroshare check {username|email} <value>",
		Route:   router.RouteRegister,
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return errors.New("check: expected {username|email} <value>")
			}

			var req register.CheckRequest
			switch args[0] {
			case "username":
				req = register.CheckUsername(args[1])
			case "email":
				req = register.CheckEmail(args[1])
			default:
				return fmt.Errorf("check: unknown kind %q", args[0])
			}

			st := register.CheckParam(ctx, a.api, req, a.log)
			fmt.Fprintln(s.Out, st)
			if st != register.CheckOk {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
}

func (a *App) registerCommand(s IO) *Command {
	var (
		username      string
		email         string
		passwordStdin bool
	)
	return &Command{
		Name:    "register",
		Summary: "Create an account",
		Usage:   "nitroshare register --username <name> --email <addr> --password-stdin",
		Route:   router.RouteRegister,
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
			fs.StringVarP(&username, "username", "u", "", "username (3-16 letters or digits)")
			fs.StringVarP(&email, "email", "e", "", "email address")
			fs.BoolVar(&passwordStdin, "password-stdin", false, "read the password and its confirmation from stdin, one per line")
			return fs
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			a.site.Load(ctx)
			if !a.site.RegistrationAllowed() {
				fmt.Fprintf(s.Err, "registration is disabled on %s\n", a.site.SiteName(defaultSiteName))
				return &ExitError{Code: 1}
			}

			lines, err := readSecrets(s.In, passwordStdin, 2)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}

			u, err := register.Register(ctx, a.api, register.Form{
				Username: username,
				Email:    email,
				Password: register.NewPassword{Password: lines[0], Confirmation: lines[1]},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(s.Out, "registered %s; %s\n", u.Username, loginHint)
			return nil
		},
	}
}

func (a *App) serveCommand() *Command {
	return &Command{
		Name:    "serve",
		Summary: "Run the local gateway",
		Usage:   "nitroshare serve",
		Route:   router.RouteHome,
		Run: func(ctx context.Context, _ []string) error {
			return a.Serve(ctx)
		},
	}
}

func (a *App) routesCommand(s IO) *Command {
	return &Command{
		Name:    "routes",
		Summary: "List navigation routes",
		Usage:   "nitroshare routes",
		Run: func(_ context.Context, _ []string) error {
			tw := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPATH\tAUTH")
			for _, rt := range a.router.Routes() {
				fmt.Fprintf(tw, "%s\t%s\t%t\n", rt.Name, rt.Path, rt.Meta.RequiresAuth)
			}
			return tw.Flush()
		},
	}
}

// readSecrets reads exactly n non-empty lines from r.
func readSecrets(r io.Reader, enabled bool, n int) ([]string, error) {
	if !enabled {
		return nil, errors.New("--password-stdin is required")
	}

	sc := bufio.NewScanner(r)
	out := make([]string, 0, n)
	for len(out) < n && sc.Scan() {
		out = append(out, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 || out[0] == "" {
		return nil, errors.New("empty password on stdin")
	}
	if len(out) < n {
		return nil, fmt.Errorf("expected %d lines on stdin (password, then confirmation), got %d", n, len(out))
	}
	return out, nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
