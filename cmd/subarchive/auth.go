package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"subarchive/pkg/auth"
	"subarchive/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored API tokens",
	Long: `Manage stored Reddit API tokens.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - SUBARCHIVE_ACCESS_TOKEN (read only)`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store an API token",
	Long: `Store a bearer token under a name. The token is read without echo.

Without a name the account is stored as "default".`,
	Example: `  subarchive auth login
  subarchive auth login archive-bot`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"logout"},
	Short:   "Remove a stored account",
	Args:    cobra.ExactArgs(1),
	RunE:    runDelete,
}

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to obtain an API token",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		auth.ShowTokenGuide(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(deleteCmd)
	authCmd.AddCommand(guideCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	name := "default"
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	account, err := promptAccount(cmd.InOrStdin(), cmd.OutOrStdout(), name)
	if err != nil {
		return err
	}
	if err := manager.Store(account); err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.Success(fmt.Sprintf("Account saved: %s", account.Name))
	if auth.IsKeyringAvailable() {
		p.Info("Stored in", "system keychain")
	} else {
		p.Info("Stored in", "encrypted file")
	}
	return nil
}

// promptAccount reads the token without echo when in is a terminal
func promptAccount(in io.Reader, out io.Writer, name string) (*auth.Account, error) {
	reader := bufio.NewReader(in)

	fmt.Fprint(out, "Access token: ")
	token, err := readSecret(in, reader)
	fmt.Fprintln(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return nil, errors.New("access token is required, see 'subarchive auth guide'")
	}

	fmt.Fprint(out, "User agent (Enter to keep the default): ")
	userAgent, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read user agent: %w", err)
	}

	return &auth.Account{
		Name:        name,
		AccessToken: token,
		UserAgent:   strings.TrimSpace(userAgent),
	}, nil
}

func readSecret(in io.Reader, reader *bufio.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	accounts, err := manager.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(accounts) == 0 {
		ui.NewPrinter(out).Warning("No stored accounts. Run 'subarchive auth login' to add one.")
		return nil
	}

	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		s := auth.SanitizeAccount(a)
		rows = append(rows, []string{s.Name, s.AccessToken, s.UserAgent, s.LastModified.Format("2006-01-02 15:04")})
	}
	fmt.Fprintln(out, ui.Table(out, []string{"NAME", "TOKEN", "USER AGENT", "MODIFIED"}, rows))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.NewPrinter(cmd.OutOrStdout()).Success(fmt.Sprintf("Removed account: %s", args[0]))
	return nil
}
