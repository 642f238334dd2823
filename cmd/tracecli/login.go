package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "setup",
	Short:   "Authenticate with the hosted service",
	Long: `Prints an authorization URL to visit in a browser, then exchanges the
code pasted back for an access token. This is the headless flow: no local
callback server, no browser automation.`,
	RunE: runE(runLogin),
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "setup",
	Short:   "Clear stored credentials",
	RunE:    runE(runLogout),
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(ctx context.Context, cmd *cobra.Command, args []string) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	authURL := d.cfg.ControlPlaneURL() + "/oauth/authorize/?" + url.Values{
		"client_id":     {d.cfg.ClientID},
		"response_type": {"code"},
	}.Encode()

	fmt.Printf("Open this URL in a browser and approve access:\n\n  %s\n\n", authURL)
	fmt.Print("Paste the authorization code: ")

	code, err := readCode(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading authorization code: %w", err)
	}
	if code == "" {
		return fmt.Errorf("no authorization code entered")
	}

	if err := d.tokens.ExchangeCode(ctx, code); err != nil {
		return err
	}
	fmt.Println("Logged in.")
	return nil
}

// readCode reads the pasted authorization code without echoing it when
// stdin is an interactive terminal (the code is a one-time bearer secret,
// not something that belongs in scrollback or shell history). Falls back
// to a plain line read when stdin is redirected (scripts, tests).
func readCode(stdin *os.File) (string, error) {
	if term.IsTerminal(int(stdin.Fd())) {
		b, err := term.ReadPassword(int(stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runLogout(ctx context.Context, cmd *cobra.Command, args []string) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.tokens.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}
