package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/duobook/duobook-go/internal/model"
	"github.com/duobook/duobook-go/internal/remote"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "sync",
	Short:   "Sign in to a duobook server and sync",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			email = ap.cfg.Email
		}
		if email == "" {
			if info, err := ap.store.LoginInfo(ctx); err == nil {
				email = info.Email
			}
		}
		reader := bufio.NewReader(os.Stdin)
		if email == "" {
			fmt.Fprint(ap.out, "Email: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read email: %w", err)
			}
			email = strings.TrimSpace(line)
		}

		password, err := readPassword(reader)
		if err != nil {
			return err
		}

		info := model.LoginInfo{ServerAddress: ap.client.BaseURL(), Email: email}
		sess, err := ap.session.Login(ctx, info, password)
		if err != nil {
			if remote.IsAuth(err) {
				return errors.New("invalid email or password")
			}
			if remote.IsNetwork(err) {
				return fmt.Errorf("cannot reach %s", info.ServerAddress)
			}
			return err
		}

		fmt.Fprintln(ap.out, renderPass("Logged in as "+email))
		fmt.Fprintf(ap.out, "   Session valid until %s\n", time.UnixMilli(sess.ExpiresAt).Format(time.DateTime))

		ap.autoSync(ctx)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "sync",
	Short:   "Sign out on this device",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ap.session.Logout(cmd.Context()); err != nil {
			fmt.Fprintln(ap.out, renderWarn("Server did not confirm the logout: "+err.Error()))
		}
		fmt.Fprintln(ap.out, renderPass("Logged out"))
		return nil
	},
}

var logoutAllCmd = &cobra.Command{
	Use:     "logout-all",
	GroupID: "sync",
	Short:   "Sign out on every device",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ap.session.LogoutAll(cmd.Context()); err != nil {
			fmt.Fprintln(ap.out, renderWarn("Other devices may still be signed in: "+err.Error()))
		} else {
			fmt.Fprintln(ap.out, renderPass("Logged out on all devices"))
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show session and pending changes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fmt.Fprintf(ap.out, "Server:  %s\n", ap.cfg.Server)
		if info, err := ap.store.LoginInfo(ctx); err == nil {
			fmt.Fprintf(ap.out, "Account: %s\n", info.Email)
		}

		sess, err := ap.session.Current(ctx)
		if err != nil {
			return err
		}
		if ap.session.IsSessionValid(ctx) {
			fmt.Fprintf(ap.out, "Session: %s until %s\n", renderPass("valid"), time.UnixMilli(sess.ExpiresAt).Format(time.DateTime))
			if ap.session.CanAttemptSync(ctx) {
				fmt.Fprintf(ap.out, "Sync:    %s\n", renderPass("ready"))
			} else {
				fmt.Fprintf(ap.out, "Sync:    %s\n", renderWarn("offline"))
			}
		} else {
			fmt.Fprintf(ap.out, "Session: %s\n", renderFail("logged out"))
		}

		pending, err := ap.store.PendingTombstoneIDs(ctx)
		if err != nil {
			return err
		}
		books, err := ap.library.ListBooks(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(ap.out, "Books:   %d local, %d deletions awaiting upload\n", len(books), len(pending))
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	rootCmd.AddCommand(loginCmd, logoutCmd, logoutAllCmd, statusCmd)
}

func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(ap.out, "Password: ")
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(ap.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
