// Package cli defines the codeclass command tree: serve runs the server,
// and the user subcommands bootstrap accounts from the terminal; the
// first admin has to come from somewhere before the API is usable.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/anika/codeclass/internal/auth"
	"github.com/anika/codeclass/internal/config"
	sqliterepo "github.com/anika/codeclass/internal/repository/sqlite"
	"github.com/anika/codeclass/internal/server"
	"github.com/anika/codeclass/internal/service"
	"github.com/anika/codeclass/internal/storage"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "codeclass",
		Short:         "Classroom code-submission server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (TOML)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newUserCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var noQR bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			srv, err := server.New(cfg, logger)
			if err != nil {
				return err
			}

			// Students connect over classroom wifi: print the LAN URL and
			// a scannable QR so nobody types IP addresses by hand.
			if url := lanURL(cfg.Port); url != "" {
				fmt.Printf("connect: %s\n", url)
				if !noQR {
					printQR(url)
				}
			}

			return srv.Start()
		},
	}
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "skip printing the connect QR code")
	return cmd
}

func newUserCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts from the terminal",
	}

	var makeAdmin bool
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account (prompts for the password)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, db, err := openAdmin(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			password, err := promptPasswordTwice("Password")
			if err != nil {
				return err
			}

			user, err := admin.CreateUser(context.Background(), args[0], password, makeAdmin)
			if err != nil {
				return err
			}
			fmt.Printf("created user %s (id %s, admin=%v)\n", user.Username, user.ID, user.IsAdmin)
			return nil
		},
	}
	create.Flags().BoolVar(&makeAdmin, "admin", false, "grant the admin flag")

	passwd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Reset an account's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, db, err := openAdmin(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := db.GetUserByUsername(context.Background(), args[0])
			if err != nil {
				return err
			}

			password, err := promptPasswordTwice("New password")
			if err != nil {
				return err
			}

			if _, err := admin.UpdateUser(context.Background(), user.ID, service.UserUpdate{Password: &password}); err != nil {
				return err
			}
			fmt.Printf("password updated for %s\n", user.Username)
			return nil
		},
	}

	promote := &cobra.Command{
		Use:   "promote <username>",
		Short: "Grant an account the admin flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, db, err := openAdmin(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := db.GetUserByUsername(context.Background(), args[0])
			if err != nil {
				return err
			}
			if user.IsAdmin {
				fmt.Printf("%s is already an admin\n", user.Username)
				return nil
			}

			yes := true
			if _, err := admin.UpdateUser(context.Background(), user.ID, service.UserUpdate{IsAdmin: &yes}); err != nil {
				return err
			}
			fmt.Printf("%s is now an admin\n", user.Username)
			return nil
		},
	}

	cmd.AddCommand(create, passwd, promote)
	return cmd
}

// openAdmin builds just enough of the dependency graph for the user
// subcommands: database, upload root, and an AdminService over both. The
// returned DB doubles as the user repository for username lookups.
func openAdmin(configPath string) (*service.AdminService, *sqliterepo.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	db, err := sqliterepo.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	store, err := storage.New(cfg.UploadRoot)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("preparing upload root: %w", err)
	}

	passwords := auth.NewPasswordService(cfg.BcryptCost)
	admin := service.NewAdminService(db, db, db, passwords, store, newLogger(cfg.LogLevel))
	return admin, db, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// lanURL picks the first non-loopback IPv4 address so the printed URL
// works from student machines, not just this one.
func lanURL(port int) string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Sprintf("http://localhost:%d", port)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ip, _, err := net.ParseCIDR(a.String())
			if err != nil || ip == nil || ip.IsLoopback() {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				return fmt.Sprintf("http://%s:%d", v4, port)
			}
		}
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

func printQR(value string) {
	qr, err := qrcode.New(value, qrcode.Medium)
	if err != nil {
		return
	}
	fmt.Println(qr.ToSmallString(false))
}

func promptPassword(prompt string) (string, error) {
	fmt.Printf("%s: ", prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		return string(b), err
	}
	// Piped input (scripted setup): read a line instead.
	reader := bufio.NewReader(os.Stdin)
	text, err := reader.ReadString('\n')
	return strings.TrimSpace(text), err
}

func promptPasswordTwice(label string) (string, error) {
	first, err := promptPassword(label)
	if err != nil {
		return "", err
	}
	second, err := promptPassword(label + " (confirm)")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passwords do not match")
	}
	return first, nil
}
