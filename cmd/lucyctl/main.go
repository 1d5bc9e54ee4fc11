// ABOUTME: Admin CLI for lucycore provisioning and inspection
// ABOUTME: Operates directly on the local database; agents never get this surface

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/snowcapsystems/lucycore/internal/config"
	"github.com/snowcapsystems/lucycore/internal/store"
	"github.com/snowcapsystems/lucycore/internal/vault"
)

const banner = `
 _
| |_   _  ___ _   _  ___ ___  _ __ ___
| | | | |/ __| | | |/ __/ _ \| '__/ _ \
| | |_| | (__| |_| | (_| (_) | | |  __/
|_|\__,_|\___|\__, |\___\___/|_|  \___|
              |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "users":
		err = cmdUsers(cfg, args)
	case "agents":
		err = cmdAgents(cfg, args)
	case "shares":
		err = cmdShares(cfg, args)
	case "keygen":
		err = cmdKeygen(cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: lucyctl <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  users                   List all users")
	fmt.Println("  users list              List all users")
	fmt.Println("  users create <name>     Create a user")
	fmt.Println("  agents                  List all agents")
	fmt.Println("  agents list [user]      List agents, optionally for one user")
	fmt.Println("  agents create <user> <name>   Create an agent and print its API key")
	fmt.Println("  shares list <user>      List a user's outbound and inbound shares")
	fmt.Println("  keygen                  Generate the vault key file")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  LUCYCORE_CONFIG         Config file path (default: $XDG_CONFIG_HOME/lucycore/config.yaml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  lucyctl keygen")
	fmt.Println("  lucyctl users create rick")
	fmt.Println("  lucyctl agents create rick lucy")
	fmt.Println()
}

// loadConfig reads the config file when one exists, falling back to
// defaults under the user's config directory.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("LUCYCORE_CONFIG")
	if path == "" {
		path = filepath.Join(configDir(), "config.yaml")
	}
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}

	return &config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(configDir(), "lucycore.db")},
		Vault:    config.VaultConfig{KeyFile: filepath.Join(configDir(), "vault.key")},
		Logging:  config.LoggingConfig{Level: "warn", Format: "text"},
	}, nil
}

func configDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "lucycore")
}

// setupLogging configures slog per the config. The CLI defaults to warn
// so listings stay clean.
func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openStore opens the configured database with its vault key.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	cipher, err := vault.LoadKey(cfg.Vault.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading vault key (run 'lucyctl keygen' first?): %w", err)
	}
	return store.NewSQLiteStore(cfg.Database.Path, cipher)
}

// cmdKeygen generates the vault key file.
func cmdKeygen(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Vault.KeyFile), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	if err := vault.GenerateKeyFile(cfg.Vault.KeyFile); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Generated vault key: %s\n", cfg.Vault.KeyFile)
	fmt.Println("  Back it up; secrets are unrecoverable without it.")
	return nil
}

// cmdUsers handles user subcommands
func cmdUsers(cfg *config.Config, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdUsersList(cfg)
	case "create", "add":
		return cmdUsersCreate(cfg, args)
	default:
		return fmt.Errorf("unknown users subcommand: %s (use list, create)", subcmd)
	}
}

func cmdUsersList(cfg *config.Config) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	users, err := s.ListUsers(context.Background())
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Users")
	cyan.Println("  -----")

	if len(users) == 0 {
		fmt.Println("  (no users)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tCREATED")
	fmt.Fprintln(w, "  --\t----\t-------")
	for _, u := range users {
		fmt.Fprintf(w, "  %d\t%s\t%s\n", u.ID, u.Name, u.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdUsersCreate(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: users create <name>")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := s.CreateUser(context.Background(), args[0])
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created user: %s (id %d)\n", user.Name, user.ID)
	return nil
}

// cmdAgents handles agent subcommands
func cmdAgents(cfg *config.Config, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdAgentsList(cfg, args)
	case "create", "add":
		return cmdAgentsCreate(cfg, args)
	default:
		return fmt.Errorf("unknown agents subcommand: %s (use list, create)", subcmd)
	}
}

func cmdAgentsList(cfg *config.Config, args []string) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	var userID int64
	if len(args) > 0 {
		user, err := s.GetUserByName(ctx, args[0])
		if err != nil {
			return fmt.Errorf("looking up user %q: %w", args[0], err)
		}
		userID = user.ID
	}

	agents, err := s.ListAgents(ctx, userID)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Agents")
	cyan.Println("  ------")

	if len(agents) == 0 {
		fmt.Println("  (no agents)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tUSER\tNAME\tCREATED")
	fmt.Fprintln(w, "  --\t----\t----\t-------")
	for _, a := range agents {
		fmt.Fprintf(w, "  %d\t%d\t%s\t%s\n", a.ID, a.UserID, a.Name, a.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdAgentsCreate(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: agents create <user> <name>")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	user, err := s.GetUserByName(ctx, args[0])
	if err != nil {
		return fmt.Errorf("looking up user %q: %w", args[0], err)
	}

	agent, err := s.CreateAgent(ctx, user.ID, args[1])
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	fmt.Println()
	green.Printf("✓ Created agent: %s (id %d)\n", agent.Name, agent.ID)
	fmt.Println()
	cyan.Println("  API key (shown once, keep it secret!):")
	fmt.Println()
	fmt.Println("  " + agent.APIKey)
	fmt.Println()
	return nil
}

// cmdShares handles share subcommands
func cmdShares(cfg *config.Config, args []string) error {
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdSharesList(cfg, args)
	default:
		return fmt.Errorf("usage: shares list <user>")
	}
}

func cmdSharesList(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: shares list <user>")
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	user, err := s.GetUserByName(ctx, args[0])
	if err != nil {
		return fmt.Errorf("looking up user %q: %w", args[0], err)
	}

	agents, err := s.ListAgents(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return fmt.Errorf("user %q has no agents to act through", user.Name)
	}
	caller := store.Identity{
		UserID:    user.ID,
		UserName:  user.Name,
		AgentID:   agents[0].ID,
		AgentName: agents[0].Name,
	}

	outbound, err := s.ListOutboundShares(ctx, caller)
	if err != nil {
		return err
	}
	inbound, err := s.ListInboundShares(ctx, caller)
	if err != nil {
		return err
	}

	printShareTable("Outbound Shares", outbound, func(sh *store.Share) string { return sh.ToUserName })
	printShareTable("Inbound Shares", inbound, func(sh *store.Share) string { return sh.FromUserName })
	return nil
}

func printShareTable(title string, shares []*store.Share, peer func(*store.Share) string) {
	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  " + title)
	cyan.Println("  " + dashes(len(title)))

	if len(shares) == 0 {
		fmt.Println("  (none)")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  PEER\tOBJECT\tID\tLEVEL\tCREATED")
	fmt.Fprintln(w, "  ----\t------\t--\t-----\t-------")
	for _, sh := range shares {
		fmt.Fprintf(w, "  %s\t%s\t%d\t%d\t%s\n",
			peer(sh), sh.ObjectType, sh.ObjectID, sh.PermissionLevel,
			sh.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}
