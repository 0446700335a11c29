// ABOUTME: Admin CLI for cumulus-auth user, project, and role management
// ABOUTME: Operates directly on the store; also exports credential bundles

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/cumulus-auth/internal/auth"
	"github.com/2389/cumulus-auth/internal/config"
	"github.com/2389/cumulus-auth/internal/creds"
	"github.com/2389/cumulus-auth/internal/localca"
	"github.com/2389/cumulus-auth/internal/policy"
	"github.com/2389/cumulus-auth/internal/store"
	"github.com/2389/cumulus-auth/internal/vpnpool"
)

const banner = `
                            _
  ___ _   _ _ __ ___  _   _| |_   _ ___
 / __| | | | '_ ` + "`" + ` _ \| | | | | | | / __|
| (__| |_| | | | | | | |_| | | |_| \__ \
 \___|\__,_|_| |_| |_|\__,_|_|\__,_|___/
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
	case "user":
		err = cmdUser(cfg, args)
	case "project":
		err = cmdProject(cfg, args)
	case "role":
		err = cmdRole(cfg, args)
	case "keypair":
		err = cmdKeypair(cfg, args)
	case "credentials":
		err = cmdCredentials(cfg, args)
	case "vpn":
		err = cmdVPN(cfg, args)
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
	fmt.Println("Usage: cumulus-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  user list                       List all users")
	fmt.Println("  user create <name> [--admin]    Create a user (keys generated if omitted)")
	fmt.Println("  user delete <id>                Delete a user and their grants")
	fmt.Println("  project list                    List all projects")
	fmt.Println("  project create <name> --manager <user> [members...]")
	fmt.Println("  project delete <id>             Delete a project, reclaiming its VPN port")
	fmt.Println("  project add-member <id> <user>  Add a user to a project")
	fmt.Println("  project remove-member <id> <user>")
	fmt.Println("  role add <user> <role> [--project <id>]")
	fmt.Println("  role remove <user> <role> [--project <id>]")
	fmt.Println("  keypair generate <user> <name>  Generate a key pair (private key printed once)")
	fmt.Println("  credentials export <user> [--project <id>] [--out <file>]")
	fmt.Println("  vpn report                      Show free VPN ports per address")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  CUMULUS_CONFIG    Path to config file (defaults apply if unset)")
	fmt.Println()
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CUMULUS_CONFIG"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// openService wires the store, policy engine, key generator, and
// optional VPN pool into an auth service. The caller must Close the
// returned store.
func openService(cfg *config.Config) (*auth.Service, store.Store, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	engine := policy.New(st, cfg.Auth.SuperuserRoles, cfg.Auth.GlobalRoles)

	ca, err := localca.New(cfg.Credentials.CADir)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	var pool *vpnpool.Pool
	if cfg.VPN.Enabled {
		kv := vpnpool.NewRedisSets(cfg.VPN.RedisAddr)
		pool, err = vpnpool.New(kv, cfg.VPN.StartPort, cfg.VPN.EndPort)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
	}

	return auth.New(st, engine, ca, pool, cfg.VPN.Address), st, nil
}

func cmdUser(cfg *config.Config, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	svc, st, err := openService(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	switch subcmd {
	case "list", "ls":
		return listUsers(ctx, svc)
	case "create", "add":
		return createUser(ctx, svc, args)
	case "delete", "rm", "remove":
		if len(args) < 1 {
			return fmt.Errorf("usage: user delete <id>")
		}
		if err := svc.DeleteUser(ctx, args[0]); err != nil {
			return err
		}
		color.Green("✓ Deleted user: %s\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown user subcommand: %s (use list, create, delete)", subcmd)
	}
}

func listUsers(ctx context.Context, svc *auth.Service) error {
	users, err := svc.ListUsers(ctx)
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
	fmt.Fprintln(w, "  ID\tACCESS KEY\tADMIN\tCREATED")
	fmt.Fprintln(w, "  --\t----------\t-----\t-------")
	for _, u := range users {
		admin := ""
		if u.Admin {
			admin = "yes"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", u.ID, u.AccessKey, admin, u.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func createUser(ctx context.Context, svc *auth.Service, args []string) error {
	var name, access, secret string
	var admin bool

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--admin":
			admin = true
		case "--access-key":
			if i+1 < len(args) {
				access = args[i+1]
				i++
			}
		case "--secret-key":
			if i+1 < len(args) {
				secret = args[i+1]
				i++
			}
		default:
			if name == "" {
				name = args[i]
			}
		}
	}
	if name == "" {
		return fmt.Errorf("usage: user create <name> [--admin] [--access-key <k>] [--secret-key <k>]")
	}

	user, err := svc.CreateUser(ctx, name, access, secret, admin)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created user: %s\n", user.ID)
	fmt.Printf("  Access key:  %s\n", user.AccessKey)
	fmt.Printf("  Secret key:  %s\n", user.SecretKey)
	fmt.Println("  (the secret key is shown once; store it now)")
	return nil
}

func cmdProject(cfg *config.Config, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	svc, st, err := openService(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	switch subcmd {
	case "list", "ls":
		return listProjects(ctx, svc)
	case "create", "add":
		return createProject(ctx, svc, args)
	case "delete", "rm":
		if len(args) < 1 {
			return fmt.Errorf("usage: project delete <id>")
		}
		if err := svc.DeleteProject(ctx, args[0]); err != nil {
			return err
		}
		color.Green("✓ Deleted project: %s\n", args[0])
		return nil
	case "add-member", "join":
		return addMember(ctx, svc, args)
	case "remove-member", "leave":
		return removeMember(ctx, svc, args)
	default:
		return fmt.Errorf("unknown project subcommand: %s (use list, create, delete, add-member, remove-member)", subcmd)
	}
}

func listProjects(ctx context.Context, svc *auth.Service) error {
	projects, err := svc.ListProjects(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Projects")
	cyan.Println("  --------")

	if len(projects) == 0 {
		fmt.Println("  (no projects)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tMANAGER\tMEMBERS\tCREATED")
	fmt.Fprintln(w, "  --\t-------\t-------\t-------")
	for _, p := range projects {
		fmt.Fprintf(w, "  %s\t%s\t%d\t%s\n", p.ID, p.ManagerID, len(p.MemberIDs), p.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func createProject(ctx context.Context, svc *auth.Service, args []string) error {
	var name, manager, description string
	var members []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--manager", "-m":
			if i+1 < len(args) {
				manager = args[i+1]
				i++
			}
		case "--description", "-d":
			if i+1 < len(args) {
				description = args[i+1]
				i++
			}
		default:
			if name == "" {
				name = args[i]
			} else {
				members = append(members, args[i])
			}
		}
	}
	if name == "" || manager == "" {
		return fmt.Errorf("usage: project create <name> --manager <user> [members...]")
	}

	project, err := svc.CreateProject(ctx, name, manager, description, members)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created project: %s\n", project.ID)
	fmt.Printf("  Manager:  %s\n", project.ManagerID)
	fmt.Printf("  Members:  %s\n", strings.Join(project.MemberIDs, ", "))

	if vpn, err := svc.ProjectVPN(ctx, project.ID); err == nil {
		fmt.Printf("  VPN:      %s:%d\n", vpn.Address, vpn.Port)
	}
	return nil
}

func addMember(ctx context.Context, svc *auth.Service, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: project add-member <project> <user>")
	}
	if err := svc.AddToProject(ctx, args[1], args[0]); err != nil {
		return err
	}
	color.Green("✓ Added %s to %s\n", args[1], args[0])
	return nil
}

func removeMember(ctx context.Context, svc *auth.Service, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: project remove-member <project> <user>")
	}
	if err := svc.RemoveFromProject(ctx, args[1], args[0]); err != nil {
		return err
	}
	color.Green("✓ Removed %s from %s\n", args[1], args[0])
	return nil
}

func cmdRole(cfg *config.Config, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: role <add|remove> <user> <role> [--project <id>]")
	}
	subcmd := args[0]
	userID, role := args[1], args[2]

	var projectID string
	for i := 3; i < len(args); i++ {
		if args[i] == "--project" && i+1 < len(args) {
			projectID = args[i+1]
			i++
		}
	}

	svc, st, err := openService(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	var project *store.Project
	if projectID != "" {
		project, err = svc.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
	}

	switch subcmd {
	case "add", "grant":
		if err := svc.Policy().AddRole(ctx, userID, role, project); err != nil {
			return err
		}
		color.Green("✓ Granted %s to %s\n", role, userID)
		return nil
	case "remove", "revoke", "rm":
		if err := svc.Policy().RemoveRole(ctx, userID, role, project); err != nil {
			return err
		}
		color.Green("✓ Revoked %s from %s\n", role, userID)
		return nil
	default:
		return fmt.Errorf("unknown role subcommand: %s (use add, remove)", subcmd)
	}
}

func cmdKeypair(cfg *config.Config, args []string) error {
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	svc, st, err := openService(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	switch subcmd {
	case "generate", "create":
		if len(args) < 2 {
			return fmt.Errorf("usage: keypair generate <user> <name>")
		}
		privateKey, fingerprint, err := svc.GenerateKeyPair(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		green := color.New(color.FgGreen)
		green.Printf("✓ Generated key pair: %s\n", args[1])
		fmt.Printf("  Fingerprint: %s\n", fingerprint)
		fmt.Println()
		fmt.Println("  Private key (not stored; shown once):")
		fmt.Println()
		fmt.Println(privateKey)
		return nil
	case "list", "ls":
		if len(args) < 1 {
			return fmt.Errorf("usage: keypair list <user>")
		}
		pairs, err := svc.ListKeyPairs(ctx, args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tFINGERPRINT")
		fmt.Fprintln(w, "  ----\t-----------")
		for _, kp := range pairs {
			fmt.Fprintf(w, "  %s\t%s\n", kp.Name, kp.Fingerprint)
		}
		w.Flush()
		return nil
	case "delete", "rm":
		if len(args) < 2 {
			return fmt.Errorf("usage: keypair delete <user> <name>")
		}
		if err := svc.DeleteKeyPair(ctx, args[0], args[1]); err != nil {
			return err
		}
		color.Green("✓ Deleted key pair: %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("usage: keypair <generate|list|delete> ...")
	}
}

func cmdCredentials(cfg *config.Config, args []string) error {
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}
	if subcmd != "export" {
		return fmt.Errorf("usage: credentials export <user> [--project <id>] [--out <file>]")
	}

	var userID, project, out string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--project", "-p":
			if i+1 < len(args) {
				project = args[i+1]
				i++
			}
		case "--out", "-o":
			if i+1 < len(args) {
				out = args[i+1]
				i++
			}
		default:
			if userID == "" {
				userID = args[i]
			}
		}
	}
	if userID == "" {
		return fmt.Errorf("usage: credentials export <user> [--project <id>] [--out <file>]")
	}
	if out == "" {
		out = userID + "-credentials.zip"
	}

	svc, st, err := openService(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	user, err := svc.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	ca, err := localca.New(cfg.Credentials.CADir)
	if err != nil {
		return err
	}

	issuer, err := creds.New(st, ca, creds.Config{
		RCFileName:      cfg.Credentials.RCFile,
		KeyFileName:     cfg.Credentials.KeyFile,
		CertFileName:    cfg.Credentials.CertFile,
		CAFileName:      cfg.Credentials.CAFile,
		VPNFileName:     cfg.Credentials.VPNFile,
		CertSubject:     cfg.Credentials.CertSubject,
		RCTemplatePath:  cfg.Credentials.RCTemplate,
		VPNTemplatePath: cfg.Credentials.VPNTemplate,
	})
	if err != nil {
		return err
	}

	bundle, err := issuer.Issue(ctx, user, project)
	if err != nil {
		return err
	}
	data, err := issuer.Archive(bundle)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	color.Green("✓ Exported credentials for %s to %s\n", userID, out)
	return nil
}

func cmdVPN(cfg *config.Config, args []string) error {
	subcmd := "report"
	if len(args) > 0 {
		subcmd = args[0]
	}
	if subcmd != "report" {
		return fmt.Errorf("usage: vpn report")
	}
	if !cfg.VPN.Enabled {
		return fmt.Errorf("vpn is disabled in the configuration")
	}

	kv := vpnpool.NewRedisSets(cfg.VPN.RedisAddr)
	defer kv.Close()
	pool, err := vpnpool.New(kv, cfg.VPN.StartPort, cfg.VPN.EndPort)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	free, err := pool.Count(ctx, cfg.VPN.Address)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  VPN Port Pool")
	cyan.Println("  -------------")
	fmt.Printf("  Address:     %s\n", cfg.VPN.Address)
	fmt.Printf("  Range:       %d-%d\n", cfg.VPN.StartPort, cfg.VPN.EndPort)
	fmt.Printf("  Free ports:  %d\n", free)
	fmt.Println()
	return nil
}
