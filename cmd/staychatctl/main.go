package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/nguyenlm11/staychat/internal/chat"
	"github.com/nguyenlm11/staychat/internal/config"
	"github.com/nguyenlm11/staychat/internal/session"
	"github.com/nguyenlm11/staychat/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "signin":
		cmdSignin(sessionName, args[1:])
	case "signout":
		cmdSignout(sessionName)
	case "config":
		cmdConfig(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: staychatctl [--session <name>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  signin --user-id <id> --name <name> --token <token>")
	fmt.Fprintln(os.Stderr, "                   Store the signed-in identity and access token")
	fmt.Fprintln(os.Stderr, "  signout          Clear the stored identity and token")
	fmt.Fprintln(os.Stderr, "  config set <key> <value>")
	fmt.Fprintln(os.Stderr, "                   Update a config key: default-session, hub-url, api-base-url")
}

func openStore(sessionName string) *store.DB {
	if err := session.EnsureDir(sessionName); err != nil {
		fatal(err)
	}
	db, err := store.Open(session.DBPath(sessionName))
	if err != nil {
		fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		fatal(err)
	}
	return db
}

// cmdSignin stores the identity and token the daemon picks up on its
// next start.
func cmdSignin(sessionName string, args []string) {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)
	userID := fs.String("user-id", "", "account id")
	name := fs.String("name", "", "display name")
	token := fs.String("token", "", "access token")
	_ = fs.Parse(args)

	if *userID == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "error: --user-id and --token are required")
		os.Exit(1)
	}

	db := openStore(sessionName)
	defer func() { _ = db.Close() }()

	if err := db.SaveUser(chat.User{ID: *userID, Name: *name}); err != nil {
		fatal(err)
	}
	if err := db.SaveToken(*token); err != nil {
		fatal(err)
	}
	fmt.Printf("signed in as %s on session %q\n", *userID, sessionName)
}

func cmdSignout(sessionName string) {
	db := openStore(sessionName)
	defer func() { _ = db.Close() }()

	if err := db.ClearAuth(); err != nil {
		fatal(err)
	}
	fmt.Printf("signed out of session %q\n", sessionName)
}

func cmdConfig(args []string) {
	if len(args) != 3 || args[0] != "set" {
		fmt.Fprintln(os.Stderr, "usage: staychatctl config set <key> <value>")
		os.Exit(1)
	}
	key, value := args[1], args[2]

	path := session.ConfigPath()
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		fatal(err)
	}

	switch key {
	case "default-session":
		if err := session.ValidateName(value); err != nil {
			fatal(err)
		}
		cfg.DefaultSession = value
	case "hub-url":
		cfg.HubURL = value
	case "api-base-url":
		cfg.APIBaseURL = value
	default:
		fmt.Fprintf(os.Stderr, "unknown config key: %s\n", key)
		os.Exit(1)
	}

	if err := config.Save(path, cfg); err != nil {
		fatal(err)
	}
	fmt.Printf("%s = %s\n", key, value)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
