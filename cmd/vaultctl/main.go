// Command vaultctl is the control-plane CLI standing in for the desktop
// shell's non-UI surface: init/unlock/lock/reset, integration and
// credential management, settings, and spawning/stopping the headless
// vaultd process. It talks directly to the in-process internal/wallet
// package — there is no IPC layer here, by design.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/mcpvault/mcpvault/internal/audit"
	"github.com/mcpvault/mcpvault/internal/config"
	"github.com/mcpvault/mcpvault/internal/openapi"
	"github.com/mcpvault/mcpvault/internal/session"
	"github.com/mcpvault/mcpvault/internal/wallet"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("vaultctl %s\n", version)
	case "init":
		doInit()
	case "unlock":
		doUnlock()
	case "lock":
		doLock()
	case "reset":
		doReset()
	case "status":
		doStatus()
	case "integration":
		doIntegration(args)
	case "credential":
		doCredential(args)
	case "settings":
		doSettings(args)
	case "server":
		doServer(args)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `vaultctl — CLI for the local credential vault

Usage: vaultctl <command> [arguments]

Environment:
  MCPVAULT_DATA_DIR   Per-user vault data directory (default: ~/.mcpvault)

Commands:
  init                          Create a new vault (prompts for a passphrase)
  unlock                        Unlock the vault (prompts for a passphrase)
  lock                          Lock the vault
  reset                         Destroy the vault and start over
  status                        Show vault lifecycle state

  integration add <key> <spec-url-or-file> [base-url]
                                 Fetch and compile an OpenAPI document into a
                                 pending integration (bind a credential to
                                 activate it)
  integration list               List integrations
  integration bind <key> <credential-id>
                                 Bind a credential to an integration

  credential add <provider> <display-name> <kind>
                                 Add a credential (prompts for the secret)
  credential list                List credentials (no secrets shown)
  credential delete <id>         Delete a credential

  settings get                   Show settings.json
  settings set <json>            Replace settings.json

  server start                   Mint a session and launch vaultd --http
  server stop                    Clear the session (a running vaultd keeps
                                 serving until it exits)

  version                        Show version
  help                           Show this help

Examples:
  vaultctl init
  vaultctl integration add github https://api.github.com/openapi.json
  vaultctl credential add github "GitHub token" bearer
  vaultctl integration bind github 3fae1c2b9d0e4a51
  vaultctl server start
`)
}

func dataDir() string {
	if d := os.Getenv("MCPVAULT_DATA_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcpvault"
	}
	return home + "/.mcpvault"
}

func openWallet() *wallet.Wallet {
	w := wallet.New(dataDir(), 0)
	if err := w.Load(); err != nil {
		fatal(err)
	}
	return w
}

func promptPassword(prompt string) []byte {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	fatal(err)
	return pw
}

func fatal(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// recordAudit opens the audit log, writes one entry, and closes it again.
// vaultctl is a one-shot process so there is no long-lived handle to share;
// a logging failure is printed but never fails the command, which has
// already succeeded by the time this is called.
func recordAudit(e audit.Entry) {
	a, err := audit.Open(dataDir() + "/audit.db")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit log unavailable: %v\n", err)
		return
	}
	defer a.Close()
	if err := a.Record(context.Background(), e); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit record failed: %v\n", err)
	}
}

func doInit() {
	w := openWallet()
	if w.State() != wallet.StateNotInitialised {
		fmt.Fprintln(os.Stderr, "vault already initialised")
		os.Exit(1)
	}
	pw1 := promptPassword("New passphrase: ")
	pw2 := promptPassword("Confirm passphrase: ")
	if string(pw1) != string(pw2) {
		fmt.Fprintln(os.Stderr, "passphrases do not match")
		os.Exit(1)
	}
	fatal(w.Initialise(pw1))
	recordAudit(audit.Entry{Kind: "wallet.initialised"})
	fmt.Println("Vault initialised. Run `vaultctl unlock` to begin.")
}

func doUnlock() {
	w := openWallet()
	pw := promptPassword("Passphrase: ")
	fatal(w.Unlock(pw))
	recordAudit(audit.Entry{Kind: "wallet.unlocked"})
	fmt.Println("Vault unlocked.")
}

func doLock() {
	w := openWallet()
	w.Lock()
	mgr := session.NewManager(dataDir(), 0)
	_ = mgr.Clear()
	recordAudit(audit.Entry{Kind: "wallet.locked"})
	fmt.Println("Vault locked.")
}

func doReset() {
	w := openWallet()
	fatal(w.Reset())
	mgr := session.NewManager(dataDir(), 0)
	_ = mgr.Clear()
	recordAudit(audit.Entry{Kind: "wallet.reset"})
	fmt.Println("Vault reset.")
}

func doStatus() {
	w := openWallet()
	fmt.Printf("State: %s\n", w.State())
}

func doIntegration(args []string) {
	requireArgs(args, 1, "integration <add|list|bind> [args]")
	switch args[0] {
	case "add":
		requireArgs(args, 3, "integration add <key> <spec-url-or-file> [base-url]")
		key, source := args[1], args[2]
		baseURL := ""
		if len(args) > 3 {
			baseURL = args[3]
		}
		raw, err := openapi.Fetch(context.Background(), source)
		fatal(err)
		doc, err := openapi.Parse(raw)
		fatal(err)
		result, err := openapi.Compile(doc, key, baseURL)
		fatal(err)

		w := openWallet()
		fatal(w.AddIntegration(&wallet.IntegrationRecord{
			Key:           key,
			DisplayName:   key,
			SourceSpecURL: source,
			Operations:    result.Operations,
			Status:        wallet.IntegrationPending,
		}))
		recordAudit(audit.Entry{Kind: "integration.added", IntegrationKey: key})
		fmt.Printf("Integration %q added with %d operations.\n", key, len(result.Operations))
		if result.AuthNote != "" {
			fmt.Println(result.AuthNote)
		}
	case "list":
		w := openWallet()
		recs, err := w.ListIntegrations()
		fatal(err)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "KEY\tSTATUS\tOPERATIONS\tCREDENTIAL")
		for _, r := range recs {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Key, r.Status, len(r.Operations), r.CredentialID)
		}
		_ = tw.Flush()
	case "bind":
		requireArgs(args, 3, "integration bind <key> <credential-id>")
		w := openWallet()
		fatal(w.BindCredential(args[1], args[2]))
		recordAudit(audit.Entry{Kind: "credential.bound", IntegrationKey: args[1]})
		fmt.Println("Credential bound.")
	default:
		fmt.Fprintf(os.Stderr, "unknown integration command: %s\n", args[0])
		os.Exit(1)
	}
}

func doCredential(args []string) {
	requireArgs(args, 1, "credential <add|list|delete> [args]")
	switch args[0] {
	case "add":
		requireArgs(args, 4, "credential add <provider> <display-name> <kind>")
		provider, displayName, kindArg := args[1], args[2], args[3]
		kind := wallet.CredentialKind(kindArg)
		secret := promptPassword("Secret: ")
		w := openWallet()
		id, err := w.AddCredential(provider, displayName, kind, secret)
		fatal(err)
		fmt.Printf("Credential added: %s\n", id)
	case "list":
		w := openWallet()
		recs, err := w.ListCredentials()
		fatal(err)
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tPROVIDER\tDISPLAY NAME\tKIND\tPREFIX")
		for _, r := range recs {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Provider, r.DisplayName, r.Kind, r.Prefix)
		}
		_ = tw.Flush()
	case "delete":
		requireArgs(args, 2, "credential delete <id>")
		w := openWallet()
		fatal(w.RemoveCredential(args[1]))
		fmt.Println("Credential deleted.")
	default:
		fmt.Fprintf(os.Stderr, "unknown credential command: %s\n", args[0])
		os.Exit(1)
	}
}

func doSettings(args []string) {
	if len(args) == 0 || args[0] == "get" {
		s, err := config.LoadSettings(dataDir())
		fatal(err)
		b, _ := json.MarshalIndent(s, "", "  ")
		fmt.Println(string(b))
		return
	}
	switch args[0] {
	case "set":
		requireArgs(args, 2, "settings set <json>")
		var s config.Settings
		fatal(json.Unmarshal([]byte(args[1]), &s))
		fatal(config.SaveSettings(dataDir(), s))
		fmt.Println("Settings updated.")
	default:
		fmt.Fprintf(os.Stderr, "unknown settings command: %s\n", args[0])
		os.Exit(1)
	}
}

func doServer(args []string) {
	requireArgs(args, 1, "server <start|stop>")
	switch args[0] {
	case "start":
		w := openWallet()
		if w.State() != wallet.StateUnlocked {
			fmt.Fprintln(os.Stderr, "vault must be unlocked first — run `vaultctl unlock`")
			os.Exit(1)
		}
		var masterKey []byte
		fatal(w.MasterKey(func(k []byte) { masterKey = append([]byte(nil), k...) }))

		mgr := session.NewManager(dataDir(), 0)
		token, err := mgr.Create(masterKey)
		fatal(err)

		exe, err := os.Executable()
		fatal(err)
		vaultdPath := filepath.Join(filepath.Dir(exe), "vaultd")

		cmd := exec.Command(vaultdPath, "--http")
		cmd.Env = append(os.Environ(), "WALLET_SESSION_TOKEN="+token, "MCPVAULT_DATA_DIR="+dataDir())
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		fatal(cmd.Start())
		fmt.Printf("vaultd started (pid %d).\n", cmd.Process.Pid)
	case "stop":
		mgr := session.NewManager(dataDir(), 0)
		fatal(mgr.Clear())
		fmt.Println("Session cleared. A running vaultd keeps serving until it exits; a new vaultd cannot resume this session.")
	default:
		fmt.Fprintf(os.Stderr, "unknown server command: %s\n", args[0])
		os.Exit(1)
	}
}

func requireArgs(args []string, min int, usage string) {
	if len(args) < min {
		fmt.Fprintf(os.Stderr, "usage: vaultctl %s\n", usage)
		os.Exit(1)
	}
}
