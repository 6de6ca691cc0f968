package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App satisfies it.
type execIface interface {
	Status(ctx context.Context) error
	SetPIN(ctx context.Context) error
	Unlock(ctx context.Context) error
	Biometric(ctx context.Context) error
	Lock(ctx context.Context) error
	Sensitive(ctx context.Context) error
	Critical(ctx context.Context, args []string) error
	Settings(ctx context.Context, args []string) error
	Recover(ctx context.Context) error
	Sync(ctx context.Context) error
	Logout(ctx context.Context) error
}

const helpText = `Available commands:
  status                          show the lock state
  setpin                          set or change the PIN
  unlock                          unlock with the PIN
  bio                             unlock with biometrics
  lock                            lock now
  sensitive                       check access to a sensitive action
  critical start|end              suspend or resume the idle lock
  settings bio on|off             toggle biometric unlock
  settings sensitive on|off       toggle re-auth for sensitive actions
  settings idle <minutes>         set the idle timeout
  recover                         set a new PIN after account recovery
  sync                            reconcile with the server
  logout                          forget local state and exit
  exit | quit                     leave the program`

// runREPL reads commands from scanner until EOF, exit or logout. Handlers
// report their own errors, so their return values are only used to decide
// whether a logout happened.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("applock (%s)> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help", "?":
			printlnFn(helpText)

		case "status", "s":
			_ = a.Status(ctx)

		case "setpin":
			_ = a.SetPIN(ctx)

		case "unlock", "u":
			_ = a.Unlock(ctx)

		case "bio":
			_ = a.Biometric(ctx)

		case "lock", "l":
			_ = a.Lock(ctx)

		case "sensitive":
			_ = a.Sensitive(ctx)

		case "critical":
			_ = a.Critical(ctx, args)

		case "settings":
			_ = a.Settings(ctx, args)

		case "recover":
			_ = a.Recover(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "logout":
			if err := a.Logout(ctx); err == nil {
				printlnFn("Logged out.")
				return
			}

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
