// seed-admin creates or updates the FOUNDER and HR accounts in the identity provider
// and makes sure each has a matching employees row.
//
// Usage (from backend directory):
//
//	go run ./cmd/seed-admin --founder-email=... --founder-pass=... --hr-email=... --hr-pass=...
//
// Every flag falls back to its env var (FOUNDER_EMAIL, FOUNDER_PASSWORD, FOUNDER_NAME,
// HR_EMAIL, HR_PASSWORD, HR_NAME, DELETE_OLD=1). IDENTITY_URL, IDENTITY_SERVICE_KEY
// and the DB_* variables are read from the environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmdatafocus/equity_backend/config"
	"github.com/mmdatafocus/equity_backend/identity"
	"github.com/mmdatafocus/equity_backend/models"
	"github.com/mmdatafocus/equity_backend/provisioner"
)

const usage = `Usage: seed-admin --founder-email=EMAIL --founder-pass=PASSWORD --hr-email=EMAIL --hr-pass=PASSWORD [--founder-name=NAME] [--hr-name=NAME] [--delete-old]
Env fallbacks: FOUNDER_EMAIL, FOUNDER_PASSWORD, FOUNDER_NAME, HR_EMAIL, HR_PASSWORD, HR_NAME, DELETE_OLD=1`

type options struct {
	founder   provisioner.Account
	hr        provisioner.Account
	deleteOld bool
}

func envOr(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseOptions(args []string) (options, error) {
	fs := flag.NewFlagSet("seed-admin", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprintln(os.Stderr, usage) }

	founderEmail := fs.String("founder-email", os.Getenv("FOUNDER_EMAIL"), "founder login email")
	founderPassword := fs.String("founder-pass", os.Getenv("FOUNDER_PASSWORD"), "founder password")
	founderName := fs.String("founder-name", envOr("FOUNDER_NAME", "Founder"), "founder display name")
	hrEmail := fs.String("hr-email", os.Getenv("HR_EMAIL"), "HR login email")
	hrPassword := fs.String("hr-pass", os.Getenv("HR_PASSWORD"), "HR password")
	hrName := fs.String("hr-name", envOr("HR_NAME", "HR"), "HR display name")
	deleteOld := fs.Bool("delete-old", os.Getenv("DELETE_OLD") == "1", "delete existing accounts before seeding")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if *founderEmail == "" || *founderPassword == "" || *hrEmail == "" || *hrPassword == "" {
		return options{}, fmt.Errorf("missing required values")
	}
	return options{
		founder:   provisioner.Account{Email: *founderEmail, Password: *founderPassword, Name: *founderName, Role: models.EmployeeRoleFounder},
		hr:        provisioner.Account{Email: *hrEmail, Password: *hrPassword, Name: *hrName, Role: models.EmployeeRoleHR},
		deleteOld: *deleteOld,
	}, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idp, err := identity.New(identity.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seeding failed: %v. Set IDENTITY_URL and IDENTITY_SERVICE_KEY.\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	contract, err := models.ResolveSchemaContract(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seeding failed: %v\n", err)
		os.Exit(1)
	}

	p := &provisioner.Provisioner{
		Identity:  idp,
		Employees: provisioner.GormEmployeeDirectory{DB: db, Start: contract.Employee},
		Logger:    config.GetLogger(),
		DeleteOld: opts.deleteOld,
	}
	seeded, err := p.Run(ctx, []provisioner.Account{opts.founder, opts.hr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seeding failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Seeded users:")
	for _, s := range seeded {
		label := "Founder"
		if s.Role == models.EmployeeRoleHR {
			label = "HR"
		}
		fmt.Printf("- %s: %s (id: %s)\n", label, s.Email, s.UserId)
	}
}
