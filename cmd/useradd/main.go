// Command useradd provisions a dashboard account directly in the credential
// store. It reads the same configuration as the server.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/NotEclipsed/jira-dashboard/config"
	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/dto"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/service"
	"github.com/NotEclipsed/jira-dashboard/internal/logging"
	"github.com/NotEclipsed/jira-dashboard/internal/store"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type userCreator interface {
	CreateUser(ctx context.Context, input dto.CreateUserInput) (*domain.User, error)
}

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env, os.Stderr)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "useradd:", err)
		os.Exit(1)
	}
	defer closeStore()

	trail, err := audit.NewTrail(audit.Config{
		Dir:    cfg.AuditDir,
		Secret: []byte(cfg.AuditHMACSecret),
		Logger: log,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "useradd:", err)
		os.Exit(1)
	}
	defer trail.Close()

	ctx = audit.WithMeta(ctx, audit.Meta{UserAgent: "useradd"})
	users := service.NewUserService(repo, trail, cfg)
	if err := run(ctx, os.Args[1:], os.Stdout, users); err != nil {
		fmt.Fprintln(os.Stderr, "useradd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, users userCreator) error {
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	fs.SetOutput(out)
	username := fs.String("username", "", "login name (3-32 letters, digits, '.', '_' or '-')")
	email := fs.String("email", "", "email address")
	role := fs.String("role", domain.RoleUser, "admin or user")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		fs.Usage()
		return errors.New("-username and -email are required")
	}

	password, err := promptPassword(out)
	if err != nil {
		return err
	}

	user, err := users.CreateUser(ctx, dto.CreateUserInput{
		Username: *username,
		Email:    *email,
		Password: password,
		Role:     *role,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "created %s (%s, role %s); password change required at first login\n", user.Username, user.ID, user.Role)
	return nil
}

func promptPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	fmt.Fprint(out, "Repeat password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	if !bytes.Equal(first, second) {
		return "", errors.New("passwords do not match")
	}
	if problems := service.PasswordProblems(string(first)); len(problems) > 0 {
		return "", fmt.Errorf("password must contain %v", problems)
	}
	return string(first), nil
}
