package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/lumenlearn/lumen/internal/shared"
	"github.com/lumenlearn/lumen/internal/users"
)

// UserAdmin is the slice of the users service the admin commands drive.
type UserAdmin interface {
	Register(ctx context.Context, in users.RegisterInput) (*users.User, error)
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	ResetPassword(ctx context.Context, id uuid.UUID, next string) error
	Deactivate(ctx context.Context, id uuid.UUID) (*users.User, error)
	Reactivate(ctx context.Context, id uuid.UUID) (*users.User, error)
	RequestDeletion(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// Authenticator checks an email/password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*users.User, error)
}

// UsersCLI implements `lumen users <command>`.
type UsersCLI struct {
	users  UserAdmin
	auth   Authenticator
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// UsersOptions wires the streams used by the commands. Nil streams default
// to the process streams.
type UsersOptions struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewUsersCLI constructs the account admin commands.
func NewUsersCLI(admin UserAdmin, auth Authenticator, opts UsersOptions) *UsersCLI {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &UsersCLI{users: admin, auth: auth, stdin: opts.Stdin, stdout: opts.Stdout, stderr: opts.Stderr}
}

const usersUsage = "usage: lumen users <create|set-password|verify|deactivate|reactivate|request-deletion> [flags]"

// Run dispatches a subcommand and returns the process exit code.
func (c *UsersCLI) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(c.stderr, usersUsage)
		return 2
	}
	name, rest := args[0], args[1:]
	var err error
	switch name {
	case "create":
		err = c.create(ctx, rest)
	case "set-password":
		err = c.setPassword(ctx, rest)
	case "verify":
		return c.verify(ctx, rest)
	case "deactivate":
		err = c.transition(ctx, name, rest, c.users.Deactivate)
	case "reactivate":
		err = c.transition(ctx, name, rest, c.users.Reactivate)
	case "request-deletion":
		err = c.transition(ctx, name, rest, c.users.RequestDeletion)
	default:
		_, _ = fmt.Fprintln(c.stderr, usersUsage)
		return 2
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		_, _ = fmt.Fprintf(c.stderr, "users %s: %v\n", name, err)
		return 1
	}
	return 0
}

func (c *UsersCLI) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("users "+name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *UsersCLI) create(ctx context.Context, args []string) error {
	fs := c.flagSet("create")
	var in users.RegisterInput
	fs.StringVar(&in.FirstName, "first-name", "", "given name")
	fs.StringVar(&in.LastName, "last-name", "", "family name")
	fs.StringVar(&in.Email, "email", "", "login email")
	fs.BoolVar(&in.IsInstructor, "instructor", false, "register as instructor")
	fs.StringVar(&in.Bio, "bio", "", "profile bio")
	if err := fs.Parse(args); err != nil {
		return err
	}
	password, err := c.readPassword()
	if err != nil {
		return err
	}
	in.Password = password

	user, err := c.users.Register(ctx, in)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.stdout, "created %s (%s, role=%s)\n", user.ID, user.Email, user.Role)
	return nil
}

func (c *UsersCLI) setPassword(ctx context.Context, args []string) error {
	fs := c.flagSet("set-password")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := c.lookup(ctx, *email)
	if err != nil {
		return err
	}
	password, err := c.readPassword()
	if err != nil {
		return err
	}
	if err := c.users.ResetPassword(ctx, user.ID, password); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.stdout, "password updated for %s\n", user.Email)
	return nil
}

// verify exits 0 when the password matches and 3 when it does not.
func (c *UsersCLI) verify(ctx context.Context, args []string) int {
	fs := c.flagSet("verify")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*email) == "" {
		_, _ = fmt.Fprintln(c.stderr, "users verify: --email is required")
		return 1
	}
	password, err := c.readPassword()
	if err != nil {
		_, _ = fmt.Fprintf(c.stderr, "users verify: %v\n", err)
		return 1
	}
	user, err := c.auth.Authenticate(ctx, *email, password)
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(c.stdout, "ok %s\n", user.ID)
		return 0
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrTooManyAttempts):
		_, _ = fmt.Fprintf(c.stdout, "rejected: %v\n", err)
		return 3
	default:
		_, _ = fmt.Fprintf(c.stderr, "users verify: %v\n", err)
		return 1
	}
}

func (c *UsersCLI) transition(ctx context.Context, name string, args []string, apply func(context.Context, uuid.UUID) (*users.User, error)) error {
	fs := c.flagSet(name)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := c.lookup(ctx, *email)
	if err != nil {
		return err
	}
	updated, err := apply(ctx, user.ID)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.stdout, "%s is now %s\n", updated.Email, updated.Status)
	return nil
}

func (c *UsersCLI) lookup(ctx context.Context, email string) (*users.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("--email is required")
	}
	return c.users.GetByEmail(ctx, email)
}

// readPassword takes the first line of stdin so secrets stay out of argv.
func (c *UsersCLI) readPassword() (string, error) {
	scanner := bufio.NewScanner(c.stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", errors.New("password expected on stdin")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}
