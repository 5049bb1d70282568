// Command createuser adds an account directly to the database.
// Used to bootstrap the first admin, who then creates everyone else through the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/brokeroffice/internal/db"
	"github.com/nkiryanov/brokeroffice/internal/models"
	"github.com/nkiryanov/brokeroffice/internal/repository/postgres"
	"github.com/nkiryanov/brokeroffice/internal/service/auth"
	"github.com/nkiryanov/brokeroffice/internal/service/user"
)

// Recorded as creator of the account
const actor = "createuser"

type options struct {
	DatabaseDSN string
	Username    string
	Email       string
	Name        string
	RoleID      int
	Password    string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "createuser: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, getenv func(string) string, args []string, stdout io.Writer) error {
	o, err := parseOptions(getenv, args)
	if err != nil {
		return err
	}

	pool, err := db.ConnectAndMigrate(ctx, o.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	defer pool.Close()

	s := user.NewService(auth.DefaultHasher, postgres.NewStorage(pool))
	u, err := s.CreateUser(ctx, models.NewUser{
		RoleID:   o.RoleID,
		Name:     o.Name,
		Username: o.Username,
		Email:    o.Email,
		Password: o.Password,
	}, actor)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(stdout, "user %q created with id %d\n", u.Username, u.ID)
	return err
}

// Password is read from CREATEUSER_PASSWORD if not passed, so it does not end up in shell history
func parseOptions(getenv func(string) string, args []string) (options, error) {
	o := options{
		DatabaseDSN: getenv("DATABASE_URI"),
		RoleID:      models.RoleAdmin,
		Password:    getenv("CREATEUSER_PASSWORD"),
	}

	fs := pflag.NewFlagSet("createuser", pflag.ContinueOnError)
	fs.StringVarP(&o.DatabaseDSN, "database", "d", o.DatabaseDSN, "Database connection string")
	fs.StringVarP(&o.Username, "username", "u", o.Username, "Username")
	fs.StringVar(&o.Email, "email", o.Email, "Email")
	fs.StringVar(&o.Name, "name", o.Name, "Full name")
	fs.IntVar(&o.RoleID, "role", o.RoleID, "Role id (1 is admin)")
	fs.StringVarP(&o.Password, "password", "p", o.Password, "Password")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	var errs []error
	if o.DatabaseDSN == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if o.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if o.Email == "" {
		errs = append(errs, errors.New("email is required"))
	}
	if o.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	if o.RoleID < models.RoleAdmin || o.RoleID > models.RoleAnalyst {
		errs = append(errs, fmt.Errorf("unknown role %d", o.RoleID))
	}
	if o.Name == "" {
		o.Name = o.Username
	}

	return o, errors.Join(errs...)
}
