// Command tipgate-admin provisions tenants, staff users and tips in a SQL
// credential store, and hashes secrets for manual seeding.
//
// Usage:
//
//	tipgate-admin [-config path] tenant -id 2 [-salt S] [-inactive]
//	tipgate-admin [-config path] user -tenant 2 -username alice -role admin [-token]
//	tipgate-admin [-config path] tip -tenant 2 [-digits 16]
//	tipgate-admin [-config path] hash
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/MrEthical07/tipgate/internal/config"
	"github.com/MrEthical07/tipgate/store"
	"github.com/MrEthical07/tipgate/store/sqlstore"
)

const usage = `usage: tipgate-admin [-config path] <tenant|user|tip|hash> [flags]`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdin *os.File, stdout io.Writer) error {
	fs := flag.NewFlagSet("tipgate-admin", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New(usage)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	verifier, err := cfg.Engine().Password.NewVerifier()
	if err != nil {
		return err
	}

	ctx := context.Background()
	recs, closeFn, err := openRecords(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeFn()

	a := &app{
		recs:       recs,
		verifier:   verifier,
		out:        stdout,
		readSecret: terminalSecretReader(stdin, stdout),
	}
	return a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

func openRecords(ctx context.Context, cfg config.StoreConfig) (records, func(), error) {
	switch cfg.Driver {
	case "sqlite", "postgres":
		s, err := sqlstore.Open(ctx, sqlstore.Dialect(cfg.Driver), cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return sqlRecords{s}, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("store.driver %q is not persistent; configure sqlite or postgres", cfg.Driver)
	}
}

// terminalSecretReader prompts on out and reads without echo when in is a
// terminal, otherwise it reads one line.
func terminalSecretReader(in *os.File, out io.Writer) func(prompt string) (string, error) {
	lines := bufio.NewReader(in)
	return func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		fd := int(in.Fd())
		if term.IsTerminal(fd) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
		line, err := lines.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

// records is the write side the admin commands need.
type records interface {
	saveTenant(ctx context.Context, t store.Tenant) error
	tenant(ctx context.Context, id int) (store.Tenant, error)
	createUser(ctx context.Context, u store.User) (string, error)
	createTip(ctx context.Context, t store.Tip) (string, error)
}

type sqlRecords struct{ s *sqlstore.Store }

func (r sqlRecords) saveTenant(ctx context.Context, t store.Tenant) error {
	return r.s.SaveTenant(ctx, t)
}

func (r sqlRecords) tenant(ctx context.Context, id int) (store.Tenant, error) {
	return r.s.Tenant(ctx, id)
}

func (r sqlRecords) createUser(ctx context.Context, u store.User) (string, error) {
	return r.s.CreateUser(ctx, u)
}

func (r sqlRecords) createTip(ctx context.Context, t store.Tip) (string, error) {
	return r.s.CreateTip(ctx, t)
}
