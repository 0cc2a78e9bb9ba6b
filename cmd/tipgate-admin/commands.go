package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/MrEthical07/tipgate/internal"
	"github.com/MrEthical07/tipgate/netpolicy"
	"github.com/MrEthical07/tipgate/password"
	"github.com/MrEthical07/tipgate/permission"
	"github.com/MrEthical07/tipgate/store"
)

type app struct {
	recs       records
	verifier   *password.Verifier
	out        io.Writer
	readSecret func(prompt string) (string, error)
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "tenant":
		return a.createTenant(ctx, args)
	case "user":
		return a.createUser(ctx, args)
	case "tip":
		return a.createTip(ctx, args)
	case "hash":
		return a.hash()
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func (a *app) createTenant(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tenant", flag.ContinueOnError)
	id := fs.Int("id", 0, "tenant id")
	salt := fs.String("salt", "", "receipt salt (generated when empty)")
	inactive := fs.Bool("inactive", false, "create the tenant disabled")
	allow := fs.String("allow-list", "", "comma-separated staff IP ranges; enables the IP filter")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *salt == "" {
		s, err := password.NewSalt()
		if err != nil {
			return err
		}
		*salt = s
	}

	t := store.Tenant{ID: *id, Active: !*inactive, ReceiptSalt: *salt}
	if *allow != "" {
		list, err := netpolicy.ParseAllowList(*allow)
		if err != nil {
			return err
		}
		t.Network.IPFilterEnabled = true
		t.Network.IPAllowList = list.String()
	}
	if err := a.recs.saveTenant(ctx, t); err != nil {
		return fmt.Errorf("save tenant: %w", err)
	}
	fmt.Fprintf(a.out, "tenant %d saved (active=%t)\n", t.ID, t.Active)
	if t.Network.IPFilterEnabled {
		fmt.Fprintf(a.out, "ip allow-list: %s\n", t.Network.IPAllowList)
	}
	return nil
}

func (a *app) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("user", flag.ContinueOnError)
	tenantID := fs.Int("tenant", store.RootTenantID, "tenant id")
	username := fs.String("username", "", "login name")
	roleName := fs.String("role", "receiver", "admin, custodian or receiver")
	withToken := fs.Bool("token", false, "also issue a long-lived auth token")
	changePassword := fs.Bool("password-change-needed", true, "require a password change at first login")
	if err := fs.Parse(args); err != nil {
		return err
	}

	role, err := permission.ParseRole(*roleName)
	if err != nil {
		return err
	}
	if !role.Staff() {
		return fmt.Errorf("role %s cannot be assigned to a user", role)
	}
	if *username == "" {
		return errors.New("-username is required")
	}

	secret, err := a.confirmedSecret("Password: ")
	if err != nil {
		return err
	}
	hash, salt, err := a.verifier.Hash(secret)
	if err != nil {
		return err
	}

	u := store.User{
		ID:                   uuid.NewString(),
		TenantID:             *tenantID,
		Username:             *username,
		Role:                 role,
		PasswordHash:         hash,
		Salt:                 salt,
		State:                store.StateEnabled,
		PasswordChangeNeeded: *changePassword,
	}
	if *withToken {
		if u.AuthToken, err = internal.NewAuthToken(); err != nil {
			return err
		}
	}

	id, err := a.recs.createUser(ctx, u)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(a.out, "user %s created in tenant %d\n", id, u.TenantID)
	if u.AuthToken != "" {
		fmt.Fprintf(a.out, "auth token: %s\n", u.AuthToken)
	}
	return nil
}

func (a *app) createTip(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tip", flag.ContinueOnError)
	tenantID := fs.Int("tenant", store.RootTenantID, "tenant id")
	digits := fs.Int("digits", 16, "receipt length")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tenant, err := a.recs.tenant(ctx, *tenantID)
	if err != nil {
		return fmt.Errorf("load tenant %d: %w", *tenantID, err)
	}
	receipt, err := internal.NewReceipt(*digits)
	if err != nil {
		return err
	}
	hash, err := a.verifier.HashReceipt(receipt, tenant.ReceiptSalt)
	if err != nil {
		return err
	}

	id, err := a.recs.createTip(ctx, store.Tip{
		ID:          uuid.NewString(),
		TenantID:    tenant.ID,
		ReceiptHash: hash,
	})
	if err != nil {
		return fmt.Errorf("create tip: %w", err)
	}
	fmt.Fprintf(a.out, "tip %s created in tenant %d\nreceipt: %s\n", id, tenant.ID, receipt)
	return nil
}

// hash prints a stored hash for a secret using the configured scheme.
func (a *app) hash() error {
	secret, err := a.confirmedSecret("Secret: ")
	if err != nil {
		return err
	}
	hash, salt, err := a.verifier.Hash(secret)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "hash: %s\n", hash)
	if salt != "" {
		fmt.Fprintf(a.out, "salt: %s\n", salt)
	}
	return nil
}

func (a *app) confirmedSecret(prompt string) (string, error) {
	first, err := a.readSecret(prompt)
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", errors.New("empty secret")
	}
	second, err := a.readSecret("Repeat " + prompt)
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("secrets do not match")
	}
	return first, nil
}
