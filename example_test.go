package tipgate_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/tipgate"
	"github.com/MrEthical07/tipgate/netpolicy"
	"github.com/MrEthical07/tipgate/store"
	"github.com/MrEthical07/tipgate/store/memory"
)

func exampleEngine() (*tipgate.Engine, string) {
	ctx := context.Background()
	cfg := tipgate.DefaultConfig()
	cfg.Password.ScryptN = 1 << 10

	verifier, err := cfg.Password.NewVerifier()
	if err != nil {
		panic(err)
	}

	creds := memory.New()
	_ = creds.PutTenant(ctx, store.Tenant{
		ID:          1,
		Active:      true,
		ReceiptSalt: "example-salt",
		Network: netpolicy.Policy{
			WebAccess: netpolicy.RoleAccess{Whistleblower: true},
		},
	})

	const receipt = "4815162342000000"
	hash, _ := verifier.HashReceipt(receipt, "example-salt")
	_, _ = creds.PutTip(ctx, store.Tip{ID: "tip-1", TenantID: 1, ReceiptHash: hash})

	engine, err := tipgate.New().
		WithConfig(cfg).
		WithCredentialStore(creds).
		Build()
	if err != nil {
		panic(err)
	}
	return engine, receipt
}

// ExampleEngine_ReceiptLogin logs a whistleblower in with a receipt, renews
// the session and logs out.
func ExampleEngine_ReceiptLogin() {
	engine, receipt := exampleEngine()
	defer engine.Close()
	ctx := context.Background()

	sess, err := engine.ReceiptLogin(ctx, tipgate.ReceiptLoginRequest{TenantID: 1, Receipt: receipt})
	if err != nil {
		fmt.Println("login failed:", err)
		return
	}
	fmt.Println(sess.Role, sess.UserID, sess.Status)

	if _, err := engine.RefreshSession(ctx, sess.SessionID); err != nil {
		fmt.Println("refresh failed:", err)
	}
	_ = engine.Logout(ctx, sess.SessionID)

	_, err = engine.RefreshSession(ctx, sess.SessionID)
	fmt.Println(errors.Is(err, tipgate.ErrSessionNotFound))
	// Output:
	// whistleblower tip-1 Enabled
	// true
}

// ExampleEngine_Login shows how denials map to sentinel errors.
func ExampleEngine_Login() {
	engine, _ := exampleEngine()
	defer engine.Close()

	_, err := engine.Login(context.Background(), tipgate.LoginRequest{
		TenantID: 1,
		Username: "nobody",
		Password: "guess",
	})
	switch {
	case errors.Is(err, tipgate.ErrInvalidAuthentication):
		fmt.Println("invalid authentication")
	case errors.Is(err, tipgate.ErrTorNetworkRequired), errors.Is(err, tipgate.ErrAccessLocationInvalid):
		fmt.Println("network denied")
	}
	// Output: invalid authentication
}
