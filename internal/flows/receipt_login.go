package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/tipgate/permission"
	"github.com/MrEthical07/tipgate/session"
	"github.com/MrEthical07/tipgate/store"
)

// ReceiptStatus is the status carried by every whistleblower session.
const ReceiptStatus = "Enabled"

// RunReceiptLogin authenticates a whistleblower by receipt. The receipt is
// hashed under the tenant receipt salt and looked up within the tenant.
// Only the whistleblower web-access flag is consulted; the IP allow-list
// never applies.
func RunReceiptLogin(ctx context.Context, in ReceiptInput, deps LoginDeps) LoginResult {
	start := deps.Now()
	res := LoginResult{TenantID: in.TenantID, Role: permission.RoleWhistleblower}

	tenant, kind, err := loadTenant(ctx, in.TenantID, deps)
	if kind != FailureNone {
		return settle(ctx, start, deps, fail(res, kind, err))
	}

	hash, err := deps.Verifier.HashReceipt(in.Receipt, tenant.ReceiptSalt)
	if err != nil {
		err = fmt.Errorf("hash receipt: %w", err)
		reportConfig(ctx, deps, in.TenantID, err)
		return settle(ctx, start, deps, fail(res, FailureConfig, err))
	}

	tip, err := deps.Credentials.TipByReceiptHash(ctx, in.TenantID, hash)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return settle(ctx, start, deps, fail(res, FailureReceiptMismatch, nil))
	case err != nil:
		return settle(ctx, start, deps, fail(res, FailureBackend, fmt.Errorf("lookup tip: %w", err)))
	}
	res.UserID = tip.ID

	if err := tenant.Network.AuthorizeReceipt(in.Origin); err != nil {
		return settle(ctx, start, deps, fail(res, networkFailure(ctx, in.TenantID, err, deps), err))
	}

	if res = settle(ctx, start, deps, res); res.WaitErr != nil {
		return res
	}

	if err := deps.Credentials.TouchTipAccess(ctx, tip.ID, deps.Now()); err != nil {
		return fail(res, FailureBackend, fmt.Errorf("record tip access: %w", err))
	}

	sess, err := deps.Sessions.Create(ctx, session.NewSession{
		TenantID: in.TenantID,
		UserID:   tip.ID,
		Role:     permission.RoleWhistleblower,
		Status:   ReceiptStatus,
	})
	if err != nil {
		return fail(res, FailureBackend, fmt.Errorf("create session: %w", err))
	}
	res.Session = sess
	return res
}
