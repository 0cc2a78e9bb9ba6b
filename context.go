package tipgate

import "context"

type clientIPContextKey struct{}
type tenantIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. It only feeds audit
// events; login decisions use the Origin of the request.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithTenantID attaches the tenant the request was addressed to. Session
// refresh and logout use it for audit events only; the session itself
// carries the tenant it was created for.
func WithTenantID(ctx context.Context, tenantID int) context.Context {
	return context.WithValue(ctx, tenantIDContextKey{}, tenantID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func tenantIDFromContext(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	tenantID, _ := ctx.Value(tenantIDContextKey{}).(int)
	return tenantID
}
