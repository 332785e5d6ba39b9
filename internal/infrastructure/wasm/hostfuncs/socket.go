package hostfuncs

import (
	"context"
	"log/slog"

	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/egress/internal/domain/outbound"
)

// Results of socket_addr_check.
const (
	Deny  uint32 = 0
	Allow uint32 = 1
)

// SocketChecker decides whether a guest may use a resolved socket address.
type SocketChecker interface {
	CheckSocketAddr(ctx context.Context, addr string, use outbound.SocketAddrUse) bool
}

type checkerContextKey struct{}

// WithSocketChecker attaches the checker for the instance whose guest code
// runs under ctx. Calls without a checker are denied.
func WithSocketChecker(ctx context.Context, checker SocketChecker) context.Context {
	return context.WithValue(ctx, checkerContextKey{}, checker)
}

// SocketCheckerFrom returns the checker attached to ctx.
func SocketCheckerFrom(ctx context.Context) (SocketChecker, bool) {
	checker, ok := ctx.Value(checkerContextKey{}).(SocketChecker)
	return checker, ok && checker != nil
}

// SocketAddrCheck implements the socket_addr_check host function.
// Parameters: addrPacked (i64) - packed ptr+len of "ip:port", use (i32)
// Returns: 1 allow, 0 deny
func SocketAddrCheck(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(checkSocketAddr(ctx, mod.Memory(), stack[0], api.DecodeU32(stack[1])))
}

func checkSocketAddr(ctx context.Context, mem api.Memory, addrPacked uint64, rawUse uint32) uint32 {
	checker, ok := SocketCheckerFrom(ctx)
	if !ok {
		slog.WarnContext(ctx, "hostfuncs: socket_addr_check called without an instance policy")
		return Deny
	}

	use := outbound.SocketAddrUse(rawUse)
	if use < outbound.TCPBind || use > outbound.UDPOutgoingDatagram {
		slog.DebugContext(ctx, "hostfuncs: unknown socket address use", "use", rawUse)
		return Deny
	}

	addr, err := readString(mem, addrPacked)
	if err != nil {
		slog.ErrorContext(ctx, "hostfuncs: failed to read socket address from guest memory", "error", err)
		return Deny
	}

	if checker.CheckSocketAddr(ctx, addr, use) {
		return Allow
	}
	return Deny
}
