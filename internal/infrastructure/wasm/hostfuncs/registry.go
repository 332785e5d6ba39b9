// Package hostfuncs exposes outbound policy checks to wasm guests.
package hostfuncs

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ModuleName is the import module guests link against.
const ModuleName = "egress_host"

// RegisterHostFunctions instantiates the egress_host module in runtime.
func RegisterHostFunctions(ctx context.Context, runtime wazero.Runtime) error {
	builder := runtime.NewHostModuleBuilder(ModuleName)

	// Register socket address check
	// Parameters: addrPacked (i64), use (i32)
	// Returns: allowed (i32)
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(SocketAddrCheck),
			[]api.ValueType{api.ValueTypeI64, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		WithParameterNames("addr", "use").
		Export("socket_addr_check")

	_, err := builder.Instantiate(ctx)
	return err
}
