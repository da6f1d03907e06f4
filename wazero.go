package dispatch

import (
	internal "github.com/jerbob92/wazero-dispatch/internal"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostModuleName is the module name guests import the dispatch functions
// from.
const HostModuleName = "dispatch"

type wazeroEngine struct {
	internal.IEngine
}

func (we *wazeroEngine) NewFunctionExporter() FunctionExporter {
	return &functionExporter{}
}

// FunctionExporter configures the functions a wasm guest uses to message Go
// objects.
type FunctionExporter interface {
	// ExportFunctions builds functions to export with a wazero.HostModuleBuilder
	// named "dispatch".
	ExportFunctions(wazero.HostModuleBuilder) error
}

type functionExporter struct{}

// ExportFunctions implements FunctionExporter.ExportFunctions
func (e functionExporter) ExportFunctions(b wazero.HostModuleBuilder) error {
	b.NewFunctionBuilder().
		WithName("object_retain").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.ObjectRetain, []api.ValueType{api.ValueTypeI32}, []api.ValueType{}).
		Export("object_retain")

	b.NewFunctionBuilder().
		WithName("object_release").
		WithParameterNames("handle").
		WithGoModuleFunction(internal.ObjectRelease, []api.ValueType{api.ValueTypeI32}, []api.ValueType{}).
		Export("object_release")

	b.NewFunctionBuilder().
		WithName("selector").
		WithParameterNames("name", "len").
		WithResultNames("id").
		WithGoModuleFunction(internal.RegisterSelector, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("selector")

	b.NewFunctionBuilder().
		WithName("selector_utf16").
		WithParameterNames("name", "len").
		WithResultNames("id").
		WithGoModuleFunction(internal.RegisterSelectorUTF16, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("selector_utf16")

	b.NewFunctionBuilder().
		WithName("perform").
		WithParameterNames("receiver", "selector").
		WithResultNames("result").
		WithGoModuleFunction(internal.Perform, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("perform")

	return nil
}
