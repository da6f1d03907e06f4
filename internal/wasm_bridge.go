package dispatch

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
)

const (
	// maxFlatParams and maxFlatResults are the largest call shapes the wasm
	// bridge passes as plain values.
	maxFlatParams  = 16
	maxFlatResults = 1
)

// wasmEntry is a function exported by a wasm module implementing a method.
// The receiver and selector are passed as its first two i32 params.
type wasmEntry struct {
	fn api.Function
}

func (we *wasmEntry) bridge() callBridge {
	return theWasmBridge
}

func (we *wasmEntry) String() string {
	return fmt.Sprintf("wasm function %s", we.fn.Definition().DebugName())
}

type wasmBridge struct{}

var theWasmBridge = &wasmBridge{}

// flatValue is one wasm value read from (or written to) a frame slot.
type flatValue struct {
	slot      int
	offset    int
	td        *TypeDescriptor
	valueType api.ValueType
}

type wasmPlan struct {
	params  []flatValue
	results []flatValue
}

// flatten appends the wasm values making up td, aggregates member by member.
func flatten(flat []flatValue, slot, offset int, td *TypeDescriptor) ([]flatValue, error) {
	switch td.class {
	case TypeClassVoid:
		return flat, nil
	case TypeClassStruct:
		var err error
		for i, field := range td.fields {
			flat, err = flatten(flat, slot, offset+td.offsets[i], field)
			if err != nil {
				return nil, err
			}
		}
		return flat, nil
	case TypeClassInt, TypeClassUint:
		valueType := api.ValueTypeI32
		if td.size == 8 {
			valueType = api.ValueTypeI64
		}
		return append(flat, flatValue{slot: slot, offset: offset, td: td, valueType: valueType}), nil
	case TypeClassFloat:
		valueType := api.ValueTypeF64
		if td.size == 4 {
			valueType = api.ValueTypeF32
		}
		return append(flat, flatValue{slot: slot, offset: offset, td: td, valueType: valueType}), nil
	case TypeClassBool, TypeClassPointer, TypeClassObject, TypeClassSelector:
		return append(flat, flatValue{slot: slot, offset: offset, td: td, valueType: api.ValueTypeI32}), nil
	}
	return nil, fmt.Errorf("%w: %s can not be passed to wasm", ErrUnsupportedCallShape, td)
}

func valueTypeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for i := range types {
		names[i] = api.ValueTypeName(types[i])
	}
	return names
}

func (wb *wasmBridge) prepareCall(sig *Signature, entry entryPoint) (callPlan, error) {
	we, ok := entry.(*wasmEntry)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a wasm function", ErrUnsupportedCallShape, entry)
	}

	plan := &wasmPlan{}
	var err error
	for slot, td := range sig.frame {
		plan.params, err = flatten(plan.params, slot, 0, td)
		if err != nil {
			return nil, err
		}
	}
	plan.results, err = flatten(plan.results, -1, 0, sig.ret)
	if err != nil {
		return nil, err
	}

	if len(plan.params) > maxFlatParams {
		return nil, fmt.Errorf("%w: signature %q needs %d wasm params, at most %d are supported", ErrUnsupportedCallShape, sig.encoding, len(plan.params), maxFlatParams)
	}
	if len(plan.results) > maxFlatResults {
		return nil, fmt.Errorf("%w: signature %q needs %d wasm results, at most %d is supported", ErrUnsupportedCallShape, sig.encoding, len(plan.results), maxFlatResults)
	}

	def := we.fn.Definition()
	expectedParams := make([]api.ValueType, len(plan.params))
	for i := range plan.params {
		expectedParams[i] = plan.params[i].valueType
	}
	expectedResults := make([]api.ValueType, len(plan.results))
	for i := range plan.results {
		expectedResults[i] = plan.results[i].valueType
	}

	if !sameValueTypes(def.ParamTypes(), expectedParams) || !sameValueTypes(def.ResultTypes(), expectedResults) {
		return nil, fmt.Errorf("%w: signature %q needs params %v and results %v, %s has params %v and results %v",
			ErrUnsupportedCallShape, sig.encoding,
			valueTypeNames(expectedParams), valueTypeNames(expectedResults),
			def.DebugName(), valueTypeNames(def.ParamTypes()), valueTypeNames(def.ResultTypes()))
	}

	return plan, nil
}

func sameValueTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (wb *wasmBridge) invoke(ctx context.Context, sc *slotContext, plan callPlan, entry entryPoint, frame *callFrame) error {
	wp := plan.(*wasmPlan)
	we := entry.(*wasmEntry)

	params := make([]uint64, len(wp.params))
	for i, fv := range wp.params {
		src := frame.args[fv.slot][fv.offset:]
		// wasm32 addresses are i32, wider host pointers must fit.
		if fv.td.class == TypeClassPointer && fv.td.size > 4 {
			if raw := getUint(src, fv.td.size); raw > math.MaxUint32 {
				if err := sc.precisionLoss(fv.td, Pointer(raw)); err != nil {
					return argumentError(frame.sig, fv.slot, err)
				}
			}
		}
		params[i] = encodeFlat(fv, src)
	}

	results, err := we.fn.Call(ctx, params...)
	if err != nil {
		return fmt.Errorf("could not call %s: %w", we, err)
	}

	for i, fv := range wp.results {
		decodeFlat(fv, frame.ret[fv.offset:], results[i])
		if fv.td.class == TypeClassObject {
			// The guest hands over one reference with every object it returns.
			sc.retain(api.DecodeI32(results[i]))
		}
	}

	return nil
}

func encodeFlat(fv flatValue, src []byte) uint64 {
	raw := getUint(src, fv.td.size)
	switch fv.valueType {
	case api.ValueTypeI32:
		if fv.td.class == TypeClassInt {
			switch fv.td.size {
			case 1:
				return api.EncodeI32(int32(int8(raw)))
			case 2:
				return api.EncodeI32(int32(int16(raw)))
			}
			return api.EncodeI32(int32(raw))
		}
		return api.EncodeU32(uint32(raw))
	case api.ValueTypeF32:
		return api.EncodeF32(math.Float32frombits(uint32(raw)))
	}
	return raw
}

func decodeFlat(fv flatValue, dst []byte, v uint64) {
	switch fv.valueType {
	case api.ValueTypeI32:
		putUint(dst, fv.td.size, uint64(api.DecodeU32(v)))
	case api.ValueTypeF32:
		putUint(dst, fv.td.size, uint64(math.Float32bits(api.DecodeF32(v))))
	default:
		putUint(dst, fv.td.size, v)
	}
}
