// Package adapt provides:
//
//   - Round-trip conversion between Go objects and a canonical intermediate
//     Value model (null/bool/int/float/string/bytes/list/map)
//   - A type-directed Converter registry with ranked specificity and explicit
//     ambiguity errors (no silent picks)
//   - A hook system so new types and wire formats plug in without touching the
//     dispatch core
//   - Schema derivation from type descriptors for schema-aware wire formats
//   - A stable error model via Issues (JSON Pointer, code, message)
//
// Design policy:
//   - Keep only public APIs in the root package; built-in wire formats live
//     under codec/ and register explicitly at startup via codec.RegisterAll.
//   - Dispatch never special-cases a concrete type: built-ins go through the
//     same registry and specificity tiers as third-party converters.
//   - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//	a := adapt.New()
//	_ = codec.RegisterAll(a)
//
//	data, err := a.Marshal(ctx, obj, "json")
//	out, err := adapt.Unmarshal[MyType](ctx, a, data, "json")
package adapt
