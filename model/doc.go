// Package model defines the provider‑agnostic chat capability consumed by the
// modelmux dispatch engine, plus helpers shared by concrete providers.
//
// Core goals:
//   - Unify synchronous completion, streaming and prompt formatting behind a
//     single interface (Model)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight faking for tests and demos (FakeModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (engine, scenarios) remain decoupled from vendor SDKs.
package model
