// Package core provides the foundational domain types shared by modelmux:
//
//   - Message (role + text), the common currency of every chat backend
//   - Role constants for system, human and assistant turns
//   - Sentinel errors used across the registry, templating and dispatch layers
//
// The package intentionally has no dependencies on concrete providers so that
// prompt templates, backends and the dispatch engine can all share it.
package core
