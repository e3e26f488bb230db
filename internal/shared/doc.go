// Package shared holds helpers used by more than one pipeline package.
//
// The testutil subpackage provides slog capture handlers and log
// assertions for tests that check what a step logged.
package shared
