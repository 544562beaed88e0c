// Package app provides the application service layer.
//
// TaskService validates task input, calls the repository scoped to the
// authenticated owner, and announces every committed mutation to that
// owner's live connections. HTTP handlers depend on it; it depends on
// domain interfaces only.
package app
