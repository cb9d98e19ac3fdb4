// Package logx wraps zerolog behind a small Field-based API so the rest of
// the daemon never imports zerolog directly. The Service variant supports
// swapping sinks and level at runtime when settings change.
package logx
