// Package logx wraps zerolog behind a small structured-logging API with a
// hot-swappable root: Service.Apply() can change level and sinks at runtime
// while every Logger handed out earlier stays live.
package logx
