// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package logging wraps zap into the narrow, structured-field logging
// interface used throughout the networking core, mirroring the call shape
// of github.com/ipfs/go-log/v2's named subsystem loggers.
package logging

import (
	"context"
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

// KV is a single structured logging field.
type KV struct {
	Key   string
	Value any
}

// NewKV builds a KV pair, e.g. logging.NewKV("PeerID", pid).
func NewKV(key string, value any) KV {
	return KV{Key: key, Value: value}
}

func toZapFields(kvs []KV) []zap.Field {
	fields := make([]zap.Field, 0, len(kvs))
	for _, kv := range kvs {
		fields = append(fields, zap.Any(kv.Key, kv.Value))
	}
	return fields
}

// Logger is a named logging subsystem. Debug/Info/Error record developer
// diagnostics; FeedbackInfo/FeedbackFatalE are user-facing CLI output,
// split the way the teacher splits its "log" vs "cmd feedback" channels.
type Logger struct {
	name string
	z    *zap.SugaredLogger
}

// MustNewLogger returns a logger for the named subsystem. Panics only if the
// underlying zap pipeline cannot be constructed, which in practice never
// happens with the production config used here.
func MustNewLogger(name string) *Logger {
	base := logging.Logger(name).Desugar()
	return &Logger{name: name, z: base.Sugar()}
}

func (l *Logger) with(ctx context.Context, fields []KV) *zap.SugaredLogger {
	_ = ctx // reserved for request-scoped trace ids
	if len(fields) == 0 {
		return l.z
	}
	return l.z.With(toZapFieldsAny(fields)...)
}

func toZapFieldsAny(kvs []KV) []any {
	out := make([]any, 0, len(kvs)*2)
	for _, kv := range kvs {
		out = append(out, kv.Key, kv.Value)
	}
	return out
}

// Debug logs a developer-facing debug line.
func (l *Logger) Debug(ctx context.Context, msg string, kvs ...KV) {
	l.with(ctx, kvs).Debug(msg)
}

// Info logs a developer-facing informational line.
func (l *Logger) Info(ctx context.Context, msg string, kvs ...KV) {
	l.with(ctx, kvs).Info(msg)
}

// Error logs a developer-facing error line.
func (l *Logger) Error(ctx context.Context, msg string, kvs ...KV) {
	l.with(ctx, kvs).Error(msg)
}

// ErrorE logs a developer-facing error line with an attached error value.
func (l *Logger) ErrorE(ctx context.Context, msg string, err error, kvs ...KV) {
	kvs = append(kvs, NewKV("Error", err.Error()))
	l.with(ctx, kvs).Error(msg)
}

// FeedbackInfo prints a user-facing status line to stdout, the way the
// teacher's cli package reports config/start progress to the operator.
func (l *Logger) FeedbackInfo(ctx context.Context, msg string, kvs ...KV) {
	fmt.Fprintln(os.Stdout, formatFeedback(msg, kvs))
	l.Info(ctx, msg, kvs...)
}

// FeedbackFatalE prints a user-facing fatal error and exits the process.
// Reserved for CLI entrypoints where there is no caller left to handle the
// error; never used inside the networking core itself.
func (l *Logger) FeedbackFatalE(ctx context.Context, msg string, err error, kvs ...KV) {
	kvs = append(kvs, NewKV("Error", err.Error()))
	fmt.Fprintln(os.Stderr, formatFeedback(msg, kvs))
	l.ErrorE(ctx, msg, err)
	os.Exit(1)
}

func formatFeedback(msg string, kvs []KV) string {
	out := msg
	for _, kv := range kvs {
		out = fmt.Sprintf("%s %s=%v", out, kv.Key, kv.Value)
	}
	return out
}
