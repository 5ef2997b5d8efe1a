// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instrumenter

import "context"

// ContextKey is a typed handle used to store a value in a context.Context.
// Keys are compared by identity, so two keys created with the same name
// never see each other's values.
type ContextKey[T any] struct {
	name string
}

func NewContextKey[T any](name string) *ContextKey[T] {
	return &ContextKey[T]{name: name}
}

func (k *ContextKey[T]) String() string {
	return k.name
}

// With returns a copy of ctx carrying value under k. ctx is left untouched.
func (k *ContextKey[T]) With(ctx context.Context, value T) context.Context {
	return context.WithValue(ctx, k, value)
}

// Get looks the value stored under k up in ctx and its parents.
func (k *ContextKey[T]) Get(ctx context.Context) (T, bool) {
	value, ok := ctx.Value(k).(T)
	return value, ok
}
