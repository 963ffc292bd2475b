//go:build !linux

// Package pool: pinning is a no-op off Linux.

package pool

func pin[T any](slab []T)   {}
func unpin[T any](slab []T) {}
