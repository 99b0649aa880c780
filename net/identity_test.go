// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package net

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestIdentityPersistence covers spec.md §8.1: constructing identity at the
// same directory twice yields the same peer id on the second construction.
func TestIdentityPersistence(t *testing.T) {
	dir := t.TempDir()

	first, err := loadOrCreateIdentity(dir)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID.String())

	second, err := loadOrCreateIdentity(dir)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
}

// TestIdentityPersistenceFreshDirsDiffer guards against loadOrCreateIdentity
// accidentally returning a fixed identity regardless of directory.
func TestIdentityPersistenceFreshDirsDiffer(t *testing.T) {
	a, err := loadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)

	b, err := loadOrCreateIdentity(t.TempDir())
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)
}
