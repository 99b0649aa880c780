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

// TestQuorumFloor covers spec.md §8.5: put_record(r, Majority) on a network
// of N peers succeeds iff at least ceil((N+1)/2) peers acknowledge.
func TestQuorumFloor(t *testing.T) {
	cases := []struct {
		total int
		want  int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
		{10, 6},
	}
	for _, c := range cases {
		got := QuorumOf(QuorumMajority, 0).required(c.total)
		require.Equalf(t, c.want, got, "total=%d", c.total)
	}
}

func TestQuorumOne(t *testing.T) {
	require.Equal(t, 1, QuorumOf(QuorumOne, 0).required(10))
}

func TestQuorumAll(t *testing.T) {
	require.Equal(t, 7, QuorumOf(QuorumAll, 0).required(7))
}

func TestQuorumNClampsToTotal(t *testing.T) {
	require.Equal(t, 3, QuorumOf(QuorumN, 3).required(10))
	require.Equal(t, 10, QuorumOf(QuorumN, 99).required(10))
}

// TestQueryIDsAreUnique covers spec.md §3: a QueryId is unique for the
// lifetime of its outstanding query.
func TestQueryIDsAreUnique(t *testing.T) {
	seen := map[QueryId]bool{}
	for i := 0; i < 1000; i++ {
		id := nextQueryID()
		require.False(t, seen[id], "QueryId %d reused", id)
		seen[id] = true
	}
}
