package main

import (
	"testing"

	"contratto/services/tasks"

	"github.com/stretchr/testify/assert"
)

func TestJobNames(t *testing.T) {
	names := jobNames()
	assert.Len(t, names, len(tasks.Schedule))
	assert.Contains(t, names, tasks.TypeSettleHolds)
	assert.IsIncreasing(t, names)
}

func TestAuditRequiresWallet(t *testing.T) {
	cmd := auditCmd()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "wallet")
}
