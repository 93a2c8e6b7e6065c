package id_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eykd/companion-memory/id"
)

func TestNewJobID_IsParseable(t *testing.T) {
	jobID := id.NewJobID()
	parsed, err := id.ParseJobID(jobID.String())
	require.NoError(t, err)
	assert.Equal(t, jobID, parsed)
}

func TestNewJobID_Unique(t *testing.T) {
	a := id.NewJobID()
	b := id.NewJobID()
	assert.NotEqual(t, a, b)
}

func TestParseJobID_Invalid(t *testing.T) {
	_, err := id.ParseJobID("not-a-uuid")
	assert.Error(t, err)
}

func TestNewWorkerID_HasPrefix(t *testing.T) {
	w := id.NewWorkerID()
	assert.Contains(t, w.String(), "worker-")
}
