package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "completed", "failed", "refunded"} {
		status, err := ParseStatus(s)
		assert.NoError(t, err)
		assert.Equal(t, Status(s), status)
	}

	_, err := ParseStatus("paid")
	assert.Error(t, err)
}

func TestStatus_IsRegression(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusRefunded, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusCompleted, StatusFailed, true},
		{StatusRefunded, StatusCompleted, true},
		{StatusRefunded, StatusRefunded, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.IsRegression(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
