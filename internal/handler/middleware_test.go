package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/api/history/a1b2c3d4", "/api/history/{id}"},
		{"/api/clusters/web", "/api/clusters/web"},
		{"/api/deployments", "/api/deployments"},
		{"/health", "/health"},
		{"/api/history/deadbeef/nodes", "/api/history/{id}/nodes"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, normalizePath(tc.path), tc.path)
	}
}

func TestIsShortID(t *testing.T) {
	assert.True(t, isShortID("a1b2c3d4"))
	assert.True(t, isShortID("deadbeef"))
	assert.False(t, isShortID("short"))
	assert.False(t, isShortID("toolongid"))
	assert.False(t, isShortID("UPPERCAS"))
	assert.False(t, isShortID("ghijklmn"))
}
