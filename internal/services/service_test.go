package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	var tr Tracker
	assert.Equal(t, ServiceStatus{Name: "x"}, tr.Status("x"))

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tr.Started(now)
	st := tr.Status("ingest")
	assert.True(t, st.Running)
	assert.Equal(t, now, st.Since)
	assert.Empty(t, st.Error)

	tr.Stopped(errors.New("socket closed"))
	st = tr.Status("ingest")
	assert.False(t, st.Running)
	assert.Equal(t, "socket closed", st.Error)
}
