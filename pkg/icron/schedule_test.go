package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo_Hourly(t *testing.T) {
	t.Parallel()

	ref := time.Date(2026, 3, 10, 14, 20, 0, 0, time.UTC)
	info, err := GetTriggerInfo("@hourly", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 20*time.Minute, info.TimeSinceLast)
	assert.Equal(t, 40*time.Minute, info.TimeUntilNext)
}

func TestGetTriggerInfo_FiveAndSixFields(t *testing.T) {
	t.Parallel()

	ref := time.Date(2026, 3, 10, 14, 20, 0, 0, time.UTC)

	five, err := GetTriggerInfo("0 3 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), five.Next)
	assert.Equal(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), five.Last)

	six, err := GetTriggerInfo("30 */15 * * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 14, 30, 30, 0, time.UTC), six.Next)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Validate("@every 10m"))
	assert.Error(t, Validate("not a cron"))
}
