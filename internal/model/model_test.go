package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDevice_Actions(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		status   DeviceStatus
		download bool
		revoke   bool
	}{
		{DeviceStatusActive, true, true},
		{DeviceStatusPending, true, true},
		{DeviceStatusInactive, true, true},
		{DeviceStatusRevoked, false, false},
		{DeviceStatusExpired, false, true},
	} {
		d := Device{Status: tc.status}
		require.Equal(t, tc.download, d.CanDownload(), tc.status)
		require.Equal(t, tc.revoke, d.CanRevoke(), tc.status)
	}
	require.False(t, Device{Status: "BOGUS"}.CanDownload())
	require.False(t, DeviceStatus("BOGUS").Valid())
}

func TestMessageFilter_Normalize(t *testing.T) {
	t.Parallel()

	require.Equal(t, MessageFilter{TimeWindow: WindowAll, Limit: 50}, MessageFilter{}.Normalize())
	require.Equal(t, 200, MessageFilter{Limit: 1000}.Normalize().Limit)
	require.Equal(t, 7, MessageFilter{Limit: 7, TimeWindow: Window1h}.Normalize().Limit)
	require.Equal(t, DefaultMessageFilter(), DefaultMessageFilter().Normalize())
}

func TestAlertLevels(t *testing.T) {
	t.Parallel()

	require.Equal(t, AlertLevelNone, LevelForAlerts(0))
	require.Equal(t, AlertLevelElevated, LevelForAlerts(1))
	require.Equal(t, AlertLevelElevated, LevelForAlerts(14))
	require.Equal(t, AlertLevelHigh, LevelForAlerts(15))
	require.Equal(t, AlertLevelHigh, Stats{AlertsLast2h: 40}.AlertLevel())
}

func TestUser_Flags(t *testing.T) {
	t.Parallel()

	require.True(t, User{UserType: UserTypeParticipant}.IsParticipant())
	require.True(t, User{Participant: true}.IsParticipant())
	require.False(t, User{UserType: UserTypeNonParticipant}.IsParticipant())
	require.True(t, User{Admin: true}.IsAdmin())
}
