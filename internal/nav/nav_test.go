package nav

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouter_NavigateRecordsAndNotifies(t *testing.T) {
	t.Parallel()

	r := NewRouter(Home, nil)
	var seen [][2]Route
	r.OnChange(func(from, to Route) { seen = append(seen, [2]Route{from, to}) })

	r.Navigate(Login)
	r.Navigate(Dashboard)
	r.Navigate(DeviceDetail("abc"))

	require.Equal(t, Route("/dashboard/devices/abc"), r.Current())
	require.Equal(t, []Route{Login, Dashboard, "/dashboard/devices/abc"}, r.History())
	require.Equal(t, 1, r.Count(Dashboard))
	require.Equal(t, [2]Route{Home, Login}, seen[0])
	require.Len(t, seen, 3)
}
