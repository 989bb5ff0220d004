package shop

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2030-05-01", "2030-05-01"},
		{"2030-05-01T10:30:00Z", "2030-05-01"},
		{"2030-05-01 10:30", "2030-05-01"},
		{" 2030-12-31 ", "2030-12-31"},
	}
	for _, c := range cases {
		d, err := ParseDate(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, d.String())
	}

	for _, bad := range []string{"", "may 1st", "2030-13-01", "01-05-2030"} {
		_, err := ParseDate(bad)
		require.Error(t, err, bad)
	}
}

func TestDateNext(t *testing.T) {
	d, err := ParseDate("2030-12-31")
	require.NoError(t, err)
	require.Equal(t, "2031-01-01", d.Next().String())

	d, err = ParseDate("2032-02-28")
	require.NoError(t, err)
	require.Equal(t, "2032-02-29", d.Next().String()) // leap year
}

func TestDateJSON(t *testing.T) {
	d, err := ParseDate("2030-05-01")
	require.NoError(t, err)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `"2030-05-01"`, string(b))

	var back Date
	require.NoError(t, json.Unmarshal([]byte(`"2030-05-01T08:00:00Z"`), &back))
	require.True(t, back.Equal(d))

	var empty Date
	require.NoError(t, json.Unmarshal([]byte(`""`), &empty))
	require.True(t, empty.IsZero())
}

func TestDateOrdering(t *testing.T) {
	a, _ := ParseDate("2030-05-01")
	b, _ := ParseDate("2030-05-02")
	require.True(t, a.Before(b))
	require.False(t, b.Before(a))
	require.True(t, a.Equal(a))
}
