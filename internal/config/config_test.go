package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServer_Defaults(t *testing.T) {
	c, err := LoadServer()
	require.NoError(t, err)
	require.Equal(t, ":8443", c.Addr)
	require.Equal(t, ":9090", c.MetricsAddr)
	require.Equal(t, int32(10), c.DBMaxConns)
	require.Equal(t, 24*time.Hour, c.DrawWindow)
	require.Equal(t, 10, c.MaxDraws)
	require.Equal(t, 5*time.Second, c.ShutdownTimeout)
	require.Error(t, c.Validate(), "channel credentials are mandatory")
}

func TestLoadServer_FromEnv(t *testing.T) {
	t.Setenv("OMIKUJI_ADDR", ":7000")
	t.Setenv("LINE_CHANNEL_ID", "1650000000")
	t.Setenv("LINE_CHANNEL_SECRET", "secret")
	t.Setenv("OMIKUJI_DRAW_WINDOW", "1h")
	t.Setenv("OMIKUJI_MAX_DRAWS", "3")
	t.Setenv("OMIKUJI_DEV", "true")

	c, err := LoadServer()
	require.NoError(t, err)
	require.Equal(t, ":7000", c.Addr)
	require.Equal(t, time.Hour, c.DrawWindow)
	require.Equal(t, 3, c.MaxDraws)
	require.True(t, c.Dev)
	require.NoError(t, c.Validate())
}

func TestLoadServer_BadValue(t *testing.T) {
	t.Setenv("OMIKUJI_MAX_DRAWS", "many")
	_, err := LoadServer()
	require.ErrorContains(t, err, "parse env")
}

func TestServer_Validate(t *testing.T) {
	ok := Server{DSN: "postgres://x", ChannelID: "1", ChannelSecret: "s", MaxDraws: 1, DrawWindow: time.Minute}
	require.NoError(t, ok.Validate())

	noDSN := ok
	noDSN.DSN = ""
	require.Error(t, noDSN.Validate())

	noLimit := ok
	noLimit.MaxDraws = 0
	require.Error(t, noLimit.Validate())

	halfTLS := ok
	halfTLS.TLSCert = "cert.pem"
	require.Error(t, halfTLS.Validate())
	halfTLS.TLSKey = "key.pem"
	require.NoError(t, halfTLS.Validate())
}

func TestLoadCLI(t *testing.T) {
	c, err := LoadCLI()
	require.NoError(t, err)
	require.Equal(t, []string{"profile", "openid", "email"}, c.Scopes)
	require.Equal(t, "omikuji", c.Deck)
	require.Empty(t, c.LedgerAddr)

	t.Setenv("LINE_SCOPES", "profile,openid")
	t.Setenv("OMIKUJI_DECK", "luckycat")
	t.Setenv("OMIKUJI_IN_CLIENT", "1")
	c, err = LoadCLI()
	require.NoError(t, err)
	require.Equal(t, []string{"profile", "openid"}, c.Scopes)
	require.Equal(t, "luckycat", c.Deck)
	require.True(t, c.InClient)
}
