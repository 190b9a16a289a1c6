package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ommotech/trackingsdk/internal/wire"
)

func TestNewClientPanicsOnNilConn(t *testing.T) {
	assert.Panics(t, func() { wire.NewClient(nil) })
}

func TestNewClientWrapsConn(t *testing.T) {
	conn, err := wire.Dial("")
	require.NoError(t, err)
	defer conn.Close()

	client := wire.NewClient(conn)
	require.NotNil(t, client)
	var _ wire.Client = client
}
