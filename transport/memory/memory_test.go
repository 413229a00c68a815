package memory

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func listening(t *testing.T, n *Network, address string) *Server {
	t.Helper()
	srv := n.NewServer()
	require.NoError(t, srv.Bind(address))
	require.NoError(t, srv.Listen())
	return srv
}

func TestNetwork_Connect_Accept_Exchange(t *testing.T) {
	req := require.New(t)
	n := NewNetwork()
	srv := listening(t, n, "relay:9000")
	cli := n.NewClient()

	// Given a client dialing the server
	conn, err := cli.Connect("relay:9000")
	req.NoError(err)
	req.Equal(domain.NetworkEmpty, cli.PopEvent(conn).Type)

	// When the server accepts
	serverConn, ok := srv.Accept()
	req.True(ok)
	_, ok = srv.Accept()
	req.False(ok)

	// Then the client sees a connect event
	req.Equal(domain.NetworkConnect, cli.PopEvent(conn).Type)
	req.True(cli.IsLive(conn))
	req.True(srv.IsLive(serverConn))

	// And data flows both ways
	req.NoError(cli.Send(conn, []byte("ping")))
	req.Equal(domain.NetworkEvent{Type: domain.NetworkData, Payload: []byte("ping")}, srv.PopEvent(serverConn))
	req.NoError(srv.Send(serverConn, []byte("pong")))
	req.Equal(domain.NetworkEvent{Type: domain.NetworkData, Payload: []byte("pong")}, cli.PopEvent(conn))
}

func TestNetwork_Bind_Twice_Fails(t *testing.T) {
	n := NewNetwork()
	listening(t, n, "relay:9000")

	err := n.NewServer().Bind("relay:9000")

	require.ErrorIs(t, err, errors.ErrBindFailure)
}

func TestNetwork_Listen_Before_Bind_Fails(t *testing.T) {
	require.ErrorIs(t, NewNetwork().NewServer().Listen(), errors.ErrInvalidState)
}

func TestNetwork_Connect_Nobody_Listening(t *testing.T) {
	req := require.New(t)
	cli := NewNetwork().NewClient()

	conn, err := cli.Connect("nowhere:1")

	req.NoError(err)
	req.Equal(domain.NetworkDisconnect, cli.PopEvent(conn).Type)
	req.False(cli.IsLive(conn))
}

func TestNetwork_Client_Disconnect_Reaches_Server(t *testing.T) {
	req := require.New(t)
	n := NewNetwork()
	srv := listening(t, n, "relay:9000")
	cli := n.NewClient()
	conn, _ := cli.Connect("relay:9000")
	serverConn, _ := srv.Accept()

	// When the client hangs up
	req.NoError(cli.Disconnect(conn))

	// Then the server connection stays live until the event is popped
	req.True(srv.IsLive(serverConn))
	req.Equal(domain.NetworkDisconnect, srv.PopEvent(serverConn).Type)
	req.False(srv.IsLive(serverConn))
	req.ErrorIs(srv.Send(serverConn, []byte("late")), errors.ErrSendFailure)
}

func TestNetwork_Drop_Is_Silent_On_Server(t *testing.T) {
	req := require.New(t)
	n := NewNetwork()
	srv := listening(t, n, "relay:9000")
	cli := n.NewClient()
	conn, _ := cli.Connect("relay:9000")
	serverConn, _ := srv.Accept()
	cli.PopEvent(conn)

	srv.Drop(serverConn)

	req.False(srv.IsLive(serverConn))
	req.Equal(domain.NetworkEmpty, srv.PopEvent(serverConn).Type)
	req.Equal(domain.NetworkDisconnect, cli.PopEvent(conn).Type)
}

func TestNetwork_FailSend(t *testing.T) {
	req := require.New(t)
	n := NewNetwork()
	srv := listening(t, n, "relay:9000")
	cli := n.NewClient()
	cli.Connect("relay:9000")
	serverConn, _ := srv.Accept()

	srv.FailSend(serverConn, true)
	req.ErrorIs(srv.Send(serverConn, []byte("x")), errors.ErrSendFailure)

	srv.FailSend(serverConn, false)
	req.NoError(srv.Send(serverConn, []byte("x")))
}

func TestNetwork_Client_Gives_Up_Before_Accept(t *testing.T) {
	req := require.New(t)
	n := NewNetwork()
	srv := listening(t, n, "relay:9000")
	cli := n.NewClient()
	conn, _ := cli.Connect("relay:9000")

	req.NoError(cli.Disconnect(conn))

	_, ok := srv.Accept()
	req.False(ok)
}

func TestNetwork_Close_Frees_Address(t *testing.T) {
	req := require.New(t)
	n := NewNetwork()
	srv := listening(t, n, "relay:9000")
	cli := n.NewClient()
	conn, _ := cli.Connect("relay:9000")
	srv.Accept()
	cli.PopEvent(conn)

	req.NoError(srv.Close())

	req.Equal(domain.NetworkDisconnect, cli.PopEvent(conn).Type)
	req.NoError(n.NewServer().Bind("relay:9000"))
}
