package myriad

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/horgh/irc"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer runs a real server on an ephemeral port and tears it
// down when the test ends.
func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := DefaultConfig()
	s := NewServer(cfg, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = s.Serve(ln)
		close(done)
	}()

	t.Cleanup(func() {
		s.Shutdown()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	return s, ln.Addr().String()
}

// testClient is a minimal IRC client for driving the server over a real
// socket.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialTestClient(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) sendLine(format string, args ...interface{}) {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_, err := fmt.Fprintf(c.conn, format+"\r\n", args...)
	require.NoError(c.t, err)
}

func (c *testClient) readMessage() irc.Message {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err, "reading from server")

	m, err := irc.ParseMessage(line)
	require.NoError(c.t, err, "parsing %q", line)
	return m
}

// readUntil reads messages until one with the given command arrives and
// returns everything read, that message included.
func (c *testClient) readUntil(command string) []irc.Message {
	c.t.Helper()

	var msgs []irc.Message
	for {
		m := c.readMessage()
		msgs = append(msgs, m)
		if m.Command == command {
			return msgs
		}
	}
}

// register performs NICK+USER and consumes the welcome sequence.
func (c *testClient) register(nick string) {
	c.t.Helper()

	c.sendLine("NICK %s", nick)
	c.sendLine("USER %s 0 * :%s", nick, nick)
	c.readUntil(ReplyEndOfMotd)
}

// assertSilence asserts nothing arrives on the socket for a short while.
func (c *testClient) assertSilence() {
	c.t.Helper()

	require.NoError(c.t,
		c.conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	line, err := c.r.ReadString('\n')
	if err == nil {
		c.t.Fatalf("expected silence, read %q", line)
	}
	netErr, ok := err.(net.Error)
	require.True(c.t, ok, "expected timeout, got %v", err)
	assert.True(c.t, netErr.Timeout(), "expected timeout, got %v", err)
}

// assertClosed asserts the server has closed the socket.
func (c *testClient) assertClosed() {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, err := c.r.ReadString('\n'); err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				c.t.Fatal("socket still open after 5s")
			}
			return
		}
	}
}

func TestRegistrationOverWire(t *testing.T) {
	_, addr := startTestServer(t)
	alice := dialTestClient(t, addr)

	alice.sendLine("NICK alice")
	alice.sendLine("USER alice 0 * :Alice A")

	msgs := alice.readUntil(ReplyEndOfMotd)
	require.Equal(t, []string{
		ReplyWelcome,
		ReplyYourHost,
		ReplyCreated,
		ReplyISupport,
		ReplyLuserClient,
		ReplyMotdStart,
		ReplyMotd,
		ReplyEndOfMotd,
	}, commands(msgs))

	for _, m := range msgs {
		require.NotEmpty(t, m.Params)
		assert.Equal(t, "alice", m.Params[0])
	}

	// The same nick again collides with itself.
	alice.sendLine("NICK alice")
	assert.Equal(t, ErrNicknameInUse, alice.readMessage().Command)
}

func TestJoinFanOutOverWire(t *testing.T) {
	_, addr := startTestServer(t)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")

	alice.sendLine("JOIN #foo")
	m := alice.readMessage()
	assert.Equal(t, "alice", m.Prefix)
	assert.Equal(t, "JOIN", m.Command)

	bob.sendLine("JOIN #foo")

	// Both members observe bob's join.
	for _, c := range []*testClient{alice, bob} {
		m := c.readMessage()
		assert.Equal(t, "bob", m.Prefix)
		assert.Equal(t, "JOIN", m.Command)
		assert.Equal(t, []string{"#foo"}, m.Params)
	}
}

func TestChannelMessageOverWire(t *testing.T) {
	_, addr := startTestServer(t)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")

	alice.sendLine("JOIN #foo")
	alice.readMessage()
	bob.sendLine("JOIN #foo")
	bob.readMessage()
	alice.readMessage() // bob's join

	alice.sendLine("PRIVMSG #foo :hello")

	m := bob.readMessage()
	assert.Equal(t, "alice", m.Prefix)
	assert.Equal(t, "PRIVMSG", m.Command)
	assert.Equal(t, []string{"#foo", "hello"}, m.Params)

	// No echo to the sender.
	alice.assertSilence()
}

func TestPrivateMessageOverWire(t *testing.T) {
	_, addr := startTestServer(t)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")

	alice.sendLine("PRIVMSG bob :hi")

	m := bob.readMessage()
	assert.Equal(t, "alice", m.Prefix)
	assert.Equal(t, "PRIVMSG", m.Command)
	assert.Equal(t, []string{"bob", "hi"}, m.Params)
}

func TestQuitOverWire(t *testing.T) {
	_, addr := startTestServer(t)

	alice := dialTestClient(t, addr)
	alice.register("alice")
	bob := dialTestClient(t, addr)
	bob.register("bob")

	alice.sendLine("QUIT :bye")
	alice.assertClosed()

	// Messages to the departed nickname are dropped without a reply.
	bob.sendLine("PRIVMSG alice :anyone?")
	bob.assertSilence()
}

func TestUnregisteredCommandsGated(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTestClient(t, addr)

	// PING is allowed before registration.
	c.sendLine("PING :abc")
	m := c.readMessage()
	assert.Equal(t, "PONG", m.Command)
	assert.Equal(t, []string{"abc"}, m.Params)

	c.sendLine("JOIN #foo")
	assert.Equal(t, ErrNotRegistered, c.readMessage().Command)

	c.sendLine("PRIVMSG bob :hi")
	assert.Equal(t, ErrNotRegistered, c.readMessage().Command)
}

func TestOverLongLineDropped(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTestClient(t, addr)

	c.sendLine("PRIVMSG #x :%s", strings.Repeat("a", irc.MaxLineLength+100))

	// The connection survives the dropped line.
	c.sendLine("PING :still-here")
	m := c.readMessage()
	assert.Equal(t, "PONG", m.Command)
	assert.Equal(t, []string{"still-here"}, m.Params)
}

func TestShutdownSeversClients(t *testing.T) {
	s, addr := startTestServer(t)

	c := dialTestClient(t, addr)
	c.register("alice")

	s.Shutdown()
	c.assertClosed()
}

func TestCheckAndPingClients(t *testing.T) {
	s := newTestServer()
	pingTime := s.config.PingTime.Duration
	deadTime := s.config.DeadTime.Duration

	idle := registerTestUser(s, 1, "alice")
	idle.lastActivity = time.Now().Add(-pingTime - time.Minute)
	idle.lastPing = idle.lastActivity

	fresh := registerTestUser(s, 2, "bob")

	// Unregistered clients are never pinged, only severed.
	unregistered := addTestUser(s, 3)
	unregistered.lastActivity = time.Now().Add(-pingTime - time.Minute)
	unregistered.lastPing = unregistered.lastActivity

	dead := registerTestUser(s, 4, "carol")
	dead.lastActivity = time.Now().Add(-deadTime - time.Minute)

	s.checkAndPingClients()

	msgs := queuedMessages(idle)
	require.Len(t, msgs, 1)
	assert.Equal(t, "PING", msgs[0].Command)
	assert.Equal(t, []string{s.config.Name}, msgs[0].Params)

	assert.Empty(t, queuedMessages(fresh))
	assert.Empty(t, queuedMessages(unregistered))

	_, exists := s.query(1).UserFindByClientID(dead.ClientID)
	assert.False(t, exists, "dead client should be removed")
	_, exists = s.query(1).UserFindByNickname("carol")
	assert.False(t, exists, "dead client's nickname should be free")

	// A client already pinged recently is not pinged again.
	idle.lastActivity = time.Now().Add(-pingTime - time.Minute)
	s.checkAndPingClients()
	assert.Empty(t, queuedMessages(idle))
}

func TestNewServerFillsZeroDurations(t *testing.T) {
	cfg := Config{
		Name: "testnet",
		Host: "127.0.0.1",
		Port: 6667,
		MOTD: "hi",
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	s := NewServer(cfg, log)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.PingTime, s.config.PingTime)
	assert.Equal(t, defaults.DeadTime, s.config.DeadTime)
}

func TestReadLoopBailsDuringShutdown(t *testing.T) {
	s := newTestServer()
	s.Shutdown()

	// With the event loop gone the connect announcement has no taker; the
	// reader must close its connection and end rather than sit in a read.
	client, server := net.Pipe()
	defer func() {
		_ = client.Close()
	}()

	done := make(chan struct{})
	go func() {
		s.readLoop(1, NewConn(server, time.Minute))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader did not end")
	}

	_, err := client.Read(make([]byte, 1))
	assert.Error(t, err, "server side should be closed")
}
