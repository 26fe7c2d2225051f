package myriad

import (
	"time"

	"github.com/horgh/irc"
)

// User holds the server's record for one connected client. It is created
// when the connection is accepted; the identity fields are filled in by the
// event loop during registration. Only the event loop mutates it.
type User struct {
	// A unique id. Internal to this server only. Never reused.
	ClientID uint64

	// Peer address as text.
	Host string

	// Nickname, Username, and RealName are blank until the client supplies
	// them. Once Nickname and Username are both set the user is registered.
	Nickname string
	Username string
	RealName string

	// The connection. The read side belongs to the reader goroutine; the
	// write side to the writer goroutine draining writeChan.
	conn *Conn

	// Outbound queue, drained by the client's writer goroutine.
	writeChan chan irc.Message

	// The last time we heard anything from the client.
	lastActivity time.Time

	// The last time we sent the client a PING.
	lastPing time.Time
}

// Registered reports whether the client completed registration by
// supplying both NICK and USER.
func (u *User) Registered() bool {
	return u.Nickname != "" && u.Username != ""
}
