package myriad

import "fmt"

// ServerQuery is a short-lived view over the server state bound to one
// acting client: the sole vehicle by which the dispatcher touches the
// server. To act under another client's identity a fresh handle is bound
// around the same server, which is how fan-outs work while keeping the
// event loop the single mutator. A handle never outlives one event-loop
// iteration.
type ServerQuery struct {
	server   *Server
	clientID uint64
}

func (s *Server) query(clientID uint64) *ServerQuery {
	return &ServerQuery{server: s, clientID: clientID}
}

// Rebind returns a handle over the same server bound to another client.
func (q *ServerQuery) Rebind(clientID uint64) *ServerQuery {
	return &ServerQuery{server: q.server, clientID: clientID}
}

// User returns the acting client's record. The record must exist; command
// events for unknown clients never reach the dispatcher, so a miss is a
// bug worth crashing on.
func (q *ServerQuery) User() *User {
	u, exists := q.server.users[q.clientID]
	if !exists {
		panic(fmt.Sprintf("no user record for client %d", q.clientID))
	}
	return u
}

// UserFindByClientID looks a user up by client id.
func (q *ServerQuery) UserFindByClientID(clientID uint64) (*User, bool) {
	u, exists := q.server.users[clientID]
	return u, exists
}

// UserFindByNickname looks a user up by current nickname, folded per the
// configured casemapping.
func (q *ServerQuery) UserFindByNickname(nickname string) (*User, bool) {
	clientID, exists := q.server.nicks[q.server.config.FeatCaseMap.Fold(nickname)]
	if !exists {
		return nil, false
	}
	return q.UserFindByClientID(clientID)
}

// UserCount returns the number of connected clients, registered or not.
func (q *ServerQuery) UserCount() int {
	return len(q.server.users)
}

// ServerName returns the server's advertised name.
func (q *ServerQuery) ServerName() string {
	return q.server.config.Name
}

// ServerHost returns the host the server is configured to listen on.
func (q *ServerQuery) ServerHost() string {
	return q.server.config.Host
}

// ServerConfig returns the server's configuration.
func (q *ServerQuery) ServerConfig() Config {
	return q.server.config
}

// ServerStartupTime returns the preformatted startup timestamp.
func (q *ServerQuery) ServerStartupTime() string {
	return q.server.startupTime
}

// ChannelFind looks a channel up by name.
func (q *ServerQuery) ChannelFind(name string) (*Channel, bool) {
	ch, exists := q.server.channels[name]
	return ch, exists
}

// ChannelGetOrCreate returns the channel with the given name, creating it
// if it does not exist yet. Channels live for the process lifetime.
func (q *ServerQuery) ChannelGetOrCreate(name string) *Channel {
	ch, exists := q.server.channels[name]
	if !exists {
		ch = NewChannel(name)
		q.server.channels[name] = ch
	}
	return ch
}

// ChannelUsers resolves a channel's membership list against the user
// table, in join order. It returns nil for an unknown channel.
func (q *ServerQuery) ChannelUsers(name string) []*User {
	ch, exists := q.ChannelFind(name)
	if !exists {
		return nil
	}

	users := make([]*User, 0, len(ch.Members))
	for _, clientID := range ch.Members {
		if u, ok := q.UserFindByClientID(clientID); ok {
			users = append(users, u)
		}
	}
	return users
}
