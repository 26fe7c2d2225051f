package myriad

import (
	"fmt"
	"io"
	"time"

	"github.com/horgh/irc"
	"github.com/sirupsen/logrus"
)

func newTestServer() *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(DefaultConfig(), log)
}

// addTestUser inserts a connected but unregistered user. There is no real
// socket behind it; tests read replies straight off the outbound queue.
func addTestUser(s *Server, clientID uint64) *User {
	now := time.Now()
	u := &User{
		ClientID:     clientID,
		Host:         fmt.Sprintf("127.0.0.1:%d", 40000+clientID),
		writeChan:    make(chan irc.Message, writeQueueDepth),
		lastActivity: now,
		lastPing:     now,
	}
	s.users[clientID] = u
	return u
}

// registerTestUser inserts a user that already completed NICK+USER,
// without queueing the welcome sequence.
func registerTestUser(s *Server, clientID uint64, nick string) *User {
	u := addTestUser(s, clientID)
	s.setNickname(u, nick)
	u.Username = "~" + nick
	u.RealName = nick
	return u
}

// queuedMessages drains everything currently on a user's outbound queue.
func queuedMessages(u *User) []irc.Message {
	var msgs []irc.Message
	for {
		select {
		case m, ok := <-u.writeChan:
			if !ok {
				return msgs
			}
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func commands(msgs []irc.Message) []string {
	cmds := make([]string, 0, len(msgs))
	for _, m := range msgs {
		cmds = append(cmds, m.Command)
	}
	return cmds
}
