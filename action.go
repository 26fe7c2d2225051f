package myriad

import (
	"fmt"

	"github.com/horgh/irc"
	"github.com/sirupsen/logrus"
)

// Action is an internal intent value: the pivot between command syntax and
// state effect. The parser produces Actions, the dispatcher consumes them.
// The set is closed; the dispatcher switches on the concrete type.
type Action interface {
	action()
}

// Pong answers a PING. An empty Challenge means none was given.
type Pong struct {
	Challenge string
}

// SetNick records a client's first nickname.
type SetNick struct {
	Nickname string
}

// ChangeNick replaces a client's nickname.
type ChangeNick struct {
	PrevNickname string
	Nickname     string
}

// SetUserAndRealName records the USER identity fields.
type SetUserAndRealName struct {
	Username string
	RealName string
}

// SendWelcomeSequence emits the registration numerics followed by the MOTD.
type SendWelcomeSequence struct{}

// Motd emits the message of the day.
type Motd struct{}

// Join joins the acting client to each referenced channel.
type Join struct {
	Channels []ChannelRef
}

// JoinInform delivers one member's JOIN notice for FromNickname's join.
type JoinInform struct {
	Channel      string
	FromNickname string
}

// PrivateMessage routes one message to nickname and channel targets.
type PrivateMessage struct {
	Message  string
	Users    []string
	Channels []string
}

// PrivateMessageUser delivers a direct message to the bound client.
type PrivateMessageUser struct {
	Message      string
	FromNickname string
}

// PrivateMessageChannel delivers a channel message to the bound client.
type PrivateMessageChannel struct {
	Message      string
	Channel      string
	FromNickname string
}

// Quit severs the acting client.
type Quit struct {
	Reason string
}

// ErrorReply sends a numeric error to the acting client.
type ErrorReply struct {
	Code string
}

func (Pong) action()                  {}
func (SetNick) action()               {}
func (ChangeNick) action()            {}
func (SetUserAndRealName) action()    {}
func (SendWelcomeSequence) action()   {}
func (Motd) action()                  {}
func (Join) action()                  {}
func (JoinInform) action()            {}
func (PrivateMessage) action()        {}
func (PrivateMessageUser) action()    {}
func (PrivateMessageChannel) action() {}
func (Quit) action()                  {}
func (ErrorReply) action()            {}

// dispatch executes one action for the client the query is bound to:
// mutate state, queue replies, fan out. Fan-outs rebind the query per
// recipient and recurse.
func (s *Server) dispatch(q *ServerQuery, act Action) {
	switch a := act.(type) {
	case Pong:
		var params []string
		if a.Challenge != "" {
			params = []string{a.Challenge}
		}
		s.send(q.User(), irc.Message{Command: "PONG", Params: params})

	case SetNick:
		u := q.User()
		s.log.WithFields(logrus.Fields{
			"host": u.Host,
			"nick": a.Nickname,
		}).Info("nick set")
		s.setNickname(u, a.Nickname)

		// USER may have arrived first; the nick completes registration.
		if u.Registered() {
			s.dispatch(q, SendWelcomeSequence{})
		}

	case ChangeNick:
		u := q.User()
		s.log.WithFields(logrus.Fields{
			"host": u.Host,
			"from": a.PrevNickname,
			"to":   a.Nickname,
		}).Info("nick changed")
		s.setNickname(u, a.Nickname)

	case SetUserAndRealName:
		u := q.User()
		s.log.WithFields(logrus.Fields{
			"host":     u.Host,
			"username": a.Username,
			"realname": a.RealName,
		}).Info("user registered")
		u.Username = a.Username
		u.RealName = a.RealName

		if u.Registered() {
			s.dispatch(q, SendWelcomeSequence{})
		}

	case SendWelcomeSequence:
		s.sendWelcome(q)

	case Motd:
		s.sendMotd(q)

	case Join:
		s.joinChannels(q, a.Channels)

	case JoinInform:
		s.send(q.User(), irc.Message{
			Prefix:  a.FromNickname,
			Command: "JOIN",
			Params:  []string{a.Channel},
		})

	case PrivateMessage:
		s.privateMessage(q, a)

	case PrivateMessageUser:
		u := q.User()
		s.send(u, irc.Message{
			Prefix:  a.FromNickname,
			Command: "PRIVMSG",
			Params:  []string{u.Nickname, a.Message},
		})

	case PrivateMessageChannel:
		s.send(q.User(), irc.Message{
			Prefix:  a.FromNickname,
			Command: "PRIVMSG",
			Params:  []string{a.Channel, a.Message},
		})

	case Quit:
		u := q.User()
		s.log.WithFields(logrus.Fields{
			"nick":   u.Nickname,
			"host":   u.Host,
			"reason": a.Reason,
		}).Info("client quit")
		s.removeUser(u)

	case ErrorReply:
		s.send(q.User(), irc.Message{
			Prefix:  q.ServerHost(),
			Command: a.Code,
			Params:  []string{"*", q.User().Host},
		})

	default:
		s.log.WithField("action", fmt.Sprintf("%T", act)).Error("unhandled action")
	}
}

// setNickname updates the user's nickname and keeps the folded nickname
// index consistent.
func (s *Server) setNickname(u *User, nickname string) {
	if u.Nickname != "" {
		delete(s.nicks, s.config.FeatCaseMap.Fold(u.Nickname))
	}
	u.Nickname = nickname
	s.nicks[s.config.FeatCaseMap.Fold(nickname)] = u.ClientID
}

// sendWelcome emits the RFC 2813 registration sequence, then the MOTD.
func (s *Server) sendWelcome(q *ServerQuery) {
	u := q.User()
	nick := u.Nickname
	cfg := q.ServerConfig()

	s.send(u, irc.Message{Command: ReplyWelcome, Params: []string{
		nick,
		fmt.Sprintf("Welcome to %s, %s", q.ServerName(), nick),
	}})

	s.send(u, irc.Message{Command: ReplyYourHost, Params: []string{
		nick,
		fmt.Sprintf("Your host is Myriad, running version %s", softwareVersion),
	}})

	s.send(u, irc.Message{Command: ReplyCreated, Params: []string{
		nick,
		fmt.Sprintf("This server was created %s", q.ServerStartupTime()),
	}})

	s.send(u, irc.Message{Command: ReplyISupport, Params: []string{
		nick,
		fmt.Sprintf("AWAYLEN=%d", cfg.FeatAwayLen),
		fmt.Sprintf("CASEMAPPING=%s", cfg.FeatCaseMap),
		"are supported by this server",
	}})

	s.send(u, irc.Message{Command: ReplyLuserClient, Params: []string{
		nick,
		fmt.Sprintf("There are %d users and 0 invisible on 1 server", q.UserCount()),
	}})

	s.dispatch(q, Motd{})
}

func (s *Server) sendMotd(q *ServerQuery) {
	u := q.User()
	nick := u.Nickname

	s.send(u, irc.Message{Command: ReplyMotdStart, Params: []string{
		nick,
		fmt.Sprintf("- %s Message of the day - ", q.ServerName()),
	}})

	s.send(u, irc.Message{Command: ReplyMotd, Params: []string{
		nick,
		q.ServerConfig().MOTD,
	}})

	s.send(u, irc.Message{Command: ReplyEndOfMotd, Params: []string{
		nick,
		"End of /MOTD command.",
	}})
}

func (s *Server) joinChannels(q *ServerQuery, refs []ChannelRef) {
	u := q.User()

	for _, ref := range refs {
		ch := q.ChannelGetOrCreate(ref.Name)

		if !ch.Join(u.ClientID) {
			// Already a member; nothing to announce.
			continue
		}

		if ch.Topic != "" {
			s.send(u, irc.Message{Command: ReplyTopic, Params: []string{
				u.Nickname,
				ch.Name,
				ch.Topic,
			}})
		}

		// Every current member, the joiner included, hears about the join.
		inform := JoinInform{Channel: ch.Name, FromNickname: u.Nickname}
		for _, member := range q.ChannelUsers(ch.Name) {
			s.dispatch(q.Rebind(member.ClientID), inform)
		}
	}
}

func (s *Server) privateMessage(q *ServerQuery, a PrivateMessage) {
	from := q.User()

	// Unknown nicknames and nonexistent channels are dropped without a
	// reply, consistent with best-effort delivery.

	for _, nickname := range a.Users {
		target, exists := q.UserFindByNickname(nickname)
		if !exists {
			continue
		}
		s.dispatch(q.Rebind(target.ClientID), PrivateMessageUser{
			Message:      a.Message,
			FromNickname: from.Nickname,
		})
	}

	for _, name := range a.Channels {
		ch, exists := q.ChannelFind(name)
		if !exists {
			continue
		}
		for _, memberID := range ch.Members {
			if memberID == from.ClientID {
				continue
			}
			s.dispatch(q.Rebind(memberID), PrivateMessageChannel{
				Message:      a.Message,
				Channel:      ch.Name,
				FromNickname: from.Nickname,
			})
		}
	}
}
