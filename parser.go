package myriad

import (
	"strings"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// parseAction validates one command against the acting client's state and
// produces the Action it maps to, or nil when there is nothing to
// dispatch. Validation here is syntactic plus registration state; all
// state mutation happens in the dispatcher.
func parseAction(m irc.Message, q *ServerQuery) Action {
	switch m.Command {
	case "PING":
		if len(m.Params) > 0 {
			return Pong{Challenge: m.Params[0]}
		}
		return Pong{}

	case "PONG":
		// Not doing anything with this. Just accept it; activity tracking
		// already noted the read.
		return nil

	case "NICK":
		return parseNick(m, q)

	case "USER":
		return parseUser(m, q)

	case "MOTD":
		if !q.User().Registered() {
			return ErrorReply{Code: ErrNotRegistered}
		}
		return Motd{}

	case "JOIN":
		return parseJoin(m, q)

	case "PRIVMSG":
		return parsePrivmsg(m, q)

	case "QUIT":
		reason := ""
		if len(m.Params) > 0 {
			reason = m.Params[0]
		}
		return Quit{Reason: reason}

	default:
		q.server.log.WithField("command", m.Command).Info("unimplemented command")
		return nil
	}
}

// NICK <nickname>
func parseNick(m irc.Message, q *ServerQuery) Action {
	if len(m.Params) == 0 {
		return ErrorReply{Code: ErrNoNicknameGiven}
	}
	nickname := m.Params[0]

	u := q.User()

	if u.Nickname == nickname {
		return ErrorReply{Code: ErrNicknameInUse}
	}

	// The nickname must be caselessly unique across clients.
	if owner, exists := q.UserFindByNickname(nickname); exists && owner.ClientID != u.ClientID {
		return ErrorReply{Code: ErrNicknameInUse}
	}

	if u.Nickname == "" {
		return SetNick{Nickname: nickname}
	}

	return ChangeNick{PrevNickname: u.Nickname, Nickname: nickname}
}

// USER <username> 0 * <realname>
// USER <username> 0 * :<realname>
func parseUser(m irc.Message, q *ServerQuery) Action {
	if len(m.Params) < 3 {
		return ErrorReply{Code: ErrNeedMoreParams}
	}

	username := m.Params[0]

	if m.Params[1] != "0" {
		q.server.log.WithField("param", m.Params[1]).
			Warn("USER: nonstandard param, should be '0'")
	}
	if m.Params[2] != "*" {
		q.server.log.WithField("param", m.Params[2]).
			Warn("USER: nonstandard param, should be '*'")
	}

	// The realname arrives as a fourth positional param or as trailing;
	// the tokenizer folds trailing into the final param either way.
	if len(m.Params) < 4 {
		return ErrorReply{Code: ErrNeedMoreParams}
	}
	realname := m.Params[3]

	if q.User().Username != "" {
		return ErrorReply{Code: ErrAlreadyRegistred}
	}

	return SetUserAndRealName{
		Username: "~" + username,
		RealName: realname,
	}
}

// JOIN <channels>[ <keys>]
func parseJoin(m irc.Message, q *ServerQuery) Action {
	if !q.User().Registered() {
		return ErrorReply{Code: ErrNotRegistered}
	}

	if len(m.Params) == 0 {
		return ErrorReply{Code: ErrNeedMoreParams}
	}

	keys := ""
	if len(m.Params) > 1 {
		keys = m.Params[1]
	}

	refs, err := parseChannelRefs(m.Params[0], keys)
	if err != nil {
		return ErrorReply{Code: ErrNeedMoreParams}
	}

	return Join{Channels: refs}
}

// parseChannelRefs pairs comma separated channel names with keys,
// longest-zip style. A key without a channel name to pair with has no
// meaning and is an error. Entries that are not channel names are
// dropped.
func parseChannelRefs(channelList, keyList string) ([]ChannelRef, error) {
	names := strings.Split(channelList, ",")

	var keys []string
	if keyList != "" {
		keys = strings.Split(keyList, ",")
	}

	if len(keys) > len(names) {
		return nil, errors.New("key without a channel name")
	}

	refs := make([]ChannelRef, 0, len(names))
	for i, name := range names {
		if !isChannelName(name) {
			continue
		}
		ref := ChannelRef{Name: name}
		if i < len(keys) {
			ref.Key = keys[i]
		}
		refs = append(refs, ref)
	}

	return refs, nil
}

// PRIVMSG <targets> <text|:trailing>
func parsePrivmsg(m irc.Message, q *ServerQuery) Action {
	if !q.User().Registered() {
		return ErrorReply{Code: ErrNotRegistered}
	}

	if len(m.Params) < 2 {
		return ErrorReply{Code: ErrNeedMoreParams}
	}
	text := m.Params[1]

	var users, channels []string
	for _, target := range strings.Split(m.Params[0], ",") {
		if target == "" {
			continue
		}
		if isChannelName(target) {
			channels = append(channels, target)
		} else {
			users = append(users, target)
		}
	}

	return PrivateMessage{Message: text, Users: users, Channels: channels}
}

// isChannelName reports whether the target names a channel.
func isChannelName(name string) bool {
	return len(name) > 0 && (name[0] == '#' || name[0] == '&')
}
