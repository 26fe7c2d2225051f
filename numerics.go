package myriad

// IRC numeric reply and error codes per RFC 1459/2812. Only a subset is
// emitted; codes marked reserved are kept for completeness.
const (
	ReplyWelcome     = "001"
	ReplyYourHost    = "002"
	ReplyCreated     = "003"
	ReplyMyInfo      = "004" // reserved
	ReplyISupport    = "005"
	ReplyLuserClient = "251"
	ReplyLuserOp     = "252" // reserved
	ReplyTopic       = "332"
	ReplyNamReply    = "353" // reserved
	ReplyMotd        = "372"
	ReplyMotdStart   = "375"
	ReplyEndOfMotd   = "376"

	ErrNoNicknameGiven  = "431"
	ErrNicknameInUse    = "433"
	ErrNotRegistered    = "451"
	ErrNeedMoreParams   = "461"
	ErrAlreadyRegistred = "462"
)
