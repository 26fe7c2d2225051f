package myriad

// Channel holds everything to do with a channel. Names begin with # or &.
type Channel struct {
	Name string

	// Topic is blank until set.
	Topic string

	// Members holds client ids in join order, no duplicates. Ids rather
	// than pointers: membership is resolved against the user table at use
	// time.
	Members []uint64

	// Modes is reserved for future use and never emitted.
	Modes []ChannelMode
}

// ChannelMode is a tagged membership privilege entry.
type ChannelMode struct {
	Kind     ChannelModeKind
	Nickname string
}

// ChannelModeKind tags a ChannelMode variant.
type ChannelModeKind int

// The mode variants we track.
const (
	ChannelModeOp ChannelModeKind = iota
	ChannelModeHalfOp
)

// NewChannel creates a Channel with no topic and no members.
func NewChannel(name string) *Channel {
	return &Channel{Name: name}
}

// Join appends the client to the membership list, preserving join order.
// It reports false if the client was already a member.
func (c *Channel) Join(clientID uint64) bool {
	if c.Has(clientID) {
		return false
	}
	c.Members = append(c.Members, clientID)
	return true
}

// Remove drops the client from the membership list, preserving the order
// of the remaining members. Removing a non-member is a no-op.
func (c *Channel) Remove(clientID uint64) {
	for i, id := range c.Members {
		if id == clientID {
			c.Members = append(c.Members[:i], c.Members[i+1:]...)
			return
		}
	}
}

// Has reports whether the client is a member.
func (c *Channel) Has(clientID uint64) bool {
	for _, id := range c.Members {
		if id == clientID {
			return true
		}
	}
	return false
}

// ChannelRef carries one channel's intended join parameters as parsed from
// a JOIN argument. Keys are parsed but not enforced.
type ChannelRef struct {
	Name string
	Key  string
}
