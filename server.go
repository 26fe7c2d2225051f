package myriad

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

// Software version advertised in RPL_YOURHOST.
const softwareVersion = "0.1.0"

// Depth of a client's outbound queue. A client that falls this many lines
// behind starts losing lines rather than stalling the event loop.
const writeQueueDepth = 128

// EventType is a type of event a goroutine can tell the server about.
type EventType int

const (
	// NullEvent is a default event. It means the event was not populated.
	NullEvent EventType = iota

	// ClientConnectedEvent means a connection was accepted.
	ClientConnectedEvent

	// ClientDisconnectedEvent means a client's connection is gone. Clean
	// it up.
	ClientDisconnectedEvent

	// IrcCommandEvent carries one line received from a client.
	IrcCommandEvent

	// WakeUpEvent means the server should wake up and do bookkeeping.
	WakeUpEvent
)

// Event holds a message telling the server something happened.
type Event struct {
	Type     EventType
	ClientID uint64

	// ClientConnectedEvent only.
	Conn *Conn
	Host string

	// IrcCommandEvent only. Line endings are stripped.
	Line string
}

// Server holds the state for a server: the user and channel tables and the
// server identity. Everything global to a server lives in an instance of
// this struct rather than in global variables.
//
// The tables are owned exclusively by the event loop goroutine; nothing
// else may touch them.
type Server struct {
	config Config

	// Client id to User.
	users map[uint64]*User

	// Folded nickname (per the configured casemapping) to client id.
	nicks map[string]uint64

	// Channel name to Channel.
	channels map[string]*Channel

	// Wall-clock startup time, preformatted for RPL_CREATED.
	startupTime string

	// When we close this channel we are shutting down. Other goroutines
	// can check whether it is closed.
	shutdownChan chan struct{}

	// Tell the server something on this channel.
	events chan Event

	listener net.Listener

	// Ensures all goroutines clean up before Serve returns.
	wg conc.WaitGroup

	shutdownOnce sync.Once

	log *logrus.Entry
}

// NewServer creates a Server from a configuration. Call Listen or Serve to
// run it.
func NewServer(cfg Config, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}

	// A zero DeadTime would make every read deadline expire immediately.
	defaults := DefaultConfig()
	if cfg.PingTime.Duration <= 0 {
		cfg.PingTime = defaults.PingTime
	}
	if cfg.DeadTime.Duration <= 0 {
		cfg.DeadTime = defaults.DeadTime
	}

	return &Server{
		config:       cfg,
		users:        make(map[uint64]*User),
		nicks:        make(map[string]uint64),
		channels:     make(map[string]*Channel),
		startupTime:  time.Now().Format(time.UnixDate),
		shutdownChan: make(chan struct{}),

		// We never manually close this channel.
		events: make(chan Event),

		log: log.WithField("server", cfg.Name),
	}
}

// Listen binds the configured address and serves until Shutdown is called.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(int(s.config.Port)))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", addr)
	}

	return s.Serve(ln)
}

// Serve accepts connections on ln and processes events until Shutdown is
// called. It returns once every goroutine has cleaned up.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln
	s.log.WithField("addr", ln.Addr().String()).Info("listening")

	s.wg.Go(s.acceptLoop)
	s.wg.Go(s.alarm)

	s.eventLoop()

	// The event loop is done, so nothing else mutates the tables. Sever
	// everyone still connected to let their reader/writer goroutines end.
	for _, u := range s.users {
		s.removeUser(u)
	}

	s.wg.Wait()
	return nil
}

// Shutdown starts server shutdown: the acceptor, alarm, and event loop
// end, and every client is severed. Safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Info("shutdown initiated")

		// Closing shutdownChan indicates to other goroutines that we're
		// shutting down.
		close(s.shutdownChan)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				s.log.WithError(err).Warn("problem closing listener")
			}
		}
	})
}

// isShuttingDown reports whether shutdown has started.
func (s *Server) isShuttingDown() bool {
	select {
	case <-s.shutdownChan:
		return true
	default:
		return false
	}
}

// newEvent tells the server something happened. Any goroutine can call it.
// It will not block on shutdown: receive on the closed shutdown channel
// proceeds at that point. It reports whether the event loop took the
// event; false means shutdown swallowed it.
func (s *Server) newEvent(evt Event) bool {
	select {
	case s.events <- evt:
		return true
	case <-s.shutdownChan:
		return false
	}
}

// acceptLoop accepts TCP connections and spawns a reader goroutine for
// each. Client ids increase monotonically and are never reused.
func (s *Server) acceptLoop() {
	var id uint64

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isShuttingDown() {
				break
			}
			s.log.WithError(err).Warn("unable to accept connection")
			continue
		}

		if s.isShuttingDown() {
			_ = conn.Close()
			break
		}

		id++
		clientID := id
		c := NewConn(conn, s.config.DeadTime.Duration)

		s.wg.Go(func() {
			s.readLoop(clientID, c)
		})
	}

	s.log.Debug("connection accepter shutting down")
}

// readLoop drives one socket's read side. It announces the connection,
// then turns each line into an event for the event loop. It never touches
// the user or channel tables.
func (s *Server) readLoop(clientID uint64, c *Conn) {
	log := s.log.WithFields(logrus.Fields{
		"client_id": clientID,
		"host":      c.RemoteAddr().String(),
	})

	// If the event loop is already gone, no user record will ever exist
	// for this connection, so nobody else would close it.
	if !s.newEvent(Event{
		Type:     ClientConnectedEvent,
		ClientID: clientID,
		Conn:     c,
		Host:     c.RemoteAddr().String(),
	}) {
		_ = c.Close()
		log.Debug("reader shutting down, connection arrived during shutdown")
		return
	}

	for {
		line, err := c.ReadLine()
		if err == errLineTooLong {
			log.Warn("dropping over-long line")
			continue
		}
		if err != nil {
			log.WithError(err).Debug("client read ended")
			break
		}

		if !s.newEvent(Event{
			Type:     IrcCommandEvent,
			ClientID: clientID,
			Line:     line,
		}) {
			break
		}
	}

	s.newEvent(Event{Type: ClientDisconnectedEvent, ClientID: clientID})
	_ = c.Close()

	log.Debug("reader shutting down")
}

// writeLoop drains a client's outbound queue onto its connection. It is
// the only goroutine that writes to the socket. Failed writes are logged
// and dropped, consistent with IRC's best-effort delivery.
func (s *Server) writeLoop(u *User) {
	for m := range u.writeChan {
		if err := u.conn.WriteMessage(m); err != nil {
			s.log.WithError(err).WithField("client_id", u.ClientID).
				Debug("write failed, dropping line")
		}
	}

	_ = u.conn.Close()
	s.log.WithField("client_id", u.ClientID).Debug("writer shutting down")
}

// alarm periodically wakes the event loop up so it can ping idle clients.
func (s *Server) alarm() {
	interval := s.config.PingTime.Duration / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		select {
		case <-time.After(interval):
		case <-s.shutdownChan:
			s.log.Debug("alarm shutting down")
			return
		}

		s.newEvent(Event{Type: WakeUpEvent})
	}
}

// eventLoop is the only mutator of server state. It processes one event to
// completion before starting the next, which serializes all replies: a
// reply triggered by a command is queued before any later command from the
// same client is even looked at.
func (s *Server) eventLoop() {
	for {
		select {
		case evt := <-s.events:
			s.handleEvent(evt)
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *Server) handleEvent(evt Event) {
	switch evt.Type {
	case ClientConnectedEvent:
		s.clientConnected(evt)
	case ClientDisconnectedEvent:
		s.clientDisconnected(evt.ClientID)
	case IrcCommandEvent:
		s.ircCommand(evt.ClientID, evt.Line)
	case WakeUpEvent:
		s.checkAndPingClients()
	default:
		s.log.WithField("type", evt.Type).Error("unexpected event")
	}
}

func (s *Server) clientConnected(evt Event) {
	now := time.Now()

	u := &User{
		ClientID:     evt.ClientID,
		Host:         evt.Host,
		conn:         evt.Conn,
		writeChan:    make(chan irc.Message, writeQueueDepth),
		lastActivity: now,
		lastPing:     now,
	}
	s.users[u.ClientID] = u

	s.wg.Go(func() {
		s.writeLoop(u)
	})

	s.log.WithFields(logrus.Fields{
		"client_id": u.ClientID,
		"host":      u.Host,
	}).Info("new client connection")
}

func (s *Server) clientDisconnected(clientID uint64) {
	u, exists := s.users[clientID]
	if !exists {
		// Already removed, e.g. by QUIT.
		return
	}

	s.log.WithFields(logrus.Fields{
		"client_id": clientID,
		"host":      u.Host,
	}).Info("client disconnected")

	s.removeUser(u)
}

// removeUser drops a user from the user table, the nickname index, and
// every channel membership list, then tears down its connection. After it
// returns no channel references the client id.
func (s *Server) removeUser(u *User) {
	delete(s.users, u.ClientID)

	if u.Nickname != "" {
		delete(s.nicks, s.config.FeatCaseMap.Fold(u.Nickname))
	}

	for _, ch := range s.channels {
		ch.Remove(u.ClientID)
	}

	close(u.writeChan)

	// The writer closes the connection too, but closing here as well
	// unblocks a reader mid-read even if the writer is flushing.
	if u.conn != nil {
		_ = u.conn.Close()
	}
}

func (s *Server) ircCommand(clientID uint64, line string) {
	u, exists := s.users[clientID]
	if !exists {
		return
	}

	// Record that the client said something to us just now.
	u.lastActivity = time.Now()

	s.log.WithField("client_id", clientID).Debug(line)

	m, err := irc.ParseMessage(line + "\r\n")
	if err != nil && err != irc.ErrTruncated {
		s.log.WithError(err).WithField("client_id", clientID).
			Warn("malformed message")
		return
	}

	q := s.query(clientID)

	act := parseAction(m, q)
	if act == nil {
		return
	}

	s.dispatch(q, act)
}

// checkAndPingClients looks at each connected client. A registered client
// idle past PingTime gets a PING; any client idle past DeadTime is
// severed.
func (s *Server) checkAndPingClients() {
	now := time.Now()

	for _, u := range s.users {
		idle := now.Sub(u.lastActivity)

		if idle > s.config.DeadTime.Duration {
			s.log.WithFields(logrus.Fields{
				"client_id": u.ClientID,
				"idle":      idle,
			}).Info("severing idle client")
			s.removeUser(u)
			continue
		}

		if !u.Registered() || idle < s.config.PingTime.Duration {
			continue
		}

		// It's been idle a while. We might have pinged it recently.
		if now.Sub(u.lastPing) < s.config.PingTime.Duration {
			continue
		}

		s.send(u, irc.Message{Command: "PING", Params: []string{s.config.Name}})
		u.lastPing = now
	}
}

// send queues a message for the client's writer goroutine. Best effort: a
// client whose queue is full loses the line.
func (s *Server) send(u *User, m irc.Message) {
	select {
	case u.writeChan <- m:
	default:
		s.log.WithField("client_id", u.ClientID).
			Warn("outbound queue full, dropping line")
	}
}
