package myriad

import (
	"bufio"
	"net"
	"strings"
	"time"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// errLineTooLong is returned by ReadLine for a line over the protocol
// maximum. The connection stays usable; the reader drops the line.
var errLineTooLong = errors.New("line exceeds maximum length")

// Conn wraps a client's TCP connection with buffered line I/O.
type Conn struct {
	conn   net.Conn
	rw     *bufio.ReadWriter
	ioWait time.Duration
}

// NewConn initializes a Conn. ioWait bounds how long a single read or
// write may block.
func NewConn(conn net.Conn, ioWait time.Duration) *Conn {
	return &Conn{
		conn:   conn,
		rw:     bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		ioWait: ioWait,
	}
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection, shutting down both directions.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// ReadLine reads one CRLF- or LF-terminated line with the line ending
// stripped. Lines longer than the protocol maximum (512 bytes including
// the ending) come back as errLineTooLong.
func (c *Conn) ReadLine() (string, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.ioWait)); err != nil {
		return "", errors.Wrap(err, "error setting read deadline")
	}

	line, err := c.rw.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "error reading")
	}

	if len(line) > irc.MaxLineLength {
		return "", errLineTooLong
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// WriteMessage encodes and writes one message. Truncation to the maximum
// line length is not an error; the truncated line is still sent.
func (c *Conn) WriteMessage(m irc.Message) error {
	buf, err := m.Encode()
	if err != nil && err != irc.ErrTruncated {
		return errors.Wrap(err, "unable to encode message")
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.ioWait)); err != nil {
		return errors.Wrap(err, "error setting write deadline")
	}

	if _, err := c.rw.WriteString(buf); err != nil {
		return errors.Wrap(err, "error writing")
	}

	return errors.Wrap(c.rw.Flush(), "flush error")
}
