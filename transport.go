package banana

import "net"

// Transport is the byte-stream contract a Connection drives (spec.md
// §6): something that accepts written bytes and can be asked to drop
// the connection. Grounded on the write/loseConnection pair
// banana.py's Banana expects from its Twisted transport.
type Transport interface {
	Write(p []byte) error
	LoseConnection(reason error) error
}

// netTransport adapts a net.Conn to Transport.
type netTransport struct {
	conn net.Conn
}

// NewNetTransport wraps conn as a Transport.
func NewNetTransport(conn net.Conn) Transport { return &netTransport{conn: conn} }

func (t *netTransport) Write(p []byte) error {
	_, err := t.conn.Write(p)
	return err
}

func (t *netTransport) LoseConnection(reason error) error {
	return t.conn.Close()
}
