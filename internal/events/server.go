package events

import (
	"bufio"
	"log"
	"net"
	"strings"
)

// Server accepts raw TCP clients for the line protocol: the hub writes
// one JSON event per line, and the only inbound command is
// "subscribe <type>[,<type>...]".
type Server struct {
	Addr string
	Hub  *Hub

	ln net.Listener
}

func NewServer(addr string, hub *Hub) *Server {
	return &Server{Addr: addr, Hub: hub}
}

func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	log.Printf("[events] TCP listening on %s", s.Addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}

		s.Hub.Add(conn)
		s.Hub.Welcome(conn)
		log.Printf("[events] client connected: %s", conn.RemoteAddr())

		go func(c net.Conn) {
			defer func() {
				s.Hub.Remove(c)
				log.Printf("[events] client disconnected: %s", c.RemoteAddr())
			}()

			sc := bufio.NewScanner(c)
			for sc.Scan() {
				types, ok := parseSubscribe(sc.Text())
				if !ok {
					continue
				}
				s.Hub.Subscribe(c, types)
				log.Printf("[events] %s subscribed to %v", c.RemoteAddr(), types)
			}
		}(conn)
	}
}

// parseSubscribe recognizes "subscribe <type>[,<type>...]". A bare
// "subscribe" returns an empty list, which resets the client to the
// full stream. Anything else is ignored.
func parseSubscribe(line string) ([]Type, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "subscribe")
	if !ok || (rest != "" && !strings.HasPrefix(rest, " ")) {
		return nil, false
	}
	var types []Type
	for _, f := range strings.Split(rest, ",") {
		if f = strings.TrimSpace(f); f != "" {
			types = append(types, Type(f))
		}
	}
	return types, true
}

func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
