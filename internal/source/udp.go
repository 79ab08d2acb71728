//////////////////////////////////////////////////////////////////////////////
//
// Vehicle video link over UDP
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package source

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

const (
	// Larger than any UDP payload.
	maxDatagramSize = 65536

	// Socket receive buffer requested for the link. Key frames arrive as
	// bursts of datagrams that overflow the default.
	receiveBufferSize = 4 * 1024 * 1024
)

// A udpSource receives the video link as a stream of datagrams, one
// arbitrary slice of the byte stream each. If the address is a multicast
// group, the source joins it on all interfaces.
type udpSource struct {
	conn  *net.UDPConn
	group *net.UDPAddr
}

func openUDP(addr string) (Source, error) {
	ua, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}

	listenAddr := ua.String()
	if ua.IP.IsMulticast() {
		listenAddr = net.JoinHostPort("0.0.0.0", strconv.Itoa(ua.Port))
	}

	lc := net.ListenConfig{Control: setReceiveBuffer}
	pc, err := lc.ListenPacket(context.Background(), "udp4", listenAddr)
	if err != nil {
		return nil, err
	}
	s := &udpSource{conn: pc.(*net.UDPConn)}

	if ua.IP.IsMulticast() {
		p := ipv4.NewPacketConn(s.conn)
		if err := p.JoinGroup(nil, &net.UDPAddr{IP: ua.IP}); err != nil {
			s.conn.Close()
			return nil, errors.Wrapf(err, "join %v", ua.IP)
		}
		s.group = ua
		log.Info("Joined multicast group %v", ua.IP)
	}

	log.Info("Listening for video on udp %v", s.conn.LocalAddr())
	return s, nil
}

func init() {
	RegisterSourceType("udp", openUDP)
}

// Addr returns the local address datagrams should be sent to.
func (s *udpSource) Addr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *udpSource) Run(ctx context.Context, feed func([]byte)) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-stop:
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n > 0 {
			feed(buf[:n])
		}
	}
}

func (s *udpSource) Close() error {
	if s.group != nil {
		ipv4.NewPacketConn(s.conn).LeaveGroup(nil, &net.UDPAddr{IP: s.group.IP})
	}
	return s.conn.Close()
}
