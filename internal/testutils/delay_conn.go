package testutils

import (
	"net"
	"sync"
	"time"
)

type delayedPacket struct {
	data []byte
	addr net.Addr
	due  time.Time
}

// DelayPacketConn delays every outgoing datagram by a fixed time,
// which adds that time to the round trip of connections on it.
// Datagrams keep their order.
type DelayPacketConn struct {
	net.PacketConn
	delay     time.Duration
	queue     chan delayedPacket
	done      chan struct{}
	closeOnce sync.Once
}

func NewDelayPacketConn(conn net.PacketConn, delay time.Duration) *DelayPacketConn {
	c := &DelayPacketConn{
		PacketConn: conn,
		delay:      delay,
		queue:      make(chan delayedPacket, 1<<14),
		done:       make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *DelayPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	pkt := delayedPacket{
		data: append([]byte(nil), p...),
		addr: addr,
		due:  time.Now().Add(c.delay),
	}
	select {
	case <-c.done:
		return 0, net.ErrClosed
	default:
	}
	select {
	case c.queue <- pkt:
		return len(p), nil
	case <-c.done:
		return 0, net.ErrClosed
	}
}

func (c *DelayPacketConn) run() {
	timer := time.NewTimer(0)
	<-timer.C
	for {
		var pkt delayedPacket
		select {
		case pkt = <-c.queue:
		case <-c.done:
			return
		}
		if wait := time.Until(pkt.due); wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-c.done:
				timer.Stop()
				return
			}
		}
		// the receiver handles losses
		_, _ = c.PacketConn.WriteTo(pkt.data, pkt.addr)
	}
}

func (c *DelayPacketConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.PacketConn.Close()
}
