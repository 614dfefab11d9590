package tcpserver

import (
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"gt06gateway/internal/command"
	"gt06gateway/internal/model"
	"gt06gateway/internal/protocol/gt06"
	"gt06gateway/internal/registry"
)

// connState is one state in the per-connection lifecycle: CONNECTED,
// AUTHENTICATED, ACTIVE, IDLE, or CLOSED. A connection starts CONNECTED,
// a login moves it to AUTHENTICATED, the first message dispatched after
// login moves it to ACTIVE, and teardown sets CLOSED. IDLE is never
// entered: an idle timeout ends the read loop and tears the connection
// down directly.
type connState int32

const (
	stateConnected connState = iota
	stateAuthenticated
	stateActive
	stateIdle
	stateClosed
)

const writeQueueDepth = 32

// Connection owns one accepted TCP socket: its frame codec, its current
// lifecycle state, and a serialized outbound write queue so command
// frames and acknowledgments never interleave on the wire.
type Connection struct {
	handle uint64
	conn   net.Conn
	srv    *Server
	codec  *gt06.Codec

	state   int32
	imei    string
	imeiMu  sync.RWMutex
	shardID int

	writeCh  chan []byte
	closed   chan struct{}
	closeOnce sync.Once
}

func newConnection(handle uint64, conn net.Conn, srv *Server) *Connection {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
		_ = tcp.SetNoDelay(true)
	}
	return &Connection{
		handle:  handle,
		conn:    conn,
		srv:     srv,
		codec:   gt06.NewCodec(),
		state:   int32(stateConnected),
		writeCh: make(chan []byte, writeQueueDepth),
		closed:  make(chan struct{}),
	}
}

func (c *Connection) setState(s connState) {
	atomic.StoreInt32(&c.state, int32(s))
}

func (c *Connection) currentState() connState {
	return connState(atomic.LoadInt32(&c.state))
}

func (c *Connection) imeiOf() string {
	c.imeiMu.RLock()
	defer c.imeiMu.RUnlock()
	return c.imei
}

func (c *Connection) setIMEI(imei string) {
	c.imeiMu.Lock()
	c.imei = imei
	c.imeiMu.Unlock()
}

// run drives the connection until it is closed: a writer goroutine
// drains the outbound queue while this goroutine reads and dispatches
// inbound frames.
func (c *Connection) run() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	c.readLoop()
	c.teardown()

	close(c.writeCh)
	wg.Wait()
	_ = c.conn.Close()
}

func (c *Connection) readLoop() {
	buf := make([]byte, 4096)
	idleTimeout := c.srv.cfg.IdleTimeout
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.codec.Feed(buf[:n])
			for {
				frame, ok, ferr := c.codec.NextFrame()
				if ferr != nil {
					log.Printf("[tcpserver] conn=%d framing error: %v", c.handle, ferr)
					break
				}
				if !ok {
					break
				}
				c.handleFrame(frame)
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Printf("[tcpserver] conn=%d idle timeout, closing", c.handle)
			}
			return
		}
	}
}

func (c *Connection) writeLoop() {
	for data := range c.writeCh {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return
		}
		if _, err := c.conn.Write(data); err != nil {
			log.Printf("[tcpserver] conn=%d write error: %v", c.handle, err)
			return
		}
	}
}

// enqueue hands data to this connection's write goroutine. It never
// blocks the caller indefinitely: a connection whose queue is full is
// already unhealthy, and the write is dropped rather than stalling the
// command dispatcher or another connection's read loop.
func (c *Connection) enqueue(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionGone
	default:
	}
	select {
	case c.writeCh <- data:
		return nil
	default:
		return errors.New("tcpserver: write queue full")
	}
}

func (c *Connection) handleFrame(frame *gt06.Frame) {
	event, err := gt06.Parse(frame)
	if err != nil {
		log.Printf("[tcpserver] conn=%d protocol=0x%02X decode error: %v", c.handle, frame.ProtocolNumber, err)
		_ = c.enqueue(gt06.BuildGenericAck(frame.ProtocolNumber, frame.SerialNumber))
		return
	}

	if event.Kind == gt06.EventLogin {
		c.handleLogin(event, frame.SerialNumber)
		return
	}

	if c.currentState() == stateConnected {
		log.Printf("[tcpserver] conn=%d message before login, kind=%s: ignoring payload", c.handle, event.Kind)
		_ = c.enqueue(gt06.BuildGenericAck(frame.ProtocolNumber, frame.SerialNumber))
		return
	}

	c.dispatch(event, frame)
	c.setState(stateActive)
	_ = c.enqueue(gt06.BuildGenericAck(frame.ProtocolNumber, frame.SerialNumber))
}

func (c *Connection) handleLogin(event *gt06.Event, serial uint16) {
	imei := event.Login.IMEI
	session, err := c.srv.registry.CreateOrRebind(imei, c.conn.RemoteAddr().String(), c.handle)
	if err != nil {
		log.Printf("[tcpserver] conn=%d login rejected for imei=%s: %v", c.handle, imei, err)
		return
	}
	c.setIMEI(imei)
	c.shardID = c.srv.shards.shardFor(imei)
	c.srv.shards.enter(c.shardID)
	c.setState(stateAuthenticated)

	c.srv.publisher.PublishSessionEvent(model.DeviceSessionEvent{
		IMEI: imei, Kind: model.SessionLoggedIn, Timestamp: session.CreatedAt,
	})
	_ = c.enqueue(gt06.BuildLoginAck(serial))
}

func (c *Connection) dispatch(event *gt06.Event, frame *gt06.Frame) {
	imei := c.imeiOf()
	c.srv.registry.Touch(imei)
	if c.srv.archiver != nil {
		c.srv.archiver.ArchiveRawFrame(imei, frame.ProtocolNumber, frame.Payload)
	}

	switch event.Kind {
	case gt06.EventLocation:
		c.applyLocation(imei, event.Location)
	case gt06.EventStatus:
		c.applyStatus(imei, event.Status.BatteryPercent, event.Status.Charging, event.Status.Ignition, event.Status.GSMSignalLevel)
	case gt06.EventHeartbeat:
		c.applyStatus(imei, event.Heartbeat.BatteryPercent, event.Heartbeat.Charging, event.Heartbeat.Ignition, event.Heartbeat.GSMSignalLevel)
	case gt06.EventAlarm:
		if event.Alarm.Location != nil {
			c.applyLocation(imei, event.Alarm.Location)
		}
		log.Printf("[tcpserver] conn=%d imei=%s alarm code=%d", c.handle, imei, event.Alarm.Code)
	case gt06.EventInfo:
		c.matchCommandResponse(imei, event.Info.Text)
	case gt06.EventCommandResponse:
		c.matchCommandResponse(imei, event.CommandResponse.Text)
	case gt06.EventAddressRequest:
		log.Printf("[tcpserver] conn=%d imei=%s address request (no geocoding backend configured)", c.handle, imei)
	case gt06.EventUnknown:
		log.Printf("[tcpserver] conn=%d imei=%s unclassified protocol=0x%02X", c.handle, imei, event.Unknown.ProtocolNumber)
	}
}

func (c *Connection) applyLocation(imei string, loc *gt06.Location) {
	if loc.CoordinateValid {
		c.srv.registry.UpdatePosition(imei, loc.Latitude, loc.Longitude, loc.Timestamp)
	}
	if loc.Ignition != nil {
		c.srv.registry.UpdateStatus(imei, registry.StatusUpdate{Ignition: loc.Ignition})
	}

	speed, course := loc.Speed, loc.Course
	satellites := loc.Satellites
	gpsValid := loc.GPSFixed
	c.srv.publisher.PublishTelemetry(model.TelemetryEvent{
		IMEI: imei, Timestamp: loc.Timestamp,
		Latitude: &loc.Latitude, Longitude: &loc.Longitude,
		Speed: &speed, Course: &course, Satellites: &satellites, GPSValid: &gpsValid,
		Ignition: loc.Ignition,
	})
}

func (c *Connection) applyStatus(imei string, battery int, charging, ignition bool, gsmLevel int) {
	c.srv.registry.UpdateStatus(imei, registry.StatusUpdate{
		BatteryPercent: &battery, Charging: &charging, Ignition: &ignition, GSMSignalLevel: &gsmLevel,
	})
	c.srv.publisher.PublishTelemetry(model.TelemetryEvent{
		IMEI: imei, Timestamp: time.Now(),
		BatteryPercent: &battery, Ignition: &ignition, GSMSignal: &gsmLevel,
	})
}

func (c *Connection) matchCommandResponse(imei, text string) {
	if c.srv.dispatcher == nil {
		return
	}
	if cmd, ok := c.srv.dispatcher.MatchResponse(imei, text); ok {
		log.Printf("[tcpserver] conn=%d imei=%s acknowledged command=%s", c.handle, imei, cmd.CommandID)
	}
}

func (c *Connection) teardown() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.setState(stateClosed)

	imei := c.imeiOf()
	if imei == "" {
		c.srv.removeConnection(c.handle)
		return
	}

	c.srv.shards.leave(c.shardID)
	if _, ok := c.srv.registry.RemoveByConnection(c.handle); ok {
		if c.srv.dispatcher != nil {
			c.srv.dispatcher.FailAllForConnection(imei)
		}
		c.srv.publisher.PublishSessionEvent(model.DeviceSessionEvent{
			IMEI: imei, Kind: model.SessionDisconnected, Timestamp: time.Now(),
		})
	}
	c.srv.removeConnection(c.handle)
}

// forceClose is invoked by the registry's idle sweep (via Server,
// implementing registry.ConnectionCloser) to tear down a connection
// whose session has already been evicted.
func (c *Connection) forceClose() {
	c.closeOnce.Do(func() { close(c.closed) })
	_ = c.conn.Close()
}

var _ command.ConnectionWriter = (*Server)(nil)
