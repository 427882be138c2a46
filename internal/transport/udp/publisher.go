// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/analysis"
	applog "github.com/PhysiologicAILab/mmrphys-live-sub000/internal/log"
	"github.com/PhysiologicAILab/mmrphys-live-sub000/internal/vitals"
)

// ResultSource provides the most recent processing result.
type ResultSource interface {
	Latest() (vitals.Result, bool)
}

// Sender transmits one packet. *UDPSender implements it.
type Sender interface {
	Send(data []byte) error
}

// maxDisplaySamples keeps a packet well under the 64 KiB datagram limit.
const maxDisplaySamples = 4096

// UDPPublisher periodically fetches the latest result, packs its rates and
// filtered display slices into a binary frame and sends it over UDP. It runs
// in a separate goroutine managed by Start and Stop.
type UDPPublisher struct {
	sender   Sender
	source   ResultSource
	interval time.Duration

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Signals the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	sequenceNum uint32

	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher. An interval <= 0 defaults to 100ms,
// fast enough for a 30 Hz display that is refreshed every few seconds.
func NewUDPPublisher(interval time.Duration, sender Sender, source ResultSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: result source cannot be nil")
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)
	return &UDPPublisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		f32Buffer:    make([]float32, 0, 2*maxDisplaySamples),
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins the periodic publishing process. Subsequent calls are
// no-ops while running.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				applog.Infof("UDPPublisher: Publisher goroutine received stop signal.")
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to
// exit. It is safe to call Stop multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		applog.Debugf("UDPPublisher: Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("UDPPublisher: Publisher goroutine finished.")
	return nil
}

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------------+
| Field              | Data Type | Size (Bytes) | Description                    |
|--------------------|-----------|--------------|--------------------------------|
| Sequence Number    | uint32    | 4            | Monotonically increasing       |
| Timestamp          | int64     | 8            | Nanoseconds since epoch        |
| Cardiac Rate       | float32   | 4            | Beats per minute               |
| Respiratory Rate   | float32   | 4            | Breaths per minute             |
| Cardiac Quality    | uint8     | 1            | 0 poor .. 3 excellent          |
| Resp Quality       | uint8     | 1            | 0 poor .. 3 excellent          |
| Flags              | uint8     | 1            | bit0 cardiac ready, bit1 resp  |
| Sample Count       | uint16    | 2            | Display samples per channel N  |
| Cardiac Display    | []float32 | N * 4        | Filtered, normalized           |
| Resp Display       | []float32 | N * 4        | Filtered, normalized           |
+------------------------------------------------------------------------------+
*/

// HeaderSize is the fixed part of a packet preceding the display samples.
const HeaderSize = 4 + 8 + 4 + 4 + 1 + 1 + 1 + 2

func (p *UDPPublisher) buildAndSendPacket() {
	res, ok := p.source.Latest()
	if !ok {
		return
	}

	p.sequenceNum++
	packet, err := p.pack(res, time.Now().UnixNano())
	if err != nil {
		applog.Errorf("UDPPublisher: Error packing data into binary buffer: %v", err)
		return
	}

	if err := p.sender.Send(packet); err == nil {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packet))
	}
}

// pack encodes res into the reusable packet buffer.
func (p *UDPPublisher) pack(res vitals.Result, timestamp int64) ([]byte, error) {
	cardiac, resp := res.Display.CardiacFiltered, res.Display.RespFiltered
	n := min(len(cardiac), len(resp), maxDisplaySamples)
	cardiac, resp = cardiac[len(cardiac)-n:], resp[len(resp)-n:]

	p.f32Buffer = p.f32Buffer[:0]
	for _, v := range cardiac {
		p.f32Buffer = append(p.f32Buffer, float32(v))
	}
	for _, v := range resp {
		p.f32Buffer = append(p.f32Buffer, float32(v))
	}

	var flags uint8
	if res.Cardiac.Ready {
		flags |= 1
	}
	if res.Respiratory.Ready {
		flags |= 2
	}

	p.packetBuffer.Reset()
	header := []any{
		p.sequenceNum,
		timestamp,
		float32(res.Cardiac.Rate),
		float32(res.Respiratory.Rate),
		qualityCode(res.Cardiac.Quality.Label),
		qualityCode(res.Respiratory.Quality.Label),
		flags,
		uint16(n),
	}
	for _, field := range header {
		if err := binary.Write(p.packetBuffer, binary.BigEndian, field); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer); err != nil {
		return nil, err
	}
	return p.packetBuffer.Bytes(), nil
}

func qualityCode(l analysis.Label) uint8 {
	switch l {
	case analysis.Excellent:
		return 3
	case analysis.Good:
		return 2
	case analysis.Moderate:
		return 1
	default:
		return 0
	}
}

// Packet is a decoded display frame.
type Packet struct {
	Sequence           uint32
	Timestamp          int64
	CardiacRate        float32
	RespiratoryRate    float32
	CardiacQuality     uint8
	RespiratoryQuality uint8
	Flags              uint8
	Cardiac            []float32
	Respiratory        []float32
}

// Decode parses a packet produced by the publisher.
func Decode(b []byte) (Packet, error) {
	var pkt Packet
	if len(b) < HeaderSize {
		return pkt, fmt.Errorf("udp: packet of %d bytes shorter than header", len(b))
	}
	pkt.Sequence = binary.BigEndian.Uint32(b[0:])
	pkt.Timestamp = int64(binary.BigEndian.Uint64(b[4:]))
	pkt.CardiacRate = math.Float32frombits(binary.BigEndian.Uint32(b[12:]))
	pkt.RespiratoryRate = math.Float32frombits(binary.BigEndian.Uint32(b[16:]))
	pkt.CardiacQuality = b[20]
	pkt.RespiratoryQuality = b[21]
	pkt.Flags = b[22]
	n := int(binary.BigEndian.Uint16(b[23:]))

	body := b[HeaderSize:]
	if len(body) != 8*n {
		return pkt, fmt.Errorf("udp: packet body has %d bytes, want %d", len(body), 8*n)
	}
	pkt.Cardiac = make([]float32, n)
	pkt.Respiratory = make([]float32, n)
	for i := range n {
		pkt.Cardiac[i] = math.Float32frombits(binary.BigEndian.Uint32(body[4*i:]))
		pkt.Respiratory[i] = math.Float32frombits(binary.BigEndian.Uint32(body[4*(n+i):]))
	}
	return pkt, nil
}

// Close implements the io.Closer interface. It gracefully stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

// Ensure UDPPublisher satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*UDPPublisher)(nil)
