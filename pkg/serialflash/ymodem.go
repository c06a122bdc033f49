package serialflash

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"time"

	"github.com/juju/errors"
)

// YMODEM control bytes.
const (
	soh  = 0x01
	stx  = 0x02
	eot  = 0x04
	ack  = 0x06
	nak  = 0x15
	can  = 0x18
	crcC = 'C'
	pad  = 0x1A
)

const (
	shortBlock = 128
	longBlock  = 1024
)

var (
	// ErrCanceled is returned when the receiver aborts the transfer.
	ErrCanceled = errors.New("transfer canceled by receiver")

	// ErrTimeout is returned when the receiver stops responding.
	ErrTimeout = errors.New("receiver timed out")
)

// Sender transmits one file with the YMODEM batch protocol. Reads on the
// underlying stream may return 0 bytes on timeout.
type Sender struct {
	rw       io.ReadWriter
	timeout  time.Duration
	retries  int
	progress func(sent, total int)
}

// NewSender returns a sender waiting up to timeout for each reply.
func NewSender(rw io.ReadWriter, timeout time.Duration) *Sender {
	return &Sender{rw: rw, timeout: timeout, retries: 10}
}

// Send transmits data under name: header block, data blocks, EOT and the
// closing empty header.
func (s *Sender) Send(ctx context.Context, name string, data []byte) error {
	if err := s.expect(ctx, crcC); err != nil {
		return errors.Annotate(err, "waiting for receiver")
	}

	if err := s.sendBlock(ctx, 0, header(name, len(data)), true); err != nil {
		return errors.Annotate(err, "file header")
	}

	sent := 0
	for seq := 1; sent < len(data); seq++ {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		n := longBlock
		if rest := len(data) - sent; rest <= shortBlock {
			n = shortBlock
		}
		end := sent + n
		if end > len(data) {
			end = len(data)
		}
		if err := s.sendBlock(ctx, byte(seq), data[sent:end], false); err != nil {
			return errors.Annotatef(err, "block %d", seq)
		}
		sent = end
		if s.progress != nil {
			s.progress(sent, len(data))
		}
	}

	if err := s.finish(ctx); err != nil {
		return errors.Annotate(err, "end of transfer")
	}
	return nil
}

// header builds the block 0 payload: NUL-terminated name and decimal size.
func header(name string, size int) []byte {
	var b bytes.Buffer
	b.WriteString(name)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(size))
	b.WriteByte(0)
	return b.Bytes()
}

func (s *Sender) sendBlock(ctx context.Context, seq byte, payload []byte, isHeader bool) error {
	size := shortBlock
	if len(payload) > shortBlock {
		size = longBlock
	}
	fill := byte(pad)
	if isHeader {
		fill = 0
	}

	pkt := make([]byte, 0, 3+size+2)
	if size == longBlock {
		pkt = append(pkt, stx)
	} else {
		pkt = append(pkt, soh)
	}
	pkt = append(pkt, seq, ^seq)
	pkt = append(pkt, payload...)
	for len(pkt) < 3+size {
		pkt = append(pkt, fill)
	}
	crc := crc16(pkt[3:])
	pkt = append(pkt, byte(crc>>8), byte(crc))

	for attempt := 0; attempt <= s.retries; attempt++ {
		if _, err := s.rw.Write(pkt); err != nil {
			return errors.Trace(err)
		}
		c, err := s.readByte(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		switch c {
		case ack:
			if isHeader && len(payload) > 0 {
				// The receiver asks for data with another 'C'
				return s.expect(ctx, crcC)
			}
			return nil
		case can:
			return ErrCanceled
		}
	}
	return errors.Errorf("block %d not acknowledged after %d attempts", seq, s.retries+1)
}

// finish sends EOT until acknowledged and closes the batch with an empty
// header block.
func (s *Sender) finish(ctx context.Context) error {
	acked := false
	for attempt := 0; attempt <= s.retries && !acked; attempt++ {
		if _, err := s.rw.Write([]byte{eot}); err != nil {
			return errors.Trace(err)
		}
		c, err := s.readByte(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		switch c {
		case ack:
			acked = true
		case can:
			return ErrCanceled
		}
	}
	if !acked {
		return errors.New("EOT not acknowledged")
	}

	if err := s.expect(ctx, crcC); err != nil {
		return errors.Trace(err)
	}
	return s.sendBlock(ctx, 0, nil, true)
}

// expect reads until want arrives; CAN aborts.
func (s *Sender) expect(ctx context.Context, want byte) error {
	for {
		c, err := s.readByte(ctx)
		if err != nil {
			return err
		}
		switch c {
		case want:
			return nil
		case can:
			return ErrCanceled
		}
	}
}

func (s *Sender) readByte(ctx context.Context) (byte, error) {
	deadline := time.Now().Add(s.timeout)
	buf := make([]byte, 1)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := s.rw.Read(buf)
		if n == 1 {
			return buf[0], nil
		}
		if err != nil && err != io.EOF {
			return 0, errors.Trace(err)
		}
		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		if n == 0 && err == io.EOF {
			time.Sleep(time.Millisecond)
		}
	}
}

// crc16 is CRC-16/XMODEM (poly 0x1021, init 0).
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
