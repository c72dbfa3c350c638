package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/danmuck/brickctl/internal/protocol/frame"
	"github.com/danmuck/brickctl/internal/testutil/testlog"
	"github.com/sstallion/go-hid"
	"github.com/stretchr/testify/require"
)

type fakeHID struct {
	written [][]byte
	reads   [][]byte
	closed  bool
}

func (f *fakeHID) Write(p []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeHID) ReadWithTimeout(p []byte, _ time.Duration) (int, error) {
	if len(f.reads) == 0 {
		return 0, hid.ErrTimeout
	}
	next := f.reads[0]
	f.reads = f.reads[1:]
	return copy(p, next), nil
}

func (f *fakeHID) Close() error {
	f.closed = true
	return nil
}

type fakeSerial struct {
	clock   time.Time
	timeout time.Duration
	chunks  [][]byte
	written []byte
	closed  bool
}

func (f *fakeSerial) now() time.Time { return f.clock }

func (f *fakeSerial) Read(p []byte) (int, error) {
	if len(f.chunks) == 0 {
		f.clock = f.clock.Add(f.timeout)
		return 0, nil
	}
	next := f.chunks[0]
	f.chunks = f.chunks[1:]
	return copy(p, next), nil
}

func (f *fakeSerial) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeSerial) SetReadTimeout(t time.Duration) error {
	f.timeout = t
	return nil
}

func (f *fakeSerial) Close() error {
	f.closed = true
	return nil
}

func replyBytes(t *testing.T, counter uint16, payload []byte) []byte {
	t.Helper()
	b, err := frame.EncodeReply(frame.Frame{Counter: counter, Kind: frame.DefaultKinds().Reply, Opcode: 0x9D, Payload: payload})
	require.NoError(t, err)
	return b
}

func TestUSBWrapsFrameInPaddedReport(t *testing.T) {
	testlog.Start(t)
	dev := &fakeHID{}
	u := newUSB(dev, USBConfig{ReportID: 0, ReportSize: 16}, nil)

	n, err := u.Write([]byte{4, 0, 1, 0, 1, 0x9D})
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Len(t, dev.written, 1)
	require.Len(t, dev.written[0], 17)
	require.Equal(t, []byte{0, 4, 0, 1, 0, 1, 0x9D}, dev.written[0][:7])
	require.Equal(t, make([]byte, 10), dev.written[0][7:])
}

func TestUSBRejectsOversizedFrame(t *testing.T) {
	testlog.Start(t)
	u := newUSB(&fakeHID{}, USBConfig{ReportSize: 4}, nil)
	_, err := u.Write(make([]byte, 5))
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.Contains(t, u.LastError(), "exceeds")
}

func TestUSBStripsPaddingOnRead(t *testing.T) {
	testlog.Start(t)
	reply := replyBytes(t, 9, []byte("ok"))
	report := make([]byte, 32)
	copy(report, reply)
	u := newUSB(&fakeHID{reads: [][]byte{report}}, USBConfig{ReportSize: 32}, nil)

	buf := make([]byte, 64)
	n, err := u.ReadTimeout(buf, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, reply, buf[:n])
}

func TestUSBStripsEchoedReportID(t *testing.T) {
	testlog.Start(t)
	reply := replyBytes(t, 1, nil)
	report := append([]byte{0x02}, reply...)
	report = append(report, 0, 0, 0)
	u := newUSB(&fakeHID{reads: [][]byte{report}}, USBConfig{ReportID: 0x02, ReportSize: 32}, nil)

	buf := make([]byte, 64)
	n, err := u.ReadTimeout(buf, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, reply, buf[:n])
}

func TestUSBTimeoutReadsZero(t *testing.T) {
	testlog.Start(t)
	u := newUSB(&fakeHID{}, USBConfig{ReportSize: 32}, nil)
	n, err := u.ReadTimeout(make([]byte, 64), time.Millisecond)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestUSBCloseReleasesOnce(t *testing.T) {
	testlog.Start(t)
	dev := &fakeHID{}
	released := 0
	u := newUSB(dev, USBConfig{ReportSize: 8}, func() error { released++; return nil })
	require.NoError(t, u.Close())
	require.NoError(t, u.Close())
	require.True(t, dev.closed)
	require.Equal(t, 1, released)
	_, err := u.Write([]byte{1})
	require.ErrorIs(t, err, ErrClosed)
}

func TestBluetoothReassemblesSplitFrames(t *testing.T) {
	testlog.Start(t)
	first := replyBytes(t, 1, []byte("hello"))
	second := replyBytes(t, 2, []byte("world"))
	stream := append(append([]byte(nil), first...), second...)
	port := &fakeSerial{clock: time.Unix(0, 0), chunks: [][]byte{stream[:3], stream[3:10], stream[10:]}}
	b := newBluetooth(port, BluetoothConfig{BufferSize: 64}, port.now)

	buf := make([]byte, 64)
	n, err := b.ReadTimeout(buf, time.Second)
	require.NoError(t, err)
	require.Equal(t, first, buf[:n])

	n, err = b.ReadTimeout(buf, time.Second)
	require.NoError(t, err)
	require.Equal(t, second, buf[:n])
}

func TestBluetoothTimeoutKeepsPartialFrame(t *testing.T) {
	testlog.Start(t)
	reply := replyBytes(t, 3, []byte("abc"))
	port := &fakeSerial{clock: time.Unix(0, 0), chunks: [][]byte{reply[:4]}}
	b := newBluetooth(port, BluetoothConfig{BufferSize: 64}, port.now)

	start := port.clock
	buf := make([]byte, 64)
	n, err := b.ReadTimeout(buf, 50*time.Millisecond)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 50*time.Millisecond, port.clock.Sub(start))

	port.chunks = [][]byte{reply[4:]}
	n, err = b.ReadTimeout(buf, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, reply, buf[:n])
}

func TestBluetoothCorruptLengthDropsStream(t *testing.T) {
	testlog.Start(t)
	reply := replyBytes(t, 4, []byte("ok"))
	port := &fakeSerial{clock: time.Unix(0, 0), chunks: [][]byte{{0xFF, 0xFF, 1, 2, 3}}}
	b := newBluetooth(port, BluetoothConfig{BufferSize: 64}, port.now)

	buf := make([]byte, 64)
	_, err := b.ReadTimeout(buf, time.Second)
	require.True(t, protocol.IsKind(err, protocol.KindProtocol), "got %v", err)
	require.ErrorIs(t, err, protocol.ErrMalformed)
	require.Contains(t, b.LastError(), "dropped")

	port.chunks = [][]byte{reply}
	n, err := b.ReadTimeout(buf, time.Second)
	require.NoError(t, err)
	require.Equal(t, reply, buf[:n])
}

func TestBluetoothWritesRawFrame(t *testing.T) {
	testlog.Start(t)
	port := &fakeSerial{}
	b := newBluetooth(port, BluetoothConfig{BufferSize: 64}, port.now)
	f := []byte{4, 0, 7, 0, 0x81, 0x9C}
	n, err := b.Write(f)
	require.NoError(t, err)
	require.Equal(t, len(f), n)
	require.Equal(t, f, port.written)
}

func TestOpenBluetoothWithoutPort(t *testing.T) {
	testlog.Start(t)
	_, err := OpenBluetooth(BluetoothConfig{BufferSize: 64})
	require.ErrorIs(t, err, ErrNoPort)
}

func TestProberFallsBackInOrder(t *testing.T) {
	testlog.Start(t)
	var tried []string
	want := newBluetooth(&fakeSerial{}, BluetoothConfig{BufferSize: 64}, time.Now)
	p := &Prober{
		Config: DefaultConfig(),
		Openers: map[string]Opener{
			NameUSB: func(Config) (Channel, error) {
				tried = append(tried, NameUSB)
				return nil, errors.New("no hid device")
			},
			NameBluetooth: func(Config) (Channel, error) {
				tried = append(tried, NameBluetooth)
				return want, nil
			},
		},
	}
	ch, err := p.Open(context.Background())
	require.NoError(t, err)
	require.Same(t, want, ch)
	require.Equal(t, []string{NameUSB, NameBluetooth}, tried)
}

func TestProberAllFailIsTransportError(t *testing.T) {
	testlog.Start(t)
	p := &Prober{
		Config: Config{Order: []string{NameUSB, "carrier-pigeon"}},
		Openers: map[string]Opener{
			NameUSB: func(Config) (Channel, error) { return nil, errors.New("no hid device") },
		},
	}
	_, err := p.Open(context.Background())
	require.True(t, protocol.IsKind(err, protocol.KindTransport))
	require.ErrorIs(t, err, protocol.ErrNoDevice)
	require.ErrorIs(t, err, ErrUnknownLink)
}
