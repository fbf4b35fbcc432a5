package canbus

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/banshee-data/f1-telemetry/internal/packet"
)

func TestFrames(t *testing.T) {
	frames := Frames(packet.CarTelemetryData{
		Speed:     312,
		EngineRPM: 11250,
		Throttle:  1.0,
		Gear:      7,
	})
	require.Len(t, frames, 5)

	assert.Equal(t, can.Frame{ID: PIDVehicleSpeed, Length: 1, Data: can.Data{255}}, frames[0], "OBD-II speed saturates")
	assert.Equal(t, can.Frame{ID: PIDSpeed16, Length: 2, Data: can.Data{0x01, 0x38}}, frames[1])
	// 11250*4 = 45000 = 0xAFC8
	assert.Equal(t, can.Frame{ID: PIDEngineRPM, Length: 2, Data: can.Data{0xAF, 0xC8}}, frames[2])
	assert.Equal(t, can.Frame{ID: PIDThrottle, Length: 1, Data: can.Data{255}}, frames[3])
	assert.Equal(t, can.Frame{ID: PIDGear, Length: 1, Data: can.Data{7}}, frames[4])
}

func TestFrames_EdgeValues(t *testing.T) {
	frames := Frames(packet.CarTelemetryData{Speed: 88, Throttle: -0.2, Gear: packet.GearReverse})
	assert.Equal(t, uint8(88), frames[0].Data[0])
	assert.Equal(t, uint8(0), frames[3].Data[0], "negative throttle clamps to zero")
	assert.Equal(t, uint8(0xFF), frames[4].Data[0], "reverse is -1 two's complement")

	frames = Frames(packet.CarTelemetryData{Throttle: 0.5, EngineRPM: 20000})
	assert.Equal(t, uint8(127), frames[3].Data[0])
	// Above the PID range rpm saturates instead of wrapping: 16383*4 = 0xFFFC.
	assert.Equal(t, can.Data{0xFF, 0xFC}, can.Data{frames[2].Data[0], frames[2].Data[1]})

	frames = Frames(packet.CarTelemetryData{EngineRPM: 17000})
	assert.Equal(t, can.Data{0xFF, 0xFC}, can.Data{frames[2].Data[0], frames[2].Data[1]})
	frames = Frames(packet.CarTelemetryData{EngineRPM: maxOBDRPM})
	assert.Equal(t, can.Data{0xFF, 0xFC}, can.Data{frames[2].Data[0], frames[2].Data[1]})
}

func TestUnsignedFrame_Widths(t *testing.T) {
	assert.Equal(t, can.Data{0xDE, 0xAD, 0xBE, 0xEF}, unsignedFrame(0x100, 4, 0xDEADBEEF).Data)
	assert.Equal(t, can.Data{1, 2, 3, 4, 5, 6, 7, 8}, unsignedFrame(0x100, 8, 0x0102030405060708).Data)
}

func TestSink_SendOverConnection(t *testing.T) {
	client, server := net.Pipe()
	sink := NewSink(client)
	defer sink.Close()

	received := make(chan can.Frame, 5)
	go func() {
		rx := socketcan.NewReceiver(server)
		for rx.Receive() {
			received <- rx.Frame()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec := packet.CarTelemetryData{Speed: 200, EngineRPM: 9000, Throttle: 0.8, Gear: 5}
	require.NoError(t, sink.Send(ctx, rec))

	want := Frames(rec)
	for i := range want {
		select {
		case got := <-received:
			assert.Equal(t, want[i], got)
		case <-ctx.Done():
			t.Fatalf("frame %d not received", i)
		}
	}
	server.Close()
}

func TestSink_RunStops(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	sink := NewSink(client)

	records := make(chan packet.CarTelemetryData)
	close(records)
	assert.NoError(t, sink.Run(context.Background(), records))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Run(ctx, make(chan packet.CarTelemetryData)), context.Canceled)

	// With nobody reading, the transmit fails once the peer is closed.
	require.NoError(t, server.Close())
	pending := make(chan packet.CarTelemetryData, 1)
	pending <- packet.CarTelemetryData{Speed: 1}
	assert.Error(t, sink.Run(context.Background(), pending))
	assert.NoError(t, sink.Close())
}
