package smarteefi

import (
	"net"
	"testing"
	"time"
)

// startTestListener binds a listener on an ephemeral loopback port.
func startTestListener(t *testing.T) *StatusListener {
	t.Helper()

	listener, err := Listen(ListenerConfig{Bind: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	return listener
}

// sendDatagram sends one UDP payload to the listener.
func sendDatagram(t *testing.T, listener *StatusListener, payload []byte) {
	t.Helper()

	conn, err := net.Dial("udp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dialing listener: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("sending datagram: %v", err)
	}
}

func TestListener_ReceivesStatus(t *testing.T) {
	listener := startTestListener(t)

	received := make(chan DeviceStatus, 1)
	listener.SetOnStatus(func(status DeviceStatus) {
		received <- status
	})

	sendDatagram(t, listener, []byte(`{"serial":"a1b2c3","smap":4,"statusmap":4}`))

	select {
	case status := <-received:
		if status.Serial != "a1b2c3" {
			t.Errorf("Serial = %q, want a1b2c3", status.Serial)
		}
		if status.Smap != 4 {
			t.Errorf("Smap = %d, want 4", status.Smap)
		}
		if status.Status != 4 {
			t.Errorf("Status = %d, want 4", status.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for status callback")
	}
}

func TestListener_IgnoresMalformedDatagrams(t *testing.T) {
	listener := startTestListener(t)

	received := make(chan DeviceStatus, 2)
	listener.SetOnStatus(func(status DeviceStatus) {
		received <- status
	})

	// Malformed payloads must be counted and skipped without killing the loop.
	sendDatagram(t, listener, []byte(`not json`))
	sendDatagram(t, listener, []byte(`{"smap":4,"statusmap":4}`)) // missing serial
	sendDatagram(t, listener, []byte(`{"serial":"a1b2c3","smap":1,"statusmap":0}`))

	select {
	case status := <-received:
		if status.Smap != 1 {
			t.Errorf("Smap = %d, want 1", status.Smap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for valid status after malformed datagrams")
	}

	// Only the valid datagram may reach the callback.
	select {
	case status := <-received:
		t.Errorf("unexpected extra status delivered: %+v", status)
	case <-time.After(100 * time.Millisecond):
	}

	stats := listener.Stats()
	if stats.ParseErrors != 2 {
		t.Errorf("ParseErrors = %d, want 2", stats.ParseErrors)
	}
}

func TestListener_Stats(t *testing.T) {
	listener := startTestListener(t)

	done := make(chan struct{}, 1)
	listener.SetOnStatus(func(DeviceStatus) {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	sendDatagram(t, listener, []byte(`{"serial":"a1b2c3","smap":2,"statusmap":2}`))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for datagram")
	}

	stats := listener.Stats()
	if stats.DatagramsRx == 0 {
		t.Error("DatagramsRx = 0, want at least 1")
	}
}

func TestListener_CloseIdempotent(t *testing.T) {
	listener, err := Listen(ListenerConfig{Bind: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	if err := listener.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := listener.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestListen_InvalidBind(t *testing.T) {
	_, err := Listen(ListenerConfig{Bind: "not-an-ip", Port: 0})
	if err == nil {
		t.Fatal("Listen() expected error for invalid bind address")
	}
}

func TestParseStatusDatagram(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    DeviceStatus
		wantErr bool
	}{
		{
			name:    "valid",
			payload: `{"serial":"a1b2c3","smap":4,"statusmap":68}`,
			want:    DeviceStatus{Serial: "a1b2c3", Smap: 4, Status: 68},
		},
		{
			name:    "missing serial",
			payload: `{"smap":4,"statusmap":4}`,
			wantErr: true,
		},
		{
			name:    "missing smap",
			payload: `{"serial":"a1b2c3","statusmap":4}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			payload: `{{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStatusDatagram([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseStatusDatagram() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseStatusDatagram() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseStatusDatagram() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
