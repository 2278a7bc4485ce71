package dns

import (
	"net"
	"testing"

	"github.com/miekg/dns"

	"github.com/hutchd/hutch/pkg/network"
	"github.com/hutchd/hutch/pkg/storage"
)

// recordingWriter captures the response a handler writes
type recordingWriter struct {
	msg *dns.Msg
}

func (w *recordingWriter) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 53}
}

func (w *recordingWriter) RemoteAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 51234}
}

func (w *recordingWriter) WriteMsg(m *dns.Msg) error { w.msg = m; return nil }

func (w *recordingWriter) Write(b []byte) (int, error) { return len(b), nil }

func (w *recordingWriter) Close() error { return nil }

func (w *recordingWriter) TsigStatus() error { return nil }

func (w *recordingWriter) TsigTimersOnly(bool) {}

func (w *recordingWriter) Hijack() {}

func newTestServer(t *testing.T) (*Server, *network.Registry) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry, err := network.NewRegistry(store, "10.42.0.0/16")
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	// Upstream nobody answers on, so forwarded queries fail fast.
	server := NewServer(registry, &Config{
		ListenAddr: "127.0.0.1:0",
		Domain:     "hutch",
		Upstream:   []string{"127.0.0.1:1"},
	})
	return server, registry
}

func TestNewServerDefaults(t *testing.T) {
	server := NewServer(nil, nil)

	if server.listenAddr != DefaultListenAddr {
		t.Errorf("listenAddr = %q, want %q", server.listenAddr, DefaultListenAddr)
	}
	if server.resolver.domain != DefaultDomain {
		t.Errorf("domain = %q, want %q", server.resolver.domain, DefaultDomain)
	}
	if len(server.upstream) != 1 || server.upstream[0] != DefaultUpstream {
		t.Errorf("upstream = %v, want [%s]", server.upstream, DefaultUpstream)
	}
	if server.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	server, _ := newTestServer(t)
	if err := server.Stop(); err != nil {
		t.Errorf("Stop() on stopped server error = %v", err)
	}
}

func TestHandleQueryAnswersService(t *testing.T) {
	server, registry := newTestServer(t)

	nw, err := registry.Create("appnet", network.CreateOptions{Resolvable: true})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	addr, err := registry.Join(nw.ID, "inst-1", "db")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	query := new(dns.Msg)
	query.SetQuestion("db.hutch.", dns.TypeA)

	w := &recordingWriter{}
	server.handleQuery(w, query)

	if w.msg == nil {
		t.Fatal("handler wrote no response")
	}
	if !w.msg.Authoritative {
		t.Error("response not authoritative")
	}
	if len(w.msg.Answer) != 1 {
		t.Fatalf("got %d answers, want 1", len(w.msg.Answer))
	}
	a, ok := w.msg.Answer[0].(*dns.A)
	if !ok {
		t.Fatalf("answer is %T, want *dns.A", w.msg.Answer[0])
	}
	if !a.A.Equal(addr) {
		t.Errorf("answer A = %v, want %v", a.A, addr)
	}
}

func TestHandleQueryServfailWhenUpstreamDown(t *testing.T) {
	server, _ := newTestServer(t)

	// Unknown name, dead upstream: the reply must be SERVFAIL, not silence.
	query := new(dns.Msg)
	query.SetQuestion("example.invalid.", dns.TypeA)

	w := &recordingWriter{}
	server.handleQuery(w, query)

	if w.msg == nil {
		t.Fatal("handler wrote no response")
	}
	if w.msg.Rcode != dns.RcodeServerFailure {
		t.Errorf("Rcode = %d, want SERVFAIL", w.msg.Rcode)
	}
}
