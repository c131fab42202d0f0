package alert

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
)

// CEF extension fields carry at most this many rule/count pairs (the CEF
// dictionary defines cn1..cn3); further matches are summarized in msg.
const cefMaxPairs = 3

// CEFSinkConfig configures the security-event datagram sink.
type CEFSinkConfig struct {
	// Addr is the UDP collector address, e.g. "siem.example.net:514".
	Addr string
	// Severity on the 0-10 CEF scale. Default: 7.
	Severity int
	// DeviceVendor/DeviceProduct/DeviceVersion fill the CEF header.
	DeviceVendor  string
	DeviceProduct string
	DeviceVersion string
}

func (c *CEFSinkConfig) defaults() {
	if c.Severity <= 0 {
		c.Severity = 7
	}
	if c.DeviceVendor == "" {
		c.DeviceVendor = "hazyhaar"
	}
	if c.DeviceProduct == "" {
		c.DeviceProduct = "fuite"
	}
	if c.DeviceVersion == "" {
		c.DeviceVersion = "1.0"
	}
}

// CEFSink emits one fixed-field CEF event per incident over UDP.
type CEFSink struct {
	config CEFSinkConfig

	mu   sync.Mutex
	conn net.Conn
}

// NewCEFSink creates a CEFSink. The UDP socket is opened lazily on first
// delivery so a down collector does not fail startup.
func NewCEFSink(cfg CEFSinkConfig) (*CEFSink, error) {
	cfg.defaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("alert: cef: empty collector address")
	}
	return &CEFSink{config: cfg}, nil
}

func (s *CEFSink) Deliver(_ context.Context, inc *Incident) error {
	conn, err := s.dial()
	if err != nil {
		return fmt.Errorf("alert: cef: dial %s: %w", s.config.Addr, err)
	}
	if _, err := conn.Write([]byte(s.format(inc))); err != nil {
		s.reset()
		return fmt.Errorf("alert: cef: send: %w", err)
	}
	return nil
}

func (s *CEFSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *CEFSink) dial() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := net.Dial("udp", s.config.Addr)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return conn, nil
}

func (s *CEFSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// format renders the event:
//
//	CEF:0|vendor|product|version|paste-leak|Sensitive data in paste|sev|ext
//
// The extension carries the source identifier and up to cefMaxPairs
// rule/count pairs in cs/cn fields.
func (s *CEFSink) format(inc *Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CEF:0|%s|%s|%s|paste-leak|Sensitive data in paste|%d|",
		cefHeaderEscape(s.config.DeviceVendor),
		cefHeaderEscape(s.config.DeviceProduct),
		cefHeaderEscape(s.config.DeviceVersion),
		s.config.Severity)

	fmt.Fprintf(&b, "externalId=%s request=%s msg=%s",
		cefExtEscape(inc.Site+":"+inc.PasteID),
		cefExtEscape(inc.URL),
		cefExtEscape(fmt.Sprintf("%d rule(s) fired", len(inc.Matches))))

	for i, m := range inc.Matches {
		if i >= cefMaxPairs {
			break
		}
		fmt.Fprintf(&b, " cs%dLabel=%s cs%d=%s cn%dLabel=occurrences cn%d=%d",
			i+1, cefExtEscape(m.Rule.Description),
			i+1, cefExtEscape(m.Sample),
			i+1, i+1, m.Count)
	}
	return b.String()
}

var cefHeaderEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

var cefExtEscaper = strings.NewReplacer(`\`, `\\`, `=`, `\=`, "\n", `\n`, "\r", `\n`)

func cefHeaderEscape(s string) string { return cefHeaderEscaper.Replace(s) }

func cefExtEscape(s string) string { return cefExtEscaper.Replace(s) }
