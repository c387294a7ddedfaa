// Package serio exposes serio_raw character devices as pad ports. The
// kernel's serio_raw driver hands the raw PS/2 byte stream of an AUX port
// to userspace at /dev/serio_rawN.
package serio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jochenvg/go-udev"
	"go.uber.org/zap"

	"github.com/pospeselr/bydpad/byd"
	"github.com/pospeselr/bydpad/internal/padsvc"
)

const (
	ackByte    = 0xfa
	resendByte = 0xfe
)

var defaultOptions = backendOptions{
	pollInterval: time.Second,
	cmdTimeout:   500 * time.Millisecond,
	readTimeout:  500 * time.Millisecond,
}

type backendOptions struct {
	pollInterval time.Duration
	cmdTimeout   time.Duration
	readTimeout  time.Duration
}

type Option func(*backendOptions)

func WithPollInterval(d time.Duration) Option {
	return func(o *backendOptions) {
		o.pollInterval = d
	}
}

func WithCommandTimeout(d time.Duration) Option {
	return func(o *backendOptions) {
		o.cmdTimeout = d
	}
}

type Backend struct {
	log     *zap.Logger
	options backendOptions
	udev    udev.Udev
	ready   chan struct{}
}

func NewBackend(log *zap.Logger, opts ...Option) *Backend {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Backend{
		log:     log,
		options: options,
		ready:   make(chan struct{}),
	}
}

func (b *Backend) Ready() <-chan struct{} {
	return b.ready
}

// Start polls udev for serio_raw nodes and publishes attach/detach events.
// Polling keeps this robust against the daemon starting before or after the
// serio_raw module is loaded.
func (b *Backend) Start(ctx context.Context, pub padsvc.PortPublisher) error {
	seen := make(map[string]padsvc.PortInfo)
	scan := func() error {
		current, err := b.scan()
		if err != nil {
			return err
		}
		for id, info := range current {
			if _, ok := seen[id]; !ok {
				seen[id] = info
				pub(ctx, id, padsvc.PortEvent{Type: padsvc.PortAttached, Info: info})
			}
		}
		for id, info := range seen {
			if _, ok := current[id]; !ok {
				delete(seen, id)
				pub(ctx, id, padsvc.PortEvent{Type: padsvc.PortDetached, Info: info})
			}
		}
		return nil
	}
	if err := scan(); err != nil {
		return fmt.Errorf("failed to scan serio ports: %w", err)
	}
	close(b.ready)
	ticker := time.NewTicker(b.options.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := scan(); err != nil {
				b.log.Error("Failed to scan serio ports", zap.Error(err))
			}
		}
	}
}

func (b *Backend) scan() (map[string]padsvc.PortInfo, error) {
	enum := b.udev.NewEnumerate()
	if err := enum.AddMatchSubsystem("misc"); err != nil {
		return nil, err
	}
	devices, err := enum.Devices()
	if err != nil {
		return nil, err
	}
	ports := make(map[string]padsvc.PortInfo)
	for _, dev := range devices {
		name := dev.Sysname()
		if !strings.HasPrefix(name, "serio_raw") {
			continue
		}
		node := dev.Devnode()
		if node == "" {
			node = filepath.Join("/dev", name)
		}
		ports[name] = padsvc.PortInfo{
			ID:   name,
			Name: name,
			Path: node,
		}
	}
	return ports, nil
}

func (b *Backend) ListPorts() ([]padsvc.PortInfo, error) {
	current, err := b.scan()
	if err != nil {
		return nil, err
	}
	ports := make([]padsvc.PortInfo, 0, len(current))
	for _, info := range current {
		ports = append(ports, info)
	}
	sort.Slice(ports, func(i, j int) bool {
		return ports[i].ID < ports[j].ID
	})
	return ports, nil
}

func (b *Backend) OpenPort(id string) (padsvc.Port, error) {
	if !strings.HasPrefix(id, "serio_raw") || strings.ContainsRune(id, '/') {
		return nil, fmt.Errorf("invalid serio port id %q", id)
	}
	file, err := os.OpenFile(filepath.Join("/dev", id), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &rawPort{file: file, options: b.options}, nil
}

// rawPort talks PS/2 over a serio_raw node. Every byte the host sends is
// acknowledged by the device with 0xFA; 0xFE asks for a single resend.
// Response payloads follow the acknowledgements unframed.
type rawPort struct {
	file    *os.File
	options backendOptions

	mu sync.Mutex
}

func (p *rawPort) Command(cmd byd.Command, arg []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	send := cmd.SendBytes()
	if len(arg) < send {
		return nil, fmt.Errorf("command %#04x needs %d argument bytes, got %d", uint16(cmd), send, len(arg))
	}
	if err := p.sendByte(cmd.Byte()); err != nil {
		return nil, fmt.Errorf("command %#04x: %w", uint16(cmd), err)
	}
	for i := 0; i < send; i++ {
		if err := p.sendByte(arg[i]); err != nil {
			return nil, fmt.Errorf("command %#04x arg %d: %w", uint16(cmd), i, err)
		}
	}
	reply := make([]byte, cmd.ReceiveBytes())
	for i := range reply {
		b, err := p.readByte()
		if err != nil {
			return nil, fmt.Errorf("command %#04x reply %d: %w", uint16(cmd), i, err)
		}
		reply[i] = b
	}
	return reply, nil
}

func (p *rawPort) sendByte(b byte) error {
	for attempt := 0; attempt < 2; attempt++ {
		if _, err := p.file.Write([]byte{b}); err != nil {
			return err
		}
		reply, err := p.readByte()
		if err != nil {
			return err
		}
		switch reply {
		case ackByte:
			return nil
		case resendByte:
			continue
		default:
			return fmt.Errorf("unexpected reply %#02x to byte %#02x", reply, b)
		}
	}
	return fmt.Errorf("byte %#02x not acknowledged", b)
}

func (p *rawPort) readByte() (byte, error) {
	if err := p.file.SetReadDeadline(time.Now().Add(p.options.cmdTimeout)); err != nil {
		return 0, err
	}
	var buf [1]byte
	if _, err := p.file.Read(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Read fills buf with report stream bytes. It returns os.ErrDeadlineExceeded
// when the pad stayed silent past the read timeout.
func (p *rawPort) Read(buf []byte) (int, error) {
	if err := p.file.SetReadDeadline(time.Now().Add(p.options.readTimeout)); err != nil {
		return 0, err
	}
	return p.file.Read(buf)
}

func (p *rawPort) Close() error {
	return p.file.Close()
}
