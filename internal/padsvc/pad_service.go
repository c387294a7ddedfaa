// Package padsvc owns the lifecycle of attached touchpads: port discovery
// through pluggable backends, detection, protocol bring-up, the decode
// loop, and reconnection after failures.
package padsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pospeselr/bydpad/byd"
	"github.com/pospeselr/bydpad/internal/configsvc"
	"github.com/pospeselr/bydpad/pkg/bus"
)

// Address identifies a port across backends.
type Address struct {
	Backend string
	Port    string
}

func (a Address) String() string {
	return a.Backend + ":" + a.Port
}

func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// ParseAddress parses a "backend:port" pair.
func ParseAddress(s string) (Address, error) {
	backend, port, ok := strings.Cut(s, ":")
	if !ok || backend == "" || port == "" {
		return Address{}, fmt.Errorf("invalid port address %q, expected backend:port", s)
	}
	return Address{Backend: backend, Port: port}, nil
}

type PortEventType uint8

const (
	PortAttached PortEventType = iota
	PortDetached
)

// PortInfo identifies a serial port within its backend.
type PortInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

type PortEvent struct {
	Type PortEventType
	Info PortInfo
}

// PortStatus is the service-level view of a discoverable port.
type PortStatus struct {
	Address Address `json:"address"`
	Name    string  `json:"name"`
	Path    string  `json:"path"`
}

type (
	PortBus       = bus.Bus[Address, PortEvent]
	PortPublisher = bus.Publisher[string, PortEvent]
)

// Port is an open serial link: command/response exchanges for bring-up and
// a byte stream of report data. Read returns os.ErrDeadlineExceeded when no
// report bytes arrived for a while, which the decode loop uses to realign
// framing and to notice cancellation.
type Port interface {
	byd.Port
	io.ReadCloser
}

// Backend discovers ports and opens them. IDs are backend-local; the
// service qualifies them with the backend name.
type Backend interface {
	Start(ctx context.Context, pub PortPublisher) error
	Ready() <-chan struct{}
	OpenPort(id string) (Port, error)
	ListPorts() ([]PortInfo, error)
}

// Sink is where decoded state snapshots go; one is opened per attached pad.
type Sink interface {
	byd.Sink
	io.Closer
}

// SinkOpener creates the sink for a successfully detected pad.
type SinkOpener interface {
	OpenSink(model byd.Model) (Sink, error)
}

type serviceOptions struct {
	backends       map[string]Backend
	backoffTimeout time.Duration
	sessionOpts    []byd.SessionOption
}

type Option func(*serviceOptions)

// WithBackend registers a port discovery backend under a name.
func WithBackend(name string, backend Backend) Option {
	return func(o *serviceOptions) {
		o.backends[name] = backend
	}
}

// WithBackoffTimeout sets the delay before re-running detection after a
// transport failure.
func WithBackoffTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.backoffTimeout = d
	}
}

// WithSessionOptions forwards options to every created session.
func WithSessionOptions(opts ...byd.SessionOption) Option {
	return func(o *serviceOptions) {
		o.sessionOpts = append(o.sessionOpts, opts...)
	}
}

type Service struct {
	log     *zap.Logger
	options serviceOptions

	config       *configsvc.Service
	settingsPath string

	sinks SinkOpener

	portBus  *PortBus
	attached *xsync.MapOf[Address, context.CancelFunc]

	settings    atomic.Value // byd.Settings
	settingsGen atomic.Int64

	ready chan struct{}
}

func New(log *zap.Logger, config *configsvc.Service, settingsPath string, sinks SinkOpener, opts ...Option) *Service {
	options := serviceOptions{
		backends:       make(map[string]Backend),
		backoffTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	s := &Service{
		log:          log,
		options:      options,
		config:       config,
		settingsPath: settingsPath,
		sinks:        sinks,
		portBus:      bus.NewBus[Address, PortEvent](log.Named("bus")),
		attached:     xsync.NewMapOf[Address, context.CancelFunc](),
		ready:        make(chan struct{}),
	}
	s.settings.Store(byd.DefaultSettings())
	return s
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) Start(ctx context.Context) error {
	if len(s.options.backends) == 0 {
		return fmt.Errorf("no backends registered")
	}
	if err := s.portBus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start port bus: %w", err)
	}
	events := s.portBus.Subscribe(ctx)

	select {
	case <-ctx.Done():
		return nil
	case <-s.config.Ready():
	}

	settings, err := configsvc.Register(s.config, s.settingsPath, byd.DefaultSettings(), s.onSettingsChange)
	if err != nil {
		return fmt.Errorf("failed to register pad settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("pad settings %s: %w", s.settingsPath, err)
	}
	s.settings.Store(settings)

	group, groupCtx := errgroup.WithContext(ctx)
	for name, backend := range s.options.backends {
		name, backend := name, backend
		group.Go(func() error {
			return backend.Start(groupCtx, func(ctx context.Context, id string, event PortEvent) {
				s.portBus.Publish(ctx, Address{Backend: name, Port: id}, event)
			})
		})
	}
	group.Go(func() error {
		for _, backend := range s.options.backends {
			select {
			case <-groupCtx.Done():
				return nil
			case <-backend.Ready():
			}
		}
		close(s.ready)
		s.log.Info("Pad service started")
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case msg := <-events:
				s.onPortEvent(groupCtx, msg.Key, msg.Message)
			}
		}
	})
	return group.Wait()
}

func (s *Service) onPortEvent(ctx context.Context, addr Address, event PortEvent) {
	switch event.Type {
	case PortAttached:
		s.log.Info("Port attached", zap.String("port", addr.String()))
		portCtx, cancel := context.WithCancel(ctx)
		if prev, loaded := s.attached.LoadAndStore(addr, cancel); loaded {
			prev()
		}
		go s.runPort(portCtx, addr)
	case PortDetached:
		s.log.Info("Port detached", zap.String("port", addr.String()))
		if cancel, loaded := s.attached.LoadAndDelete(addr); loaded {
			cancel()
		}
	}
}

// errReinit asks the port loop to restart bring-up with fresh settings.
var errReinit = errors.New("settings changed")

// runPort drives one port until it detaches. Transport failures restart the
// full detect+init sequence after a backoff; a device that identifies as
// something else ends the loop so other drivers can have the port.
func (s *Service) runPort(ctx context.Context, addr Address) {
	log := s.log.With(zap.String("port", addr.String()))
	for {
		err := s.servePort(ctx, log, addr)
		switch {
		case err == nil:
			return
		case errors.Is(err, byd.ErrUnknownDevice):
			log.Debug("Not a supported pad, leaving port alone", zap.Error(err))
			return
		case errors.Is(err, errReinit):
			log.Info("Reinitializing pad with new settings")
		default:
			log.Warn("Pad failed, will retry detection", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.options.backoffTimeout):
			}
		}
	}
}

func (s *Service) servePort(ctx context.Context, log *zap.Logger, addr Address) error {
	backend, ok := s.options.backends[addr.Backend]
	if !ok {
		return fmt.Errorf("unknown backend %q", addr.Backend)
	}
	port, err := backend.OpenPort(addr.Port)
	if err != nil {
		return fmt.Errorf("failed to open port: %w", err)
	}
	defer port.Close()

	model, err := byd.Detect(log, port)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	log.Info("Detected pad", zap.String("model", model.Name))

	sink, err := s.sinks.OpenSink(model)
	if err != nil {
		return fmt.Errorf("failed to open sink: %w", err)
	}
	defer sink.Close()

	settings := s.settings.Load().(byd.Settings)
	gen := s.settingsGen.Load()
	session, err := byd.Init(log, port, model, settings, sink, s.options.sessionOpts...)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	// the liveness timer must be fully stopped before the sink and port go
	// away underneath it
	defer session.Close()
	log.Info("Pad initialized", zap.String("model", model.Name))

	var framer byd.Framer
	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.settingsGen.Load() != gen {
			return errReinit
		}
		n, err := port.Read(buf)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// idle; a partial frame this old means lost sync
			framer.Reset()
			continue
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		for _, b := range buf[:n] {
			if packet, ok := framer.Push(b); ok {
				session.ProcessPacket(packet)
			}
		}
	}
}

func (s *Service) onSettingsChange(settings byd.Settings, err error) {
	if err != nil {
		s.log.Error("Failed to reload pad settings", zap.Error(err))
		return
	}
	if err := settings.Validate(); err != nil {
		s.log.Error("Ignoring invalid pad settings", zap.Error(err))
		return
	}
	s.settings.Store(settings)
	s.settingsGen.Inc()
	s.log.Info("Pad settings changed")
}

// ListPorts reports the ports all backends currently know about.
func (s *Service) ListPorts() ([]PortStatus, error) {
	names := make([]string, 0, len(s.options.backends))
	for name := range s.options.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	var ports []PortStatus
	for _, name := range names {
		infos, err := s.options.backends[name].ListPorts()
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		for _, info := range infos {
			ports = append(ports, PortStatus{
				Address: Address{Backend: name, Port: info.ID},
				Name:    info.Name,
				Path:    info.Path,
			})
		}
	}
	return ports, nil
}

// ResolveAddress parses a "backend:port" pair; a bare port name is accepted
// when exactly one backend is registered.
func (s *Service) ResolveAddress(arg string) (Address, error) {
	if !strings.Contains(arg, ":") && len(s.options.backends) == 1 {
		for name := range s.options.backends {
			return Address{Backend: name, Port: arg}, nil
		}
	}
	return ParseAddress(arg)
}

// Probe opens a port, runs detection once and reports the matched model.
func (s *Service) Probe(addr Address) (byd.Model, error) {
	backend, ok := s.options.backends[addr.Backend]
	if !ok {
		return byd.Model{}, fmt.Errorf("unknown backend %q", addr.Backend)
	}
	port, err := backend.OpenPort(addr.Port)
	if err != nil {
		return byd.Model{}, fmt.Errorf("failed to open port: %w", err)
	}
	defer port.Close()
	return byd.Detect(s.log.Named("probe"), port)
}
