package daemon

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/pospeselr/bydpad/internal/configsvc"
	"github.com/pospeselr/bydpad/internal/padsvc"
	"github.com/pospeselr/bydpad/internal/padsvc/serio"
	"github.com/pospeselr/bydpad/internal/padsvc/uinput"
)

type Daemon struct {
	config Config

	configSvc *configsvc.Service
	padSvc    *padsvc.Service
}

func New(config Config) (*Daemon, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	configSvc := configsvc.New(logger.Named("config"))
	backend := serio.NewBackend(logger.Named("pad.serio"))
	sinks := uinput.NewOpener(logger.Named("pad.uinput"), uinput.WithDevicePath(config.UinputPath))
	padSvc := padsvc.New(logger.Named("pad"), configSvc, config.SettingsConfig, sinks,
		padsvc.WithBackend("serio", backend))

	return &Daemon{
		config:    config,
		configSvc: configSvc,
		padSvc:    padSvc,
	}, nil
}

func (d *Daemon) Close() error {
	return nil
}

// Run starts the daemon and blocks until the context is cancelled.
// Startup fails if the pad settings file is invalid; if it becomes invalid
// later, attached pads keep running with the last valid settings.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return d.padSvc.Start(groupCtx)
	})

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("daemon failed: %w", err)
	}
	return nil
}

func (d *Daemon) Pads() *padsvc.Service {
	return d.padSvc
}
