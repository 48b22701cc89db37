package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli"
	"gopkg.in/natefinch/lumberjack.v2"
	"periph.io/x/conn/v3/physic"

	"github.com/comalice/actuatorx"
	"github.com/comalice/actuatorx/internal/config"
	"github.com/comalice/actuatorx/internal/hardware"
	"github.com/comalice/actuatorx/internal/production"
	"github.com/comalice/actuatorx/realtime"
)

func runCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if v := c.String("driver"); v != "" {
		cfg.Hardware.Driver = v
	}
	if v := c.String("device"); v != "" {
		cfg.Hardware.Device = v
	}
	if v := c.String("record-dir"); v != "" {
		if cfg.Recorder.Dir, err = homedir.Expand(v); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(c.String("log-file"))
	if err != nil {
		return err
	}
	defer closeLog.Close()

	loopCfg, err := cfg.LoopConfig()
	if err != nil {
		return err
	}
	ch, err := newChannel(cfg.Hardware)
	if err != nil {
		return err
	}
	if c.Bool("trace-channel") {
		ch = hardware.NewLoggingChannel(ch, logger)
	}

	opts := []realtime.Option{
		realtime.WithLogger(logger),
		realtime.WithPublisher(production.NewLogPublisher(logger)),
	}
	if cfg.Recorder.Dir != "" {
		rec, err := newRecorder(cfg.Recorder)
		if err != nil {
			return err
		}
		opts = append(opts, realtime.WithRecorder(rec))
	}

	slot := realtime.NewCommandSlot()
	loop, err := realtime.NewLoop(loopCfg, ch, slot, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := loop.Start(ctx); err != nil {
		return err
	}
	logger.Printf("actuatord: %s driver on %q, tick %v", cfg.Hardware.Driver, cfg.Hardware.Device, loopCfg.TickRate)

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- readCommands(os.Stdin, slot, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Println("actuatord: signal received, shutting down")
	case err := <-inputDone:
		if err != nil {
			logger.Printf("actuatord: command input: %v", err)
		}
		if c.Bool("keep-stdin") {
			select {
			case <-ctx.Done():
			case <-loop.Done():
			}
		}
	case <-loop.Done():
		logger.Println("actuatord: loop stopped on its own")
	}

	err = loop.Stop()
	snap := loop.Snapshot()
	logger.Printf("actuatord: closed after %d ticks, faults %v", snap.Ticks, snap.FaultCounts)
	return err
}

// newLogger returns a logger on stderr, or on a rotating file when path is set.
func newLogger(path string) (*log.Logger, io.Closer, error) {
	if path == "" {
		return log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds), io.NopCloser(nil), nil
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("log dir: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	return log.New(lj, "", log.LstdFlags|log.Lmicroseconds), lj, nil
}

func newChannel(h config.HardwareConfig) (actuatorx.HardwareChannel, error) {
	switch h.Driver {
	case config.DriverSerial:
		return hardware.NewSerialChannel(h.Device, h.Baud, hardware.OpenSerialPort), nil
	case config.DriverServoblaster:
		return hardware.NewSerialChannel(h.Device, h.Baud, hardware.OpenDeviceFile), nil
	case config.DriverPCA9685:
		pc := hardware.PCA9685Config{
			Bus:       h.I2CBus,
			Address:   h.I2CAddress,
			Frequency: physic.Frequency(h.PWMHz) * physic.Hertz,
		}
		copy(pc.Outputs[:], h.Outputs)
		return hardware.NewPCA9685Channel(pc), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", h.Driver)
	}
}

func newRecorder(r config.RecorderConfig) (realtime.Recorder, error) {
	if r.Format == "json" {
		return production.NewJSONRecorder(r.Dir)
	}
	return production.NewYAMLRecorder(r.Dir)
}
