package main

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/comalice/actuatorx"
	"github.com/comalice/actuatorx/internal/config"
	"github.com/comalice/actuatorx/internal/production"
)

func statesCommand(c *cli.Context) error {
	m, err := actuatorx.NewLifecycle(actuatorx.LifecycleHooks{})
	if err != nil {
		return err
	}
	fmt.Print(production.ExportDOT(m))
	return nil
}

func checkCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	lc, err := cfg.LoopConfig()
	if err != nil {
		return err
	}
	env, err := actuatorx.NewSafetyEnvelope(lc.Limits, lc.TickRate)
	if err != nil {
		return err
	}
	if _, err := actuatorx.NewAllocator(lc.Geometry); err != nil {
		return err
	}
	enc, err := actuatorx.NewPwmEncoder(lc.Limits, lc.Polarity)
	if err != nil {
		return err
	}

	fmt.Printf("driver:       %s %s\n", cfg.Hardware.Driver, cfg.Hardware.Device)
	fmt.Printf("tick:         %v (settle %v)\n", lc.TickRate, lc.SettleDelay)
	fmt.Printf("max speed:    %g rad/s\n", lc.Limits.MaxSpeed)
	fmt.Printf("max step:     %g rad/s per tick\n", env.MaxDelta())
	fmt.Printf("pwm:          %d..%d µs, idle %d, %s\n", lc.Limits.MinPWM, lc.Limits.MaxPWM, lc.Limits.IdlePWM, enc.Polarity())
	return nil
}
