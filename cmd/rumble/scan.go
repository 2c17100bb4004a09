package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/Moret84/rumble/internal/ble"
)

func scan(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.close()

	if c.Bool("passive") {
		s.central.SetActive(false)
	}
	if c.Bool("all") {
		s.central.SetFilterDuplicates(false)
	}
	d := durationOr(c.Duration("duration"), s.cfg.Scan.Duration)

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	s.central.OnEvent(func(ev ble.CentralEvent) {
		p, ok := s.central.Peripheral(ev.Address)
		if !ok {
			return
		}
		fmt.Fprintln(os.Stdout, describeEvent(ev, p.Properties()))
	})

	fmt.Printf("Scanning for %s...\n", d)
	if err := s.central.StartScan(); err != nil {
		return errors.Wrap(err, "can't start scan")
	}
	<-ctx.Done()
	if err := s.central.StopScan(); err != nil {
		return errors.Wrap(err, "can't stop scan")
	}
	fmt.Printf("%d peripherals seen\n", len(s.central.Peripherals()))
	return chkErr(ctx.Err())
}

// waitForPeripheral scans until addr has been seen.
func waitForPeripheral(ctx context.Context, central ble.Central, addr ble.Address) (ble.Peripheral, error) {
	if p, ok := central.Peripheral(addr); ok {
		return p, nil
	}
	seen := make(chan struct{}, 1)
	central.OnEvent(func(ev ble.CentralEvent) {
		if ev.Address != addr || ev.Kind != ble.DeviceDiscovered {
			return
		}
		select {
		case seen <- struct{}{}:
		default:
		}
	})
	if err := central.StartScan(); err != nil {
		return nil, errors.Wrap(err, "can't start scan")
	}
	defer central.StopScan()

	select {
	case <-seen:
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "%s not found", addr)
	}
	p, _ := central.Peripheral(addr)
	return p, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
