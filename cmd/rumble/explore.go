package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/Moret84/rumble/internal/ble"
)

func explore(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.close()

	addrStr := c.String("address")
	if addrStr == "" {
		addrStr = s.cfg.Device.Address
	}
	if addrStr == "" {
		return errors.New("no device address: pass --address or set device.address")
	}
	addr, err := ble.ParseAddress(addrStr)
	if err != nil {
		return errors.Wrapf(err, "invalid address %q", addrStr)
	}

	ctx, stop := signalContext()
	defer stop()

	d := durationOr(c.Duration("duration"), s.cfg.Scan.Duration)
	fmt.Printf("Scanning for %s (up to %s)...\n", addr, d)
	scanCtx, cancel := context.WithTimeout(ctx, d)
	p, err := waitForPeripheral(scanCtx, s.central, addr)
	cancel()
	if err != nil {
		return chkErr(err)
	}
	fmt.Println(describeProperties(p.Properties()))

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.Device.ConnectTimeout)
	err = p.Connect(connectCtx)
	cancel()
	if err != nil {
		return errors.Wrap(err, "can't connect")
	}
	fmt.Printf("Connected to %s\n", addr)
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), s.cfg.Device.ConnectTimeout)
		defer cancel()
		if err := p.Disconnect(dctx); err != nil {
			fmt.Printf("Disconnect: %v\n", err)
			return
		}
		fmt.Printf("Disconnected from %s\n", addr)
	}()

	if err := dump(ctx, p); err != nil {
		return chkErr(err)
	}
	if sub := c.Duration("subscribe"); sub > 0 {
		return chkErr(listen(ctx, p, sub))
	}
	return nil
}

// dump discovers every characteristic and prints the value of the readable
// ones.
func dump(ctx context.Context, p ble.Peripheral) error {
	chars, err := p.DiscoverCharacteristics(ctx)
	if err != nil {
		return errors.Wrap(err, "can't discover characteristics")
	}
	fmt.Printf("%d characteristics\n", len(chars))
	for _, char := range chars {
		fmt.Println(describeCharacteristic(char))
		if !char.Properties.Has(ble.PropRead) {
			continue
		}
		v, err := p.Read(ctx, char)
		if err != nil {
			fmt.Printf("    read failed: %v\n", err)
			continue
		}
		fmt.Printf("    value: %s\n", describeValue(v))
	}
	return nil
}

func notifiable(c ble.Characteristic) bool {
	return c.Properties.Has(ble.PropNotify) || c.Properties.Has(ble.PropIndicate)
}

// listen subscribes to every notifiable characteristic for d.
func listen(ctx context.Context, p ble.Peripheral, d time.Duration) error {
	p.OnNotification(func(n ble.ValueNotification) {
		fmt.Printf("notification 0x%04X: %s\n", n.Handle, describeValue(n.Value))
	})

	var subscribed []ble.Characteristic
	for _, char := range p.Characteristics() {
		if !notifiable(char) {
			continue
		}
		if err := p.Subscribe(ctx, char); err != nil {
			fmt.Printf("subscribe %s failed: %v\n", char.UUID, err)
			continue
		}
		subscribed = append(subscribed, char)
	}
	if len(subscribed) == 0 {
		fmt.Println("Nothing to subscribe to")
		return nil
	}
	fmt.Printf("Listening to %d characteristics for %s...\n", len(subscribed), d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	var err error
	select {
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
		ctx = context.Background()
	}
	for _, char := range subscribed {
		if uerr := p.Unsubscribe(ctx, char); uerr != nil {
			fmt.Printf("unsubscribe %s failed: %v\n", char.UUID, uerr)
		}
	}
	return err
}
