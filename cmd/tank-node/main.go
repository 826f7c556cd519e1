// Command tank-node samples a tank rangefinder and transmits level
// readings to a gateway when they change.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/sweeney/tank-sensor/internal/config"
	"github.com/sweeney/tank-sensor/internal/gpio"
	"github.com/sweeney/tank-sensor/internal/logic"
	"github.com/sweeney/tank-sensor/internal/protocol"
	"github.com/sweeney/tank-sensor/internal/radio"
	"github.com/sweeney/tank-sensor/internal/sensor"
	"github.com/sweeney/tank-sensor/internal/watchdog"
)

func main() {
	configPath := flag.String("config", "", "Config file (hcl, yaml or json)")
	once := flag.Bool("once", false, "Print one filtered reading and exit")
	flag.Parse()

	cfg, err := config.LoadNode(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, *once, logger); err != nil {
		logger.Fatalf("fatal: %s", errors.ErrorStack(err))
	}
}

func run(cfg *config.NodeConfig, once bool, log *zap.SugaredLogger) error {
	ranger, err := gpio.NewRealRanger(cfg.Sensor.PinTrigger, cfg.Sensor.PinEcho, cfg.Sensor.EchoTimeout)
	if err != nil {
		return errors.Annotate(err, "init rangefinder")
	}
	defer ranger.Close()

	smp := sensor.NewSampler(ranger, sensor.Config{
		Cycles: cfg.Sensor.Samples,
		Settle: cfg.Sensor.Settle,
		MinMM:  cfg.Sensor.MinMM,
		MaxMM:  cfg.Sensor.MaxMM,
		Alpha:  cfg.Sensor.Alpha,
	}, log)

	if once {
		r := smp.FilteredSample()
		if r.Valid {
			fmt.Printf("distance: %d mm\n", r.Value)
		} else {
			fmt.Printf("distance: invalid (%s)\n", r.Err)
		}
		return nil
	}

	id, err := config.ResolveID(cfg.ID)
	if err != nil {
		return err
	}
	form, err := protocol.ParseForm(cfg.Form)
	if err != nil {
		return err
	}

	drv, err := radio.NewUDPDriver(id, cfg.Radio.Listen, cfg.Radio.Peers, log)
	if err != nil {
		return errors.Annotate(err, "init radio")
	}
	defer drv.Close()
	go func() {
		if err := drv.Run(); err != nil {
			log.Errorf("radio: %v", err)
		}
	}()

	tx := radio.NewTransmitter(drv, id, config.DeviceID(cfg.Radio.Upstream), radio.TxConfig{
		Retries:    cfg.Radio.Retries,
		RetryDelay: cfg.Radio.RetryDelay,
	}, log)

	n := newNode(id, smp, supplyFor(cfg.Supply), logic.Config{
		Deadband:       cfg.Detector.Deadband,
		Hysteresis:     cfg.Detector.Hysteresis,
		SupplyDeadband: cfg.Detector.SupplyDeadband,
		Heartbeat:      cfg.Detector.Heartbeat,
	}, tx, nodeOptions{
		Form:         form,
		Health:       cfg.Health,
		Aggregate:    cfg.Aggregate,
		LowBatteryMV: uint16(cfg.Supply.LowBatteryMV),
		ThermalZone:  cfg.ThermalZone,
		MemInfo:      sensor.MemInfo,
	}, time.Now(), log)

	// A sampling round must finish well inside the watchdog window.
	wd := watchdog.New(cfg.Interval*3+cfg.Sensor.Settle*time.Duration(cfg.Sensor.Samples), log)
	beacon := wd.Register("sampler")
	stopWD := make(chan struct{})
	defer close(stopWD)
	go wd.Run(stopWD)

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warnf("sdnotify: %v", err)
	}
	log.Infof("started: id=%s upstream=%s interval=%v form=%s", id, cfg.Radio.Upstream, cfg.Interval, form)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(n, time.Now, ticker.C, sigCh, beacon.Kick)
}

// runLoop samples once immediately and then on every tick until a signal
// arrives.
func runLoop(n *node, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, kick func()) error {
	n.step(now())
	kick()

	for {
		select {
		case s := <-sig:
			st := n.tx.Stats()
			c := n.detector.Counts()
			n.log.Infof("received %v, shutting down: sent=%d failed=%d first=%d heartbeat=%d delta=%d overflow=%d sensor_errors=%d",
				s, st.Sent, st.Failed, c.First, c.Heartbeat, c.Delta, n.overflows, n.sampler.Errors())
			return nil

		case <-tick:
			n.step(now())
			kick()
		}
	}
}

func supplyFor(c config.SupplyConfig) sensor.SupplyReader {
	if c.Path != "" {
		return sensor.FileSupply{Path: c.Path, Scale: c.Scale}
	}
	return sensor.FixedSupply(c.FixedMV)
}
