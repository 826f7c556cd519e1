// Command tank-gateway receives tank readings over the radio and forwards
// them to an uplink, or relays them toward another gateway.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"go.uber.org/zap"

	"github.com/sweeney/tank-sensor/internal/config"
	"github.com/sweeney/tank-sensor/internal/gateway"
	"github.com/sweeney/tank-sensor/internal/mqtt"
	"github.com/sweeney/tank-sensor/internal/protocol"
	"github.com/sweeney/tank-sensor/internal/radio"
	"github.com/sweeney/tank-sensor/internal/registry"
	"github.com/sweeney/tank-sensor/internal/status"
	"github.com/sweeney/tank-sensor/internal/uplink"
	"github.com/sweeney/tank-sensor/internal/watchdog"
	"github.com/sweeney/tank-sensor/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Config file (hcl, yaml or json)")
	flag.Parse()

	cfg, err := config.LoadGateway(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("fatal: %s", errors.ErrorStack(err))
	}
}

func run(cfg *config.GatewayConfig, log *zap.SugaredLogger) error {
	id, err := config.ResolveID(cfg.ID)
	if err != nil {
		return err
	}

	drv, err := radio.NewUDPDriver(id, cfg.Radio.Listen, cfg.Radio.Peers, log)
	if err != nil {
		return errors.Annotate(err, "init radio")
	}
	defer drv.Close()

	stats := &gateway.Stats{}
	q := gateway.NewDeliveryQueue(gateway.QueueConfig{
		Capacity:       cfg.Queue.Capacity,
		UrgentCapacity: cfg.Queue.Urgent,
		Fallback:       cfg.Queue.Fallback,
	}, stats)
	recv := gateway.NewReceiver(q, cfg.MaxFrame)
	drv.OnReceive(recv.Handle)

	reg := registry.New(cfg.Registry.OfflineTimeout, cfg.Registry.MaxNodes, log)

	var (
		sink   gateway.Sink
		pub    mqtt.Publisher
		upName string
	)
	switch cfg.Mode {
	case config.ModePrimary:
		up, mc, err := buildUplink(cfg, log)
		if err != nil {
			return err
		}
		defer up.Close()
		if mc != nil {
			pub = mc
		}
		upName = up.Name()
		sink = gateway.NewUplinkSink(up, id, cfg.Forward.Timeout)
	case config.ModeRepeater:
		sink = newRelaySink(drv, id, cfg, log)
	}

	fcfg := gateway.DefaultForwarderConfig()
	fcfg.MaxAttempts = cfg.Forward.MaxAttempts
	fcfg.BaseDelay = cfg.Forward.BaseDelay
	fwd := gateway.NewForwarder(q, sink, fcfg, log)

	wd := watchdog.New(cfg.Watchdog, log)
	fwd.Progress = wd.Register("forwarder").Kick
	mainBeacon := wd.Register("main")

	tracker := status.NewTracker(time.Now(), status.Config{
		Gateway:          id.String(),
		Mode:             cfg.Mode,
		Uplink:           upName,
		Broker:           cfg.MQTT.Broker,
		HTTPPort:         cfg.StatusAddr,
		OfflineTimeoutMs: cfg.Registry.OfflineTimeout.Milliseconds(),
		StatusIntervalMs: cfg.StatusInterval.Milliseconds(),
		MaxAttempts:      cfg.Forward.MaxAttempts,
	})
	d := &supervisor{
		q:         q,
		reg:       reg,
		sightings: recv.Sightings(),
		sink:      sink,
		tracker:   tracker,
		pub:       pub,
		log:       log,
		kick:      mainBeacon.Kick,
	}
	d.refresh()

	a := alive.NewAlive()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Add(3)
	go func() {
		defer a.Done()
		if err := drv.Run(); err != nil {
			log.Errorf("radio: %v", err)
			a.Stop()
		}
	}()
	go func() {
		defer a.Done()
		_ = fwd.Run(ctx)
	}()
	go func() {
		defer a.Done()
		wd.Run(a.StopChan())
	}()
	go func() {
		<-a.StopChan()
		cancel()
	}()

	if cfg.StatusAddr != "" {
		srv := web.New(cfg.StatusAddr, tracker)
		srv.Refresh = d.refresh
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", cfg.StatusAddr)
	}

	if _, err := sdNotify(daemon.SdNotifyReady); err != nil {
		log.Warnf("sdnotify: %v", err)
	}
	log.Infof("started: id=%s mode=%s uplink=%s listen=%s", id, cfg.Mode, upName, cfg.Radio.Listen)

	sweep := time.NewTicker(cfg.Registry.Sweep)
	defer sweep.Stop()
	statusTick := time.NewTicker(cfg.StatusInterval)
	defer statusTick.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stopped := make(chan os.Signal, 1)
	go func() {
		select {
		case s := <-sigCh:
			stopped <- s
		case <-a.StopChan():
			stopped <- syscall.SIGTERM
		}
	}()

	err = runLoop(d, time.Now, sweep.C, statusTick.C, stopped)
	_, _ = sdNotify(daemon.SdNotifyStopping)
	a.Stop()
	drv.Close()
	a.Wait()
	log.Infof("stopped: queued=%d fallback=%d", q.Len(), q.FallbackLen())
	return err
}

func sdNotify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// buildUplink assembles the configured uplinks. The MQTT client is also
// returned on its own so it can carry lifecycle events.
// newRelaySink sends each relayed frame once per forwarder attempt. Retry
// and backoff belong to the forwarder, so radio.retries does not apply.
func newRelaySink(drv radio.Driver, self protocol.DeviceID, cfg *config.GatewayConfig, log *zap.SugaredLogger) *gateway.Relay {
	tx := radio.NewTransmitter(drv, self, config.DeviceID(cfg.Radio.Upstream), radio.TxConfig{Retries: 1}, log)
	return gateway.NewRelay(tx, self, uint8(cfg.MaxHops), log)
}

func buildUplink(cfg *config.GatewayConfig, log *zap.SugaredLogger) (uplink.Uplink, *mqtt.Client, error) {
	var (
		members []uplink.Uplink
		mc      *mqtt.Client
	)
	if cfg.MQTT.Broker != "" {
		c, err := mqtt.NewClient(mqtt.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			TopicBase:      strings.TrimSuffix(cfg.MQTT.Topic, "/"),
			TopicStatus:    cfg.MQTT.StatusTopic,
			QoS:            byte(cfg.MQTT.QoS),
			PublishTimeout: cfg.MQTT.Timeout,
		}, log)
		if err != nil {
			return nil, nil, errors.Annotate(err, "init mqtt")
		}
		mc = c
		members = append(members, c)
	}
	if cfg.HTTP.URL != "" {
		h, err := uplink.NewHTTP(uplink.HTTPConfig{
			URL:     cfg.HTTP.URL,
			Token:   cfg.HTTP.Token,
			Timeout: cfg.HTTP.Timeout,
			Recheck: cfg.HTTP.Recheck,
		})
		if err != nil {
			return nil, nil, errors.Annotate(err, "init http uplink")
		}
		members = append(members, h)
	}
	if cfg.Redis.Addr != "" {
		r, err := uplink.NewRedisStream(uplink.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
			Recheck:  cfg.Redis.Recheck,
		})
		if err != nil {
			return nil, nil, errors.Annotate(err, "init redis uplink")
		}
		members = append(members, r)
	}

	switch len(members) {
	case 0:
		return nil, nil, errors.NotValidf("no uplink configured")
	case 1:
		return members[0], mc, nil
	}
	return uplink.NewFailover(members...), mc, nil
}
