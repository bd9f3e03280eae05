// Command heatpump-blink runs the simulated heat pump and blinks a status LED
// at a rate set by its target temperature. Device requests arrive over MQTT
// (and optionally HTTP); state changes are published back to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/heatpump-blink/internal/blink"
	"github.com/sweeney/heatpump-blink/internal/config"
	"github.com/sweeney/heatpump-blink/internal/gpio"
	"github.com/sweeney/heatpump-blink/internal/heatpump"
	"github.com/sweeney/heatpump-blink/internal/mqtt"
	"github.com/sweeney/heatpump-blink/internal/status"
	"github.com/sweeney/heatpump-blink/internal/web"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults if empty)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	pin := flag.Int("pin", -1, "BCM pin number for the LED (overrides config)")
	printConfig := flag.Bool("print-config", false, "Print effective configuration and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyFlags(cfg, *broker, *httpAddr, *pin)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printConfig {
		if err := writeConfig(os.Stdout, cfg); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	if closer := setupLogging(cfg.Logging); closer != nil {
		defer closer.Close()
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyFlags overrides cfg with any command-line values that were given.
func applyFlags(cfg *config.Config, broker, httpAddr string, pin int) {
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	if pin >= 0 {
		cfg.GPIO.Pin = pin
	}
}

// writeConfig prints cfg as YAML with the MQTT password masked.
func writeConfig(w io.Writer, cfg *config.Config) error {
	masked := *cfg
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = "********"
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// setupLogging tees the standard logger into a rotating file when one is
// configured. The returned closer is nil when logging stays on stderr only.
func setupLogging(lc config.LoggingConfig) io.Closer {
	if lc.File == "" {
		return nil
	}
	lj := &lumberjack.Logger{
		Filename:   lc.File,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	return lj
}

func startupSummary(cfg *config.Config) string {
	return fmt.Sprintf("pin=%d range=%d..%d°C delay=%d..%dms broker=%s heartbeat=%v",
		cfg.GPIO.Pin, cfg.Blink.TempMin, cfg.Blink.TempMax, cfg.Blink.DelayMinMs, cfg.Blink.DelayMaxMs,
		cfg.MQTT.Broker, cfg.Heartbeat)
}

func blinkRange(bc config.BlinkConfig) blink.Range {
	return blink.Range{
		DelayMin: bc.DelayMinMs,
		DelayMax: bc.DelayMaxMs,
		TempMin:  bc.TempMin,
		TempMax:  bc.TempMax,
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		TickMs:      cfg.Tick.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		DelayMinMs:  cfg.Blink.DelayMinMs,
		DelayMaxMs:  cfg.Blink.DelayMaxMs,
		TempMin:     cfg.Blink.TempMin,
		TempMax:     cfg.Blink.TempMax,
	}
}

func blinkStatus(ctrl *blink.Controller) status.Blink {
	st := ctrl.Stats()
	return status.Blink{
		Running:     st.Running,
		Pin:         st.Pin,
		Temperature: st.Temperature,
		DelayMs:     st.Delay.Milliseconds(),
		Cycles:      st.Cycles,
	}
}

func run(cfg *config.Config) error {
	// Initialize GPIO
	gpioWriter, err := gpio.NewRealWriter(cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer gpioWriter.Close()

	// Initialize the blink controller
	ctrl := blink.New(gpioWriter)
	if err := ctrl.Setup(cfg.GPIO.Pin); err != nil {
		return fmt.Errorf("setup led: %w", err)
	}
	if err := ctrl.ConfigureRange(blinkRange(cfg.Blink)); err != nil {
		return fmt.Errorf("configure led: %w", err)
	}

	device := heatpump.NewDevice(heatpump.Info{
		Name: cfg.Device.Name,
		Type: cfg.Device.Type,
		Icon: cfg.Device.Icon,
	}, ctrl, time.Now())

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Username:   cfg.MQTT.Username,
		Password:   cfg.MQTT.Password,
		BufferSize: cfg.MQTT.BufferSize,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.Update(device.Snapshot(), blinkStatus(ctrl))
	tracker.SetMQTTConnected(publisher.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	commands := &commandHandler{device: device, publisher: publisher, now: time.Now}
	if err := commands.subscribe(publisher); err != nil {
		log.Printf("mqtt: %v", err)
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, commands.execute)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	if cfg.Blink.Autostart {
		on := int64(heatpump.StateOn)
		commands.run(heatpump.Request{Query: heatpump.QuerySetState, Value: &on})
	}

	log.Printf("started: %s", startupSummary(cfg))

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loop := &runLoop{
		device:      device,
		ctrl:        ctrl,
		publisher:   publisher,
		mqttStatus:  publisher,
		tracker:     tracker,
		heartbeat:   cfg.Heartbeat,
		stopTimeout: cfg.StopTimeout(),
		now:         time.Now,
	}
	return loop.run(ticker.C, sigCh)
}

// runLoop owns the periodic work of the daemon: room temperature drift,
// heartbeats, status refresh and the orderly shutdown of the LED.
type runLoop struct {
	device      *heatpump.Device
	ctrl        *blink.Controller
	publisher   mqtt.Publisher
	mqttStatus  mqtt.ConnectionStatus
	tracker     *status.Tracker
	heartbeat   time.Duration
	stopTimeout time.Duration
	now         func() time.Time
}

func (l *runLoop) run(tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := newHeartbeat(l.heartbeat, l.now())

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			l.stopLED()

			event := mqtt.SystemEvent{
				Timestamp: l.now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if l.tracker != nil {
				l.refresh()
				snap := l.tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := l.now()

			if event := l.device.Tick(t); event != nil {
				// Room temperature is reported only; the LED follows the target.
				if err := l.publisher.Publish(*event); err != nil {
					log.Printf("publish error: %v", err)
				}
			}

			if hb.due(t) {
				buffered := 0
				if l.mqttStatus != nil {
					buffered = l.mqttStatus.Buffered()
				}
				log.Printf("heartbeat: uptime=%v cycles=%d mqtt_buffered=%d", hb.uptime(t), l.ctrl.Stats().Cycles, buffered)
				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if l.tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						l.tracker.SetNetwork(net)
					}
					l.refresh()
					hbEvent.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := l.publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			if l.tracker != nil {
				l.refresh()
			}
		}
	}
}

// refresh copies device, LED and connection state into the tracker.
func (l *runLoop) refresh() {
	l.tracker.Update(l.device.Snapshot(), blinkStatus(l.ctrl))
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

// stopLED asks the blink worker to stop and waits for it to leave the pin
// low, giving up after stopTimeout.
func (l *runLoop) stopLED() {
	select {
	case <-l.ctrl.Stop():
	case <-time.After(l.stopTimeout):
		log.Printf("blink: worker did not stop within %v", l.stopTimeout)
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
