package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/clock"
	"github.com/urmzd/centrald/pkg/peer"
	"github.com/urmzd/centrald/pkg/protocol"
	"github.com/urmzd/centrald/pkg/rainsensor"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := flag.String("addr", "127.0.0.1:617", "centrald protocol address")
	serialPort := flag.String("port", "/dev/ttyUSB0", "Path to the rain sensor serial port")
	baud := flag.Int("baud", rainsensor.DefaultBaudRate, "Serial line speed")
	name := flag.String("name", "rain", "Device name to register as")
	hold := flag.Duration("hold", time.Hour, "Keep reporting bad weather this long after the last wet reading")
	stale := flag.Duration("stale", 2*time.Minute, "Report bad weather when the sensor is silent this long")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *addr, *serialPort, *baud, *name, *hold, *stale); err != nil {
		log.Fatal().Err(err).Msg("Rain sensor bridge failed")
	}
}

func run(ctx context.Context, addr, path string, baud int, name string, hold, stale time.Duration) error {
	port, err := rainsensor.OpenPort(path, baud)
	if err != nil {
		return err
	}
	defer func() {
		if err := port.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close serial port")
		}
	}()

	client, err := peer.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	host, _ := os.Hostname()
	id, err := client.Register(ctx, 0, name, 0, host, 0)
	if err != nil {
		return err
	}
	log.Info().Int("session", id).Str("name", name).Msg("Registered with centrald")

	if err := client.Log(ctx, protocol.SeverityInfo, fmt.Sprintf("rain sensor on %s", path)); err != nil {
		log.Warn().Err(err).Msg("Failed to log startup message")
	}

	bridge := &rainsensor.Bridge{
		Monitor:  rainsensor.NewMonitor(clock.Real(), hold, stale),
		Reporter: client,
		Interval: stale / 4,
	}

	errc := make(chan error, 1)
	go func() { errc <- bridge.Run(ctx, port) }()

	select {
	case err := <-errc:
		return err
	case <-client.Done():
		return fmt.Errorf("centrald connection closed: %w", client.Err())
	}
}
