package rainsensor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/state"
)

// Reporter delivers the device status word to the coordinator.
type Reporter interface {
	ReportState(ctx context.Context, w state.Word) error
}

// Bridge feeds sensor lines into a Monitor and reports every verdict
// change. The verdict is re-evaluated on each line and every Interval so
// a silent sensor turns into bad weather.
type Bridge struct {
	Monitor  *Monitor
	Reporter Reporter
	Interval time.Duration

	reported bool
	good     bool
}

// Run reads lines from r until ctx is cancelled or r fails.
func (b *Bridge) Run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		readErr <- err
	}()

	interval := b.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := b.evaluate(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				log.Warn().Msg("Sensor stream ended")
			}
			return err
		case line := <-lines:
			if err := b.Handle(ctx, line); err != nil {
				return err
			}
		case <-ticker.C:
			if err := b.evaluate(ctx); err != nil {
				return err
			}
		}
	}
}

// Handle processes one sensor line.
func (b *Bridge) Handle(ctx context.Context, line string) error {
	r, err := ParseLine(line)
	if err != nil {
		log.Debug().Str("line", line).Msg("Ignoring sensor line")
		return nil
	}
	b.Monitor.Observe(r)
	return b.evaluate(ctx)
}

// evaluate reports the verdict when it differs from the last report.
func (b *Bridge) evaluate(ctx context.Context) error {
	good := b.Monitor.Good()
	if b.reported && good == b.good {
		return nil
	}

	var w state.Word
	if !good {
		w = state.BadWeather
	}
	if err := b.Reporter.ReportState(ctx, w); err != nil {
		return err
	}

	b.reported = true
	b.good = good
	log.Info().Bool("good_weather", good).Msg("Weather reported")
	return nil
}
