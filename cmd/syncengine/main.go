// Command syncengine is a small demonstration harness for the sync engine.
// In loopback mode it wires a clocksender.Sender to a clockreceiver.Receiver
// in-process and reports the receiver's events, state, inferred tempo and
// error until interrupted or a timeout elapses; sender mode logs outgoing
// packets instead of delivering them, and receiver mode only waits.
//
// Real platform MIDI transport is out of scope for this engine (spec.md
// §1); this command's Transport implementations are demonstration
// collaborators, not a production transport.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/michaeltyson/TheSpectacularSyncEngine/clockreceiver"
	"github.com/michaeltyson/TheSpectacularSyncEngine/clocksender"
	"github.com/michaeltyson/TheSpectacularSyncEngine/internal/logging"
	"github.com/michaeltyson/TheSpectacularSyncEngine/midiimport"
	"github.com/michaeltyson/TheSpectacularSyncEngine/midimsg"
	"github.com/michaeltyson/TheSpectacularSyncEngine/notify"
)

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "syncengine:", err)
		os.Exit(2)
	}

	if err := logging.Init(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "syncengine:", err)
		os.Exit(2)
	}
	log := logging.Get()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if cfg.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, cfg.Timeout)
		defer timeoutCancel()
	}

	if err := run(ctx, cfg, log.With("mode", cfg.Mode)); err != nil {
		log.Error("exiting with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config, log interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}) error {
	switch cfg.Mode {
	case "loopback":
		return runLoopback(ctx, cfg, log)
	case "sender":
		return runSender(ctx, cfg, log)
	case "receiver":
		return runReceiver(ctx, log)
	default:
		return fmt.Errorf("unreachable mode %q", cfg.Mode)
	}
}

// loggingTransport logs every outgoing packet list instead of delivering it
// anywhere; used in "sender" mode, where there is no real downstream MIDI
// destination to wire up.
type loggingTransport struct {
	log interface {
		Info(msg string, args ...any)
	}
}

func (t *loggingTransport) Send(pl *midimsg.PacketList) error {
	for _, e := range pl.Entries() {
		t.log.Info("send", "kind", e.Message.Kind(), "ts", uint64(e.Timestamp))
	}
	return nil
}

// receiverTransport feeds every outgoing packet list directly into a
// Receiver, in-process, used to demonstrate the sender and receiver
// against each other in "loopback" mode.
type receiverTransport struct {
	receiver *clockreceiver.Receiver
}

func (t *receiverTransport) Send(pl *midimsg.PacketList) error {
	t.receiver.ReceivePacketList(pl)
	return nil
}

func seedTempo(cfg *config, sender *clocksender.Sender, log interface{ Info(string, ...any) }) {
	sender.SetTempo(cfg.Tempo)
	if cfg.MIDIFile == "" {
		return
	}
	f, err := os.Open(cfg.MIDIFile)
	if err != nil {
		log.Info("could not open midi-file, using --tempo instead", "error", err.Error())
		return
	}
	defer f.Close()
	points, err := midiimport.TempoMapFromSMF(f)
	if err != nil || len(points) == 0 {
		log.Info("could not read tempo map from midi-file, using --tempo instead")
		return
	}
	sender.SetTempo(float64(points[0].Tempo))
	log.Info("seeded tempo from midi-file", "tempo", float64(points[0].Tempo))
}

func runLoopback(ctx context.Context, cfg *config, log interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}) error {
	queue := notify.NewQueue()
	receiver := clockreceiver.New(queue)
	defer receiver.Close()

	sender := clocksender.New(&receiverTransport{receiver: receiver})
	defer sender.Close()

	seedTempo(cfg, sender, log)
	sender.SetSendClockWhileStopped(cfg.SendClockWhileStopped)
	if _, err := sender.Start(0); err != nil {
		return fmt.Errorf("start sender: %w", err)
	}

	return reportLoop(ctx, log, func() {
		for _, e := range queue.Drain() {
			log.Info("event", "kind", e.Kind, "tempo", e.Tempo, "position", e.Position)
		}
		log.Info("status",
			"receivingTempo", receiver.IsReceivingTempo(),
			"running", receiver.IsClockRunning(),
			"tempo", receiver.Tempo(),
			"error%", receiver.Error(),
		)
	})
}

func runSender(ctx context.Context, cfg *config, log interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}) error {
	sender := clocksender.New(&loggingTransport{log: log})
	defer sender.Close()

	seedTempo(cfg, sender, log)
	sender.SetSendClockWhileStopped(cfg.SendClockWhileStopped)
	if _, err := sender.Start(0); err != nil {
		return fmt.Errorf("start sender: %w", err)
	}

	<-ctx.Done()
	return nil
}

func runReceiver(ctx context.Context, log interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}) error {
	queue := notify.NewQueue()
	receiver := clockreceiver.New(queue)
	defer receiver.Close()

	log.Info("waiting for an inbound MIDI transport to be wired in (out of scope for this demo)")
	return reportLoop(ctx, log, func() {
		for _, e := range queue.Drain() {
			log.Info("event", "kind", e.Kind)
		}
	})
}

func reportLoop(ctx context.Context, log interface{ Info(string, ...any) }, tick func()) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}
