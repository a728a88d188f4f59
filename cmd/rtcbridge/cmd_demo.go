package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rtcbridge/rtcbridge/identity"
	"github.com/rtcbridge/rtcbridge/rtc"
	"github.com/rtcbridge/rtcbridge/signal"
)

func init() {
	var pings int

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Runs two in-process peers through a full connection and ping exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			return runDemo(ctx, pings)
		},
	}
	demoCmd.Flags().IntVar(&pings, "pings", 3, "the number of pings to exchange")
	rootCmd.AddCommand(demoCmd)
}

// runDemo stands up both ends of a connection in one process: offer/answer
// and candidates travel through an in-memory signaler, pings over the
// resulting data channel.
func runDemo(ctx context.Context, pings int) error {
	s := signal.Must(signal.New("memory://demo-" + uuid.NewString()))

	kp1 := identity.New()
	kp2 := identity.New()
	if kp2.Public.String() < kp1.Public.String() {
		kp1, kp2 = kp2, kp1
	}

	offerer, err := rtc.New(rtc.Config{Logger: &log.Logger})
	if err != nil {
		return err
	}
	defer offerer.Close()
	answerer, err := rtc.New(rtc.Config{Logger: &log.Logger})
	if err != nil {
		return err
	}
	defer answerer.Close()

	answerer.OnDataChannel(func(dc *rtc.DataChannel) {
		dc.OnMessage(func(msg rtc.Message) {
			log.Info().Str("data", string(msg.Data)).Msg("[answerer] received")
			if err := dc.SendText("echo: " + string(msg.Data)); err != nil {
				log.Warn().Err(err).Msg("[answerer] echo failed")
			}
		})
	})

	dc, err := offerer.CreateDataChannel("demo", nil)
	if err != nil {
		return err
	}
	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return signal.Connect(ctx, offerer, s, kp1, kp2.Public)
	})
	eg.Go(func() error {
		return signal.Connect(ctx, answerer, s, kp2, kp1.Public)
	})
	if err := eg.Wait(); err != nil {
		return err
	}
	log.Info().Msg("peers connected")

	select {
	case <-opened:
	case <-ctx.Done():
		return ctx.Err()
	}

	for i := 1; i <= pings; i++ {
		if err := dc.SendContext(ctx, []byte(fmt.Sprintf("ping %d", i))); err != nil {
			return err
		}
		reply, err := dc.Recv(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("data", string(reply.Data)).Msg("[offerer] received")
	}

	stats, err := offerer.Stats(ctx)
	if err != nil {
		return err
	}
	for _, id := range stats.IDs("candidate-pair") {
		state, _ := stats.Get(id, "state")
		log.Info().Str("id", id).Interface("state", state).Msg("candidate pair")
	}

	log.Info().Int("pings", pings).Msg("demo complete")
	return nil
}
