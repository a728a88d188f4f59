package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rtcbridge/rtcbridge/identity"
	"github.com/rtcbridge/rtcbridge/rtc"
	"github.com/rtcbridge/rtcbridge/signal"
)

func init() {
	var (
		peer       string
		signalAddr string
		listens    []string
		allows     []int
	)

	pipeCmd := &cobra.Command{
		Use:   "pipe",
		Short: "Forwards TCP ports to a peer over a multiplexed data channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(options.configFile)
			if err != nil {
				return fmt.Errorf("failed to load config file: %w", err)
			}
			if !cfg.KeyPair.Private.Valid() {
				return errors.New("invalid config file, missing private key")
			}
			if peer == "" {
				return errors.New("peer is required")
			}
			peerKey, err := identity.NewKey(peer)
			if err != nil {
				return fmt.Errorf("invalid peer key: %w", err)
			}

			if signalAddr == "" {
				signalAddr = cfg.SignalAddress
			}
			if signalAddr == "" {
				return errors.New("a signaler address is required (--signal or signaladdress in the config)")
			}
			s, err := signal.New(signalAddr)
			if err != nil {
				return err
			}

			return runPipe(cmd.Context(), cfg, s, peerKey, listens, allows)
		},
	}
	pipeCmd.Flags().StringVar(&peer, "peer", "", "the peer's public key")
	pipeCmd.Flags().StringVar(&signalAddr, "signal", "", "the signaler address")
	pipeCmd.Flags().StringArrayVar(&listens, "listen", nil, "local[:remote] port to forward to the peer (repeatable)")
	pipeCmd.Flags().IntSliceVar(&allows, "allow", nil, "local port the peer may reach (repeatable)")
	rootCmd.AddCommand(pipeCmd)
}

func runPipe(ctx context.Context, cfg *Config, s signal.Signaler, peerKey identity.Key, listens []string, allows []int) error {
	log.Info().
		Str("public-key", cfg.KeyPair.Public.String()).
		Str("peer", peerKey.String()).
		Msg("starting pipe")

	pc, err := rtc.New(cfg.RTCConfig())
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	defer pc.Close()

	offerer := cfg.KeyPair.Public.String() < peerKey.String()

	var dc *rtc.DataChannel
	incoming := make(chan *rtc.DataChannel, 1)
	if offerer {
		dc, err = pc.CreateDataChannel("pipe", nil)
		if err != nil {
			return fmt.Errorf("failed to create pipe channel: %w", err)
		}
	} else {
		pc.OnDataChannel(func(ch *rtc.DataChannel) {
			select {
			case incoming <- ch:
			default:
			}
		})
	}

	if err := signal.Connect(ctx, pc, s, cfg.KeyPair, peerKey); err != nil {
		return fmt.Errorf("failed to connect to peer: %w", err)
	}
	if !offerer {
		select {
		case dc = <-incoming:
		case <-time.After(time.Minute):
			return errors.New("timed out waiting for the pipe channel")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// one reliable ordered channel carries every forwarded connection
	stream := rtc.NewStream(dc)
	var session *yamux.Session
	if offerer {
		session, err = yamux.Client(stream, yamux.DefaultConfig())
	} else {
		session, err = yamux.Server(stream, yamux.DefaultConfig())
	}
	if err != nil {
		return fmt.Errorf("failed to establish yamux session: %w", err)
	}
	defer session.Close()

	allowed := map[int]bool{}
	for _, port := range allows {
		allowed[port] = true
	}
	go acceptStreams(session, allowed)

	for _, pair := range listens {
		localPort, remotePort, err := splitPortPair(pair)
		if err != nil {
			return err
		}
		go listenLocal(session, localPort, remotePort)
	}

	<-ctx.Done()
	return ctx.Err()
}

// splitPortPair parses "local:remote"; a bare "port" forwards to the same
// port on the peer.
func splitPortPair(pair string) (local, remote int, err error) {
	localPart, remotePart, found := strings.Cut(pair, ":")
	if !found {
		remotePart = localPart
	}
	local, err = strconv.Atoi(localPart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid listen port %q", pair)
	}
	remote, err = strconv.Atoi(remotePart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid listen port %q", pair)
	}
	return local, remote, nil
}

func listenLocal(session *yamux.Session, localPort, remotePort int) {
	li, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort)))
	if err != nil {
		log.Fatal().Err(err).Int("local-port", localPort).Msg("failed to create listener")
	}
	defer li.Close()

	log.Info().Int("local-port", localPort).Int("remote-port", remotePort).
		Msg("forwarding local port")

	for {
		local, err := li.Accept()
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				time.Sleep(time.Second)
				continue
			}
			log.Error().Err(err).Msg("error accepting connection")
			return
		}

		remote, err := session.Open()
		if err != nil {
			local.Close()
			log.Warn().Err(err).Msg("failed to open stream to peer")
			continue
		}
		// the first line tells the peer which port to dial
		if _, err := fmt.Fprintf(remote, "%d\n", remotePort); err != nil {
			local.Close()
			remote.Close()
			continue
		}

		go joinConns(local, remote)
	}
}

func acceptStreams(session *yamux.Session, allowed map[int]bool) {
	for {
		stream, err := session.Accept()
		if err != nil {
			log.Error().Err(err).Msg("failed to accept stream from peer")
			return
		}
		go serveStream(stream, allowed)
	}
}

func serveStream(stream net.Conn, allowed map[int]bool) {
	br := bufio.NewReader(stream)
	line, err := br.ReadString('\n')
	if err != nil {
		stream.Close()
		return
	}
	port, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || !allowed[port] {
		log.Warn().Int("port", port).Msg("peer attempted to connect to disallowed port")
		stream.Close()
		return
	}

	local, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		log.Warn().Err(err).Int("port", port).Msg("failed to dial local port")
		stream.Close()
		return
	}

	log.Info().Int("port", port).Msg("accepted connection from peer")
	joinConns(local, bufferedConn{r: br, Conn: stream})
}

// bufferedConn replays bytes the header reader may have buffered past the
// newline.
type bufferedConn struct {
	r io.Reader
	net.Conn
}

func (c bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func joinConns(c1, c2 net.Conn) {
	defer c1.Close()
	defer c2.Close()

	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(c1, c2)
		errc <- err
	}()
	go func() {
		_, err := io.Copy(c2, c1)
		errc <- err
	}()
	err := <-errc
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("error copying data between connections")
	}
}
