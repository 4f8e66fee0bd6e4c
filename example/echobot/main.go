package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	msnp11sdk "github.com/campos02/msnp11-sdk"
	"github.com/campos02/msnp11-sdk/msnp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	messagesEchoed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echobot_messages_echoed_total",
		Help: "Text messages and nudges echoed back.",
	})
	sessionsAnswered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echobot_sessions_answered_total",
		Help: "Switchboard invitations answered.",
	})
)

func main() {
	server := flag.String("srv", "127.0.0.1", "Notification server")
	port := flag.Int("port", msnp.DefaultPort, "Notification server port")
	nexus := flag.String("nexus", "https://nexus.passport.com/rdr/pprdr.asp", "Passport nexus URL")
	email := flag.String("u", "", "Passport email")
	password := flag.String("p", "", "Password")
	httpAddr := flag.String("http", ":8080", "Metrics HTTP address")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.StampMicro,
	}).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		log.Logger = log.Logger.Level(lvl)
	}

	if *email == "" || *password == "" {
		log.Fatal().Msg("Both -u and -p are required")
	}

	go httpServer(*httpAddr)

	msnp11sdk.Init()

	client, err := msnp11sdk.NewClient(*server, *port)
	if err != nil {
		log.Fatal().Err(err).Msg("Fail to connect to notification server")
	}

	ctx := context.TODO()
	event, err := client.Login(ctx, *email, *password, *nexus)
	if err != nil {
		log.Fatal().Err(err).Msg("Fail to log in")
	}

	if redirect, ok := event.(msnp.RedirectedTo); ok {
		log.Info().Str("server", redirect.Server).Int("port", redirect.Port).Msg("Redirected")
		client, err = msnp11sdk.NewClient(redirect.Server, redirect.Port)
		if err != nil {
			log.Fatal().Err(err).Msg("Fail to connect to redirect server")
		}
		if _, err := client.Login(ctx, *email, *password, *nexus); err != nil {
			log.Fatal().Err(err).Msg("Fail to log in")
		}
	}

	// Registered after the redirect dance so the first connection's
	// teardown does not reach the Disconnected arm below.
	client.AddEventHandler(onEvent)

	if err := client.SetPresence(ctx, msnp.StatusOnline); err != nil {
		log.Fatal().Err(err).Msg("Fail to set presence")
	}
	if err := client.SetPersonalMessage(ctx, &msnp.PersonalMessage{PSM: "echoing your messages"}); err != nil {
		log.Error().Err(err).Msg("Fail to set personal message")
	}

	log.Info().Str("email", *email).Msg("Echobot is online")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	client.Disconnect()
}

func httpServer(address string) {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("Alive"))
	})

	log.Info().Str("address", address).Msg("Http server started")
	http.ListenAndServe(address, nil)
}

// sessions tracks the switchboards the bot was invited into so incoming
// messages can be echoed onto the right one.
var sessions = make(map[string]*msnp11sdk.Switchboard)

func onEvent(event msnp.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch ev := event.(type) {
	case msnp11sdk.SessionAnswered:
		sessionsAnswered.Inc()
		if id, err := ev.Switchboard.SessionID(); err == nil {
			sessions[id] = ev.Switchboard
		}

	case msnp.TextMessage:
		sb := sessions[ev.SessionID]
		if sb == nil {
			return
		}
		message := ev.Message
		if err := sb.SendTextMessage(ctx, &message); err != nil {
			log.Error().Err(err).Msg("Fail to echo message")
			return
		}
		messagesEchoed.Inc()

	case msnp.Nudge:
		sb := sessions[ev.SessionID]
		if sb == nil {
			return
		}
		if err := sb.SendNudge(ctx); err != nil {
			log.Error().Err(err).Msg("Fail to echo nudge")
			return
		}
		messagesEchoed.Inc()

	case msnp.ParticipantLeftSwitchboard:
		delete(sessions, ev.SessionID)

	case msnp.Disconnected:
		log.Info().Msg("Disconnected from server")
		os.Exit(0)
	}
}
