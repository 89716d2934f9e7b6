// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package main

import (
	"context"
	"fmt"

	"github.com/MKhiriev/cachou/internal/authserver"
	"github.com/MKhiriev/cachou/internal/config"
	"github.com/MKhiriev/cachou/internal/handler"
	"github.com/MKhiriev/cachou/internal/logger"
	"github.com/MKhiriev/cachou/internal/pake"
	"github.com/MKhiriev/cachou/internal/rpc"
	"github.com/MKhiriev/cachou/internal/sealedbox"
	"github.com/MKhiriev/cachou/internal/server"
	"github.com/MKhiriev/cachou/internal/session"
	"github.com/MKhiriev/cachou/internal/store"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewLogger("cachou-server")
	cfg, err := config.GetStructuredConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	log.Info().Msg("starting server")
	log.Debug().Any("config", cfg).Msg("received configs")

	secretKey, err := sealedbox.LoadKey(cfg.App.SecretKeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading secret key")
	}

	setup, err := pake.LoadSetup(cfg.App.OpaqueSetupPath)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading opaque setup")
	}

	oneFactor, logged, autoLogout, uber := cfg.App.SessionDurations()

	db, err := store.NewConnectPostgres(context.Background(), cfg.Storage.DB.DSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error connecting to storage")
	}

	authState := &authserver.State{
		SecretKey: secretKey,
		PakeSetup: setup,
		Durations: session.Durations{
			OneFactor:  oneFactor,
			Logged:     logged,
			AutoLogout: autoLogout,
			Uber:       uber,
		},
	}

	dispatcher := rpc.NewDispatcher(db)
	registerHandlers(dispatcher, authState)

	handlers, err := handler.NewHandlers(dispatcher, cfg.Server, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating handlers")
	}

	srv, err := server.NewServer(handlers, cfg.Server, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating server")
	}

	srv.RunServer()
}

// registerHandlers wires every RPC operation's Kind to its authState
// implementation.
func registerHandlers(d *rpc.Dispatcher, s *authserver.State) {
	rpc.RegisterHandler(d, rpc.KindAddUser, s.AddUser)
	rpc.RegisterHandler(d, rpc.KindNewCredentials, s.NewCredentials)
	rpc.RegisterHandler(d, rpc.KindUpdateCredentials, s.UpdateCredentials)
	rpc.RegisterHandler(d, rpc.KindLoginStart, s.LoginStart)
	rpc.RegisterHandler(d, rpc.KindLoginFinish, s.LoginFinish)
	rpc.RegisterHandler(d, rpc.KindGetUserPrivateData, s.GetUserPrivateData)
	rpc.RegisterHandler(d, rpc.KindSetUserPrivateData, s.SetUserPrivateData)
	rpc.RegisterHandler(d, rpc.KindGetExportKeys, s.GetExportKeys)
	rpc.RegisterHandler(d, rpc.KindRotateMasterKey, s.RotateMasterKey)
	rpc.RegisterHandler(d, rpc.KindSetTotp, s.SetTotp)
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
