package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/tacusci/logging/v2"
	"github.com/takama/daemon"
	"github.com/tauraamui/dragonreel/pkg/config"
	"github.com/tauraamui/dragonreel/pkg/configdef"
	db "github.com/tauraamui/dragonreel/pkg/database"
	"github.com/tauraamui/dragonreel/pkg/log"
	"github.com/tauraamui/dragonreel/pkg/reel"
)

const (
	name        = "dragon_reel"
	description = "Dragon reel service which keeps image sequence frames cached around the playhead"
)

type Service struct {
	daemon.Daemon
}

// Setup writes the default config and creates the session database.
func (service *Service) Setup() (string, error) {
	log.Info("Setting up dragonreel service...")

	err := config.DefaultCreator().Create()
	if err != nil {
		if !errors.Is(err, configdef.ErrConfigAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	err = db.Setup()
	if err != nil {
		if !errors.Is(err, db.ErrDBAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	return "Setup successful...", nil
}

func (service *Service) RemoveSetup() (string, error) {
	log.Info("Removing setup for dragonreel service...")
	if err := config.DefaultDestroyer().Destroy(); err != nil {
		log.Error("unable to delete config file: %s", err.Error())
	}

	if err := db.Destroy(); err != nil {
		log.Error("unable to delete database file: %s", err.Error())
	}

	return "Removing setup successful...", nil
}

func (service *Service) Inspect(path string) (string, error) {
	values, err := config.DefaultResolver().Resolve()
	if err != nil {
		log.Warn("Unable to load config, using defaults: %v", err)
		values = config.Defaults()
	}

	return reel.InspectWithHistory(path, values, os.Getenv("DRAGON_REEL_READER"), sessionHistory())
}

func (service *Service) Manage() (string, error) {
	usage := "Usage: dragonreel setup | remove-setup | install | remove | start | stop | status | inspect <path>"

	if len(os.Args) > 1 {
		command := os.Args[1]
		switch command {
		case "setup":
			return service.Setup()
		case "remove-setup":
			return service.RemoveSetup()
		case "install":
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		case "inspect":
			if len(os.Args) < 3 {
				return usage, nil
			}
			return service.Inspect(os.Args[2])
		default:
			return usage, nil
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	log.Info("Starting dragon reel...")

	server := reel.NewServerWithStore(config.DefaultResolver(), os.Getenv("DRAGON_REEL_READER"), sessionStore())
	if err := server.LoadConfiguration(); err != nil {
		return "", err
	}

	ctx, cancelStartup := context.WithCancel(context.Background())
	go startupServer(ctx, server)

	killSignal := <-interrupt
	fmt.Print("\r")
	log.Error("Received signal: %s", killSignal)

	cancelStartup()
	log.Info("Shutting down server...")
	<-server.Shutdown()

	return "Shutdown successful... BYE! 👋", nil
}

// sessionStore is nil when the database has not been set up, sessions are
// then simply not recorded.
func sessionStore() reel.SessionStore {
	sessions, _, err := db.Sessions()
	if err != nil {
		log.Warn("Unable to connect to session database, sessions won't be stored: %v", err)
		return nil
	}
	return sessions
}

func sessionHistory() reel.SessionHistory {
	sessions, _, err := db.Sessions()
	if err != nil {
		log.Warn("Unable to connect to session database, history won't be shown: %v", err)
		return nil
	}
	return sessions
}

func startupServer(ctx context.Context, server reel.Server) {
	for _, err := range server.OpenWithCancel(ctx) {
		log.Error(err.Error())
	}
	if ctx.Err() != nil {
		return
	}
	server.Run()
}

func init() {
	log.SetLevel(os.Getenv("DRAGON_REEL_LOGGING_LEVEL"))
}

func main() {
	daemonType := daemon.SystemDaemon
	if runtime.GOOS == "darwin" {
		daemonType = daemon.UserAgent
	}

	srv, err := daemon.New(name, description, daemonType)
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	logging.Info(status) //nolint
}
