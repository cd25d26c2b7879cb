package serverapp

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hollowlog/archipelago-client/pkg/config"
	"github.com/hollowlog/archipelago-client/pkg/rooms"
	"github.com/hollowlog/archipelago-client/pkg/server"
	"github.com/sirupsen/logrus"

	"github.com/joho/godotenv"
)

func Run(port int, gameName string, slotNames []string) error {
	err := godotenv.Load(".env.server")
	if err != nil {
		log.Fatal("Failed to load environment variables: ", err)
	}

	conf, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration for server: ", err)
	}

	logger := logrus.New()
	logLevel, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	slots := make([]rooms.SlotConfig, 0, len(slotNames))
	for _, slotName := range slotNames {
		slots = append(slots, rooms.SlotConfig{
			Name: slotName,
			Game: gameName,
		})
	}
	store := rooms.NewInMemoryStore(
		&rooms.RoomParams{
			SeedName:     conf.SeedName,
			Password:     conf.RoomPassword,
			Slots:        slots,
			ItemIDOffset: int64(conf.ItemIDOffset),
		},
		logger,
	)

	srv := server.NewDefaultServer(
		&server.ServerParams{
			SeedName: conf.SeedName,
		},
		store,
		logger,
	)

	router := mux.NewRouter()
	router.Handle("/", srv)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		Handler:           router,
	}

	log.Printf("Room server listening on port %d ... \n", port)
	return httpSrv.ListenAndServe()
}
