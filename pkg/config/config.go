package config

import (
	"os"
	"strconv"
)

type Config struct {
	SeedName     string
	RoomPassword string
	ItemIDOffset int
	LogLevel     string
}

func Load() (*Config, error) {
	seedName, seedNameExists := os.LookupEnv("SEED_NAME")
	if !seedNameExists {
		seedName = "dev-seed"
	}

	roomPassword := os.Getenv("ROOM_PASSWORD")

	itemIDOffsetStr, itemIDOffsetExists := os.LookupEnv("ITEM_ID_OFFSET")
	if !itemIDOffsetExists {
		itemIDOffsetStr = "9000"
	}
	itemIDOffset, err := strconv.Atoi(itemIDOffsetStr)
	if err != nil {
		return nil, err
	}

	logLevel, logLevelExists := os.LookupEnv("LOG_LEVEL")
	if !logLevelExists {
		logLevel = "info"
	}

	return &Config{
		SeedName:     seedName,
		RoomPassword: roomPassword,
		ItemIDOffset: itemIDOffset,
		LogLevel:     logLevel,
	}, nil
}
