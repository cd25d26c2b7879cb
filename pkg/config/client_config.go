package config

import (
	"os"
	"strconv"
)

type ClientConfig struct {
	MaxReconnectAttempts     int
	RoomInfoTimeoutSeconds   int
	HeartbeatIntervalSeconds int
	HandshakeTimeoutSeconds  int
	LogLevel                 string
}

func LoadForClient() (*ClientConfig, error) {
	maxReconnectStr, maxReconnectExists := os.LookupEnv("MAX_RECONNECTION_ATTEMPTS")
	if !maxReconnectExists {
		maxReconnectStr = "5"
	}
	maxReconnectAttempts, err := strconv.Atoi(maxReconnectStr)
	if err != nil {
		return nil, err
	}

	roomInfoTimeoutStr, roomInfoTimeoutExists := os.LookupEnv("ROOM_INFO_TIMEOUT")
	if !roomInfoTimeoutExists {
		roomInfoTimeoutStr = "10"
	}
	roomInfoTimeout, err := strconv.Atoi(roomInfoTimeoutStr)
	if err != nil {
		return nil, err
	}

	heartbeatIntervalStr, heartbeatIntervalExists := os.LookupEnv("HEARTBEAT_INTERVAL")
	if !heartbeatIntervalExists {
		heartbeatIntervalStr = "30"
	}
	heartbeatInterval, err := strconv.Atoi(heartbeatIntervalStr)
	if err != nil {
		return nil, err
	}

	handshakeTimeoutStr, handshakeTimeoutExists := os.LookupEnv("HANDSHAKE_TIMEOUT")
	if !handshakeTimeoutExists {
		handshakeTimeoutStr = "5"
	}
	handshakeTimeout, err := strconv.Atoi(handshakeTimeoutStr)
	if err != nil {
		return nil, err
	}

	logLevel, logLevelExists := os.LookupEnv("LOG_LEVEL")
	if !logLevelExists {
		logLevel = "info"
	}

	return &ClientConfig{
		MaxReconnectAttempts:     maxReconnectAttempts,
		RoomInfoTimeoutSeconds:   roomInfoTimeout,
		HeartbeatIntervalSeconds: heartbeatInterval,
		HandshakeTimeoutSeconds:  handshakeTimeout,
		LogLevel:                 logLevel,
	}, nil
}
