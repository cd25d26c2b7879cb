package clientapp

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hollowlog/archipelago-client/pkg/client"
	"github.com/hollowlog/archipelago-client/pkg/config"
	"github.com/hollowlog/archipelago-client/pkg/protocol"
	"github.com/hollowlog/archipelago-client/pkg/transport"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Run wires up a session and drives it from an interactive console
// loop. The session is pumped on this loop's ticker, console input
// only ever crosses into it as parsed command lines, so all session
// state stays owned by a single goroutine.
func Run(serverHost string, serverPort int, slotName string, gameName string, password string) error {
	err := godotenv.Load(".env.client")
	if err != nil {
		log.Fatal("Failed to load environment variables: ", err)
	}

	conf, err := config.LoadForClient()
	if err != nil {
		log.Fatal("Failed to load configuration for client: ", err)
	}

	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02T15:04:05.999999999Z07:00"
	customFormatter.FullTimestamp = true
	logger := logrus.New()
	logger.SetFormatter(customFormatter)
	logLevel, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	sessionTransport := transport.NewDefaultTransport(
		&transport.Params{
			HandshakeTimeout: time.Duration(conf.HandshakeTimeoutSeconds) * time.Second,
		},
		logger,
	)
	session := client.NewDefaultSession(
		&client.Params{
			ServerHost:           serverHost,
			ServerPort:           serverPort,
			GameName:             gameName,
			SlotName:             slotName,
			Password:             password,
			MaxReconnectAttempts: conf.MaxReconnectAttempts,
			RoomInfoTimeout:      time.Duration(conf.RoomInfoTimeoutSeconds) * time.Second,
			HeartbeatInterval:    time.Duration(conf.HeartbeatIntervalSeconds) * time.Second,
		},
		sessionTransport,
		logger,
	)

	session.SetItemReceivedCallback(func(itemID int64, locationID int64, playerSlot int) {
		fmt.Println(color.GreenString(
			"Received item %d from location %d (player %d)", itemID, locationID, playerSlot,
		))
	})
	session.SetMessageCallback(func(text string) {
		fmt.Println(color.CyanString("Server: %s", text))
	})

	lines := make(chan string)
	go readLines(lines)

	fmt.Println("Type \"help\" for the list of commands.")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastState := session.State()
	for {
		select {
		case <-ticker.C:
			session.Pump()
			if session.State() != lastState {
				lastState = session.State()
				fmt.Println(color.YellowString("State: %s", lastState))
			}
		case line, ok := <-lines:
			if !ok {
				session.Disconnect()
				return nil
			}
			quit := handleCommand(session, line)
			if quit {
				session.Disconnect()
				return nil
			}
		}
	}
}

func readLines(lines chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	close(lines)
}

func handleCommand(session client.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "connect":
		err := session.Connect()
		reportError(err)
	case "disconnect":
		session.Disconnect()
	case "check":
		locations, err := parseLocationIDs(fields[1:])
		if err != nil {
			fmt.Println(color.RedString("Error: %s", err))
			return false
		}
		reportError(session.SendLocationChecks(locations))
	case "scout":
		locations, err := parseLocationIDs(fields[1:])
		if err != nil {
			fmt.Println(color.RedString("Error: %s", err))
			return false
		}
		reportError(session.SendLocationScouts(locations))
	case "say":
		reportError(session.Say(strings.Join(fields[1:], " ")))
	case "status":
		status, err := parseStatus(fields[1:])
		if err != nil {
			fmt.Println(color.RedString("Error: %s", err))
			return false
		}
		reportError(session.StatusUpdate(status))
	case "ping":
		reportError(session.Bounce(map[string]interface{}{
			"time": time.Now().UnixNano(),
		}))
	case "sync":
		reportError(session.Sync())
	case "state":
		printState(session)
	case "help":
		printHelp()
	case "quit", "exit":
		return true
	default:
		fmt.Println(color.RedString("Unknown command %q, type \"help\" for the list of commands.", fields[0]))
	}
	return false
}

func printState(session client.Session) {
	fmt.Println(color.YellowString("State: %s", session.State()))
	if session.State() == client.StateAuthenticated {
		fmt.Printf(
			"Slot %d (%s) on team %d, %d items received, %d locations checked\n",
			session.SlotNumber(),
			session.SlotName(),
			session.TeamNumber(),
			session.ReceivedItemCount(),
			len(session.CheckedLocations()),
		)
	}
	if session.LastError() != nil {
		fmt.Println(color.RedString("Last error: %s", session.LastError()))
	}
	for _, reason := range session.RefusalReasons() {
		fmt.Println(color.RedString("Refusal reason: %s", friendlyRefusal(reason)))
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  connect                    connect and authenticate")
	fmt.Println("  disconnect                 drop the session")
	fmt.Println("  check <id> [id...]         send location checks")
	fmt.Println("  scout <id> [id...]         scout locations without checking")
	fmt.Println("  say <text>                 send a chat message")
	fmt.Println("  status <ready|playing|goal>")
	fmt.Println("  ping                       measure server round trip")
	fmt.Println("  sync                       re-request the item log")
	fmt.Println("  state                      print session state")
	fmt.Println("  quit")
}

func parseLocationIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one location id is required")
	}
	locations := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid location id", arg)
		}
		locations = append(locations, id)
	}
	return locations, nil
}

func parseStatus(args []string) (protocol.ClientStatus, error) {
	if len(args) == 0 {
		return protocol.StatusUnknown, fmt.Errorf("a status of ready, playing or goal is required")
	}
	switch strings.ToLower(args[0]) {
	case "ready":
		return protocol.StatusReady, nil
	case "playing":
		return protocol.StatusPlaying, nil
	case "goal":
		return protocol.StatusGoal, nil
	}
	return protocol.StatusUnknown, fmt.Errorf("%q is not a recognised status", args[0])
}

func friendlyRefusal(reason string) string {
	switch reason {
	case "InvalidSlot":
		return reason + " (the slot name is not part of this room)"
	case "InvalidGame":
		return reason + " (the room was not generated for this game)"
	case "InvalidPassword":
		return reason + " (the room password did not match)"
	}
	return reason
}

func reportError(err error) {
	if err != nil {
		fmt.Println(color.RedString("Error: %s", err))
	}
}
