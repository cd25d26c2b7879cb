package main

import (
	"log"
	"os"

	"github.com/hollowlog/archipelago-client/internal/serverapp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "server",
		Usage: "A development multiworld room server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Value: 38281,
				Usage: "The port to run the room server on",
			},
			&cli.StringFlag{
				Name:  "game",
				Value: "Selaco",
				Usage: "The game name the room's slots are generated for",
			},
			&cli.StringSliceFlag{
				Name:  "slots",
				Value: cli.NewStringSlice("Player1"),
				Usage: "The slot names available in the room",
			},
		},
		Action: func(cCtx *cli.Context) error {
			port := cCtx.Int("port")
			game := cCtx.String("game")
			slots := cCtx.StringSlice("slots")
			return serverapp.Run(port, game, slots)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
