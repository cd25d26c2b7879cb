package main

import (
	"log"
	"os"

	"github.com/hollowlog/archipelago-client/internal/clientapp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "client",
		Usage: "The multiworld session console client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server-host",
				Value: "localhost",
				Usage: "The host on which the multiworld server is accessible",
			},
			&cli.IntFlag{
				Name:  "server-port",
				Value: 38281,
				Usage: "The port the multiworld server is running on",
			},
			&cli.StringFlag{
				Name:     "slot",
				Usage:    "The slot name to authenticate as",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "game",
				Value: "Selaco",
				Usage: "The game name the slot was generated for",
			},
			&cli.StringFlag{
				Name:  "password",
				Value: "",
				Usage: "The room password, if the room has one",
			},
		},
		Action: func(cCtx *cli.Context) error {
			host := cCtx.String("server-host")
			port := cCtx.Int("server-port")
			slot := cCtx.String("slot")
			game := cCtx.String("game")
			password := cCtx.String("password")
			return clientapp.Run(host, port, slot, game, password)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
