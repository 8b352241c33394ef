package main

import (
	"context"
	"dealchat/backend/internal/config"
	"dealchat/backend/internal/logging"
	"dealchat/backend/internal/models"
	"dealchat/backend/internal/storage"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const usage = `Usage: admin [flags] <command> [args]

Commands:
  migrate                     create or update the message tables
  history <room_id>           print the stored history of a room
  conversations <user_id>     list the rooms a user has written in
  room-id <user_a> <user_b>   print the room shared by two users
`

func main() {
	flags := pflag.NewFlagSet("admin", pflag.ContinueOnError)
	driver := flags.String("driver", "", "database driver (postgres or sqlite), overrides config")
	dsn := flags.String("dsn", "", "database DSN, overrides config")
	asJSON := flags.Bool("json", false, "print JSON instead of text")
	timeout := flags.Duration("timeout", 10*time.Second, "timeout for database queries")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage, "\nFlags:\n", flags.FlagUsages())
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	args := flags.Args()
	if len(args) < 1 {
		flags.Usage()
		os.Exit(1)
	}

	// room-id needs no database.
	if args[0] == "room-id" {
		if len(args) != 3 {
			fmt.Println("Usage: admin room-id <user_a> <user_b>")
			os.Exit(1)
		}
		fmt.Println(models.RoomID(args[1], args[2]))
		return
	}

	logging.Setup("warn", true)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *driver != "" {
		cfg.DBDriver = *driver
	}
	if *dsn != "" {
		cfg.DBDSN = *dsn
	}

	db, err := storage.Open(cfg.DBDriver, cfg.DBDSN, true)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	svc := storage.NewStorageService(db)
	defer svc.Close()
	chat := storage.NewChatStore(svc, nil) // No cache needed for admin CLI

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch args[0] {
	case "migrate":
		if err := storage.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		fmt.Println("Migrations applied.")
	case "history":
		if len(args) != 2 {
			fmt.Println("Usage: admin history <room_id>")
			os.Exit(1)
		}
		msgs, err := chat.History(ctx, models.NormalizeRoomID(args[1]))
		if err != nil {
			log.Fatal().Err(err).Msg("error loading history")
		}
		if *asJSON {
			printJSON(msgs)
			return
		}
		if len(msgs) == 0 {
			fmt.Printf("Room %s has no messages.\n", args[1])
			return
		}
		for _, m := range msgs {
			fmt.Printf("%s  %-12s %s\n", m.Timestamp.Local().Format(time.DateTime), m.Sender, m.Body)
		}
	case "conversations":
		if len(args) != 2 {
			fmt.Println("Usage: admin conversations <user_id>")
			os.Exit(1)
		}
		convs, err := chat.ConversationsFor(ctx, models.NormalizeUserID(args[1]))
		if err != nil {
			log.Fatal().Err(err).Msg("error loading conversations")
		}
		if *asJSON {
			printJSON(convs)
			return
		}
		for _, c := range convs {
			fmt.Printf("%-30s with %-12s %4d messages, last: %q\n", c.RoomID, c.Counterpart, c.MessageCount, c.LastMessage.Body)
		}
	default:
		fmt.Println("Unknown command")
		flags.Usage()
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal().Err(err).Msg("failed to encode output")
	}
}
