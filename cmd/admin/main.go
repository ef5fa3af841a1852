package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"pairchat/backend/internal/config"
	"pairchat/backend/internal/models"
	"pairchat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

  ban <fingerprint> [hours] [reason]   ban a fingerprint (hours 0 = permanent)
  unban <fingerprint>                  lift a ban
  bans                                 list stored bans`

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg.Env)

	if cfg.DatabaseDSN == "" {
		log.Error("DATABASE_DSN is required")
		os.Exit(1)
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Error("failed to connect database", "err", err)
		os.Exit(1)
	}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	}
	storageSvc := storage.NewStorageService(db, rdb)

	if err := run(context.Background(), storageSvc, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, s *storage.Service, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%s", usage)
	}

	switch args[0] {
	case "ban":
		if len(args) < 2 {
			return fmt.Errorf("usage: admin ban <fingerprint> [hours] [reason]")
		}
		fp := args[1]
		duration := 24 * time.Hour
		rest := args[2:]
		if len(rest) > 0 {
			hours, err := strconv.Atoi(rest[0])
			if err != nil || hours < 0 {
				return fmt.Errorf("invalid duration %q: provide whole hours", rest[0])
			}
			duration = time.Duration(hours) * time.Hour
			rest = rest[1:]
		}
		reason := strings.Join(rest, " ")
		if reason == "" {
			reason = "banned by admin CLI"
		}
		if err := s.BanUser(ctx, fp, reason, duration); err != nil {
			return fmt.Errorf("ban %s: %w", fp, err)
		}
		fmt.Printf("%s has been banned.\n", fp)

	case "unban":
		if len(args) != 2 {
			return fmt.Errorf("usage: admin unban <fingerprint>")
		}
		if err := s.UnbanUser(ctx, args[1]); err != nil {
			return fmt.Errorf("unban %s: %w", args[1], err)
		}
		fmt.Printf("%s has been unbanned.\n", args[1])

	case "bans":
		bans, err := s.ListBans(ctx)
		if err != nil {
			return err
		}
		printBans(bans)

	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
	return nil
}

func printBans(bans []models.Ban) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINGERPRINT\tLEVEL\tEXPIRES\tACTIVE\tREASON")
	now := time.Now()
	for _, b := range bans {
		expires := "never"
		if b.ExpiresAt != nil {
			expires = b.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\n", b.Fingerprint, b.Level, expires, b.Active(now), b.Reason)
	}
	w.Flush()
}
