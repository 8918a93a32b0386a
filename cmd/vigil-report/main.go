// Command vigil-report summarizes a recorded monitor session and renders its
// event timeline.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"vigil/internal/database"
	"vigil/internal/logging"
	"vigil/internal/report"
)

func main() {
	fs := pflag.NewFlagSet("vigil-report", pflag.ExitOnError)
	fs.String("db", "./vigil.db", "Event store path")
	fs.String("session", "", "Session ID (default: most recent)")
	fs.String("out", "timeline.png", "Output image (.png, .svg, .pdf)")
	fs.Bool("list", false, "List sessions and exit")
	fs.String("log-level", "info", "Log level")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("VIGIL_REPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)

	logger := logging.New(v.GetString("log-level"), os.Stderr, true)

	db, err := database.Open(v.GetString("db"), logging.Component(logger, "database"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open event store")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate event store")
	}

	if v.GetBool("list") {
		sessions, err := db.ListSessions(0)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to list sessions")
		}
		for _, s := range sessions {
			end := "running"
			if s.EndedAt != nil {
				end = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
			}
			fmt.Printf("%s  %s  %-8s  %-9s  %s\n", s.ID, s.StartedAt.Local().Format(time.DateTime), s.Mode, end, s.Source)
		}
		return
	}

	sess, err := pickSession(db, v.GetString("session"))
	if err != nil {
		logger.Fatal().Err(err).Msg("no session to report")
	}

	events, err := db.ListEvents(sess.ID, time.Time{}, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load events")
	}

	out := v.GetString("out")
	if err := report.Timeline(events, out); err != nil {
		logger.Fatal().Err(err).Str("session", sess.ID).Msg("failed to render timeline")
	}
	logger.Info().Str("session", sess.ID).Int("events", len(events)).Str("out", out).Msg("timeline written")

	end := time.Now()
	if sess.EndedAt != nil {
		end = *sess.EndedAt
	}
	durations := report.Durations(events, end)
	labels := make([]string, 0, len(durations))
	for l := range durations {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Printf("%-10s %s\n", l, durations[l].Round(time.Second))
	}
}

func pickSession(db *database.Database, id string) (*database.Session, error) {
	if id != "" {
		s, err := db.GetSession(id)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("session %s not found", id)
		}
		return s, nil
	}
	sessions, err := db.ListSessions(1)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("event store has no sessions")
	}
	return sessions[0], nil
}
