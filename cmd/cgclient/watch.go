package main

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/xid"
	"github.com/spf13/cobra"

	caveclient "github.com/sumiya-kuroda/CAVEclient"
	"github.com/sumiya-kuroda/CAVEclient/chunkedgraph"
)

type rootChange struct {
	Time       time.Time `json:"time"`
	Session    string    `json:"session"`
	Supervoxel uint64    `json:"supervoxel_id"`
	Root       uint64    `json:"root_id"`
	Previous   uint64    `json:"previous_root_id,omitempty"`
}

func newWatchRootCommand(c *cli) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "watch-root <supervoxel-id>",
		Short: "Poll a supervoxel and report every change of its root",
		Long: `watch-root looks up the root of a supervoxel at every interval and prints
a record whenever it differs from the previous lookup. Transient server
errors are logged and retried at the next interval.`,
		Args: cobra.ExactArgs(1),
		RunE: c.runE(func(cmd *cobra.Command, args []string) error {
			sv, err := parseID("supervoxel id", args[0])
			if err != nil {
				return err
			}
			cg, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			return c.watchRoot(cmd, cg, sv, count)
		}),
	}
	flags := cmd.Flags()
	flags.Duration("interval", caveclient.DefaultWatchInterval, "poll interval")
	flags.IntVar(&count, "count", 0, "stop after this many polls (0 polls until interrupted)")
	mustBindFlag(c.v, keyWatchInterval, envName(keyWatchInterval), flags.Lookup("interval"))
	return cmd
}

func (c *cli) watchRoot(cmd *cobra.Command, cg *chunkedgraph.Client, sv uint64, count int) error {
	ctx := cmd.Context()
	session := xid.New().String()
	logger := c.subsystem("watch").With("session", session, "supervoxel_id", sv)
	started := c.clock.Now()
	logger.Info("watch.start", "interval", c.cfg.WatchInterval.String())

	var (
		current    uint64
		lastChange time.Time
	)
	for poll := 1; ; poll++ {
		now := c.clock.Now()
		reqCtx := chunkedgraph.WithCorrelationID(ctx, session+"-"+strconv.Itoa(poll))
		root, err := cg.RootID(reqCtx, sv, chunkedgraph.WithTimestamp(now))
		switch {
		case err == nil:
			if root != current {
				if current != 0 {
					logger.Info("watch.root.changed", "previous", current, "root", root, "stable_for", humanize.RelTime(lastChange, now, "", ""))
				}
				if err := c.emit(cmd, rootChange{Time: now, Session: session, Supervoxel: sv, Root: root, Previous: current}); err != nil {
					return err
				}
				current = root
				lastChange = now
			}
		case ctx.Err() != nil:
			return nil
		case transient(err):
			logger.Warn("watch.poll.failed", "poll", poll, "error", err)
		default:
			return err
		}
		if count > 0 && poll >= count {
			logger.Info("watch.stop", "polls", poll, "ran_for", humanize.RelTime(started, c.clock.Now(), "", ""))
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(c.cfg.WatchInterval):
		}
	}
}

// transient reports failures worth retrying at the next poll: transport
// errors and 5xx responses.
func transient(err error) bool {
	var httpErr *chunkedgraph.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	if httpErr.Err != nil {
		return !errors.Is(httpErr.Err, context.Canceled)
	}
	return httpErr.Status >= 500
}
