package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/eventcollector/internal/events"
	"github.com/alfredjeanlab/eventcollector/internal/model"
	"github.com/alfredjeanlab/eventcollector/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Print lifecycle notifications as collector runs publish them",
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.NATSURL == "" {
			return &model.ConfigError{Owner: "nats_url", Msg: "is required to watch notifications"}
		}
		ctx := cmd.Context()

		sub, err := events.NewNATSSubscriber(cfg.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats reconnected")
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(events.TopicAll)
		if err != nil {
			return err
		}
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return nil
			case n, ok := <-ch:
				if !ok {
					return nil
				}
				printNotification(os.Stdout, n)
			}
		}
	},
}

func printNotification(w io.Writer, n events.Notification) {
	if jsonOutput {
		fmt.Fprintf(w, "{\"topic\":%q,\"data\":%s}\n", n.Topic, n.Data)
		return
	}
	fmt.Fprintln(w, formatNotification(n))
}

// formatNotification renders one notification as a single human-readable line.
func formatNotification(n events.Notification) string {
	switch n.Topic {
	case events.TopicEventRetrieved:
		var e events.EventRetrieved
		if err := json.Unmarshal(n.Data, &e); err == nil && e.Event != nil {
			return fmt.Sprintf("%s %s %s from %s", ui.RenderMuted(e.RunID), ui.RenderAccent("retrieved"), e.Event.ShortDescription(), e.Origin)
		}
	case events.TopicEventProcessed:
		var e events.EventProcessed
		if err := json.Unmarshal(n.Data, &e); err == nil {
			verb := "processed"
			if e.Replay {
				verb = "replayed"
			}
			line := fmt.Sprintf("%s %s event %d (%s) from %s: %s", ui.RenderMuted(e.RunID), verb, e.EventID, e.Identification, e.Origin, ui.RenderState(e.State, string(e.State)))
			if e.Info != "" {
				line += " " + ui.RenderMuted(e.Info)
			}
			return line
		}
	case events.TopicEventObsoleted:
		var e events.EventObsoleted
		if err := json.Unmarshal(n.Data, &e); err == nil {
			return fmt.Sprintf("%s %s %d error events of %s [%d, %d)", ui.RenderMuted(e.RunID), ui.RenderState(model.StateObsolete, "obsoleted"), e.Count, e.Identification, e.StartID, e.SuccessID)
		}
	}
	return fmt.Sprintf("%s %s", n.Topic, n.Data)
}
