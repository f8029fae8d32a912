package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/slotbot/internal/config"
)

// --- ask ---

type chatReply struct {
	Response   string `json:"response"`
	SessionID  string `json:"session_id"`
	StopReason string `json:"stop_reason"`
	Iterations int    `json:"iterations"`
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send a message to the booking assistant",
	Long: `Send a message to the booking assistant.

Examples:
  slotbot ask "book a sync tomorrow at 2pm"
  slotbot ask "what's free on friday?"
  slotbot ask --session 3f0c... "move it to 4"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		reply, err := ask(cmd.Context(), client, sessionID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply.Response)
		if sessionID == "" {
			printStep("session %s (pass --session to continue it)", reply.SessionID)
		}
		return nil
	},
}

func ask(ctx context.Context, client *apiClient, sessionID, text string) (chatReply, error) {
	resp, err := client.post(ctx, "/chat", map[string]string{
		"question":   text,
		"session_id": sessionID,
	})
	if err != nil {
		return chatReply{}, err
	}
	var reply chatReply
	if err := decodeJSON(resp, &reply); err != nil {
		return chatReply{}, err
	}
	return reply, nil
}

func init() {
	askCmd.Flags().String("session", "", "continue an existing session")
}

// --- calendar ---

type calendarReply struct {
	Date      string          `json:"date"`
	WeekStart string          `json:"week_start"`
	Available []string        `json:"available"`
	Events    []calendarEntry `json:"events"`
	Days      []struct {
		Date    string          `json:"date"`
		Entries []calendarEntry `json:"entries"`
	} `json:"days"`
	Message string `json:"message"`
}

type calendarEntry struct {
	Time  string `json:"time"`
	Title string `json:"title"`
}

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Inspect and change the calendar directly",
	Long: `Inspect and change the calendar without going through the assistant.
Dates and times accept the same forms as chat: "tomorrow", "friday", "2pm".`,
}

var calendarAvailabilityCmd = &cobra.Command{
	Use:   "availability <date>",
	Short: "List free slots on a date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return calendarGet(cmd, "/calendar/availability/"+url.PathEscape(args[0]), func(r calendarReply) {
			if len(r.Available) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no free slots\n", r.Date)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", colorize(colorBold, r.Date), strings.Join(r.Available, ", "))
		})
	},
}

var calendarDayCmd = &cobra.Command{
	Use:   "day <date>",
	Short: "Show the bookings of one day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return calendarGet(cmd, "/calendar/day/"+url.PathEscape(args[0]), func(r calendarReply) {
			printDay(cmd.OutOrStdout(), r.Date, r.Events)
		})
	},
}

var calendarWeekCmd = &cobra.Command{
	Use:   "week <date>",
	Short: "Show the bookings of the week containing a date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/calendar/week/" + url.PathEscape(args[0])
		if ics, _ := cmd.Flags().GetBool("ics"); ics {
			return calendarICS(cmd, path+"/ics")
		}
		return calendarGet(cmd, path, func(r calendarReply) {
			if len(r.Days) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Week of %s: nothing booked\n", r.WeekStart)
				return
			}
			for _, d := range r.Days {
				printDay(cmd.OutOrStdout(), d.Date, d.Entries)
			}
		})
	},
}

var calendarBookCmd = &cobra.Command{
	Use:   "book <date> <time> [title]",
	Short: "Book a slot",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"date": args[0], "time": args[1]}
		if len(args) == 3 {
			body["title"] = args[2]
		}
		return calendarMutate(func(c *apiClient) (calendarReply, error) {
			resp, err := c.post(cmd.Context(), "/calendar/events", body)
			if err != nil {
				return calendarReply{}, err
			}
			var r calendarReply
			return r, decodeJSON(resp, &r)
		})
	},
}

var calendarDeleteCmd = &cobra.Command{
	Use:   "delete <date> <time>",
	Short: "Delete the booking at a slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/calendar/events/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1])
		return calendarMutate(func(c *apiClient) (calendarReply, error) {
			resp, err := c.delete(cmd.Context(), path)
			if err != nil {
				return calendarReply{}, err
			}
			var r calendarReply
			return r, decodeJSON(resp, &r)
		})
	},
}

var calendarMoveCmd = &cobra.Command{
	Use:   "move <date> <old-time> <new-time>",
	Short: "Move a booking to another slot on the same day",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"date": args[0], "old_time": args[1], "new_time": args[2]}
		return calendarMutate(func(c *apiClient) (calendarReply, error) {
			resp, err := c.post(cmd.Context(), "/calendar/events/move", body)
			if err != nil {
				return calendarReply{}, err
			}
			var r calendarReply
			return r, decodeJSON(resp, &r)
		})
	},
}

func calendarGet(cmd *cobra.Command, path string, render func(calendarReply)) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.get(cmd.Context(), path)
	if err != nil {
		return err
	}
	var r calendarReply
	if err := decodeJSON(resp, &r); err != nil {
		return err
	}
	render(r)
	return nil
}

func calendarMutate(call func(*apiClient) (calendarReply, error)) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	r, err := call(client)
	if err != nil {
		return err
	}
	printSuccess("%s", r.Message)
	return nil
}

func calendarICS(cmd *cobra.Command, path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.get(cmd.Context(), path)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return decodeJSON(resp, &struct{}{})
	}
	defer resp.Body.Close()
	_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
	return err
}

func printDay(w io.Writer, date string, entries []calendarEntry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "%s: nothing booked\n", date)
		return
	}
	fmt.Fprintln(w, colorize(colorBold, date))
	for _, e := range entries {
		fmt.Fprintf(w, "  %8s  %s\n", e.Time, e.Title)
	}
}

func init() {
	calendarWeekCmd.Flags().Bool("ics", false, "print the week as an iCalendar feed")
	calendarCmd.AddCommand(calendarAvailabilityCmd)
	calendarCmd.AddCommand(calendarDayCmd)
	calendarCmd.AddCommand(calendarWeekCmd)
	calendarCmd.AddCommand(calendarBookCmd)
	calendarCmd.AddCommand(calendarDeleteCmd)
	calendarCmd.AddCommand(calendarMoveCmd)
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Inspect the interaction log",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/interactions?limit=%d", limit))
		if err != nil {
			return err
		}

		var interactions []struct {
			ID         string `json:"id"`
			CreatedAt  string `json:"created_at"`
			UserQuery  string `json:"user_query"`
			StopReason string `json:"stop_reason"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			query := ix.UserQuery
			if len(query) > 80 {
				query = query[:80] + "..."
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-16s %s\n",
				colorize(colorCyan, shortID(ix.ID)),
				ix.CreatedAt,
				ix.StopReason,
				query,
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction with its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/interactions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var interaction map[string]any
		if err := decodeJSON(resp, &interaction); err != nil {
			return err
		}
		// The transcript is stored as a JSON string; expand it for display.
		if raw, ok := interaction["transcript"].(string); ok {
			var entries any
			if json.Unmarshal([]byte(raw), &entries) == nil {
				interaction["transcript"] = entries
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(interaction)
	},
}

var interactionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an interaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/interactions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted interaction %s", args[0])
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
	interactionsCmd.AddCommand(interactionsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
