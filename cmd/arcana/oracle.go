package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chris/arcana/internal/oracle"
	"github.com/chris/arcana/internal/persona"
	"github.com/chris/arcana/internal/prompt"
	"github.com/chris/arcana/internal/tarot"
)

func init() {
	var (
		week, preview   int
		intention       string
		events, weather bool
		hint            string
	)
	oracleCmd := &cobra.Command{
		Use:   "oracle [PAST PRESENT POTENTIAL]",
		Short: "One stateless reading, outside any journey",
		Example: `  arcana oracle --week 20 "The Fool" "The Star" "Ace of Cups"
  arcana oracle --intention "rest"`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 3 {
				return prompt.ErrCardCount
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp("cli")
			if err != nil {
				return err
			}
			defer a.Close()

			cards := args
			if len(cards) == 0 {
				cards = tarot.Names(tarot.Standard().Draw(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))))
			}
			consent := prompt.Consent{CurrentEvents: events, WeatherTone: weather}
			if hint != "" {
				consent.CalendarHint = &hint
			}
			res, err := a.oracle.Read(cmd.Context(), oracle.Request{
				Cards:       cards,
				Week:        week,
				Intention:   intention,
				Consent:     consent,
				PreviewWeek: preview,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s / %s / %s  (week %d, %s)\n\n%s\n", cards[0], cards[1], cards[2], res.Snapshot.Week, res.Snapshot.Act, res.Text)
			return nil
		},
	}
	f := oracleCmd.Flags()
	f.IntVarP(&week, "week", "w", 1, "journey week")
	f.IntVar(&preview, "preview-week", 0, "use this week's persona instead")
	f.StringVarP(&intention, "intention", "i", "", "intention for the reading")
	f.BoolVar(&events, "events", false, "allow current-events motifs")
	f.BoolVar(&weather, "weather", false, "allow weather tone")
	f.StringVar(&hint, "hint", "", "calendar hint")
	rootCmd.AddCommand(oracleCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "persona [WEEK]",
		Short: "Print the act table, or one week's persona snapshot as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if len(args) == 0 {
				return enc.Encode(persona.Acts())
			}
			w, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("week must be a number: %w", err)
			}
			snap, err := oracle.PreviewWeek(w)
			if err != nil {
				return err
			}
			return enc.Encode(snap)
		},
	})
}
