package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wrale/wrale-adplay/internal/wadplayd/vast"
)

type decodeResult struct {
	Descriptor *vast.Descriptor     `json:"descriptor"`
	Selected   *vast.MediaCandidate `json:"selected,omitempty"`
}

func newDecodeCmd(opts *rootOptions) *cobra.Command {
	var prefs []string

	cmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Decode an ad descriptor offline",
		Long: `Decode a VAST document (or a JSON offer carrying one) and show the
media the player would select. Use - to read standard input.`,
		Example: `  wadplayctl decode ad.xml
  wadplayctl decode --prefer image/* ad.xml
  curl -s $OFFER_URL | wadplayctl decode -o json -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("error reading descriptor: %w", err)
			}

			desc, err := vast.Decode(data)
			if err != nil {
				return err
			}
			result := decodeResult{Descriptor: desc, Selected: desc.SelectBestMedia(prefs)}

			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), result)
			}
			return printDescriptor(cmd, result)
		},
	}

	cmd.Flags().StringSliceVar(&prefs, "prefer", []string{"video/mp4", "video/webm", "image/jpeg", "image/png"}, "MIME preference order")
	return cmd
}

func printDescriptor(cmd *cobra.Command, r decodeResult) error {
	d := r.Descriptor
	w := newTabWriter(cmd.OutOrStdout())

	fmt.Fprintf(w, "Version:\t%s\n", d.Version)
	fmt.Fprintf(w, "Ad:\t%s (%s)\n", d.Ad.ID, d.Ad.Title)
	if d.Ad.Wrapper {
		fmt.Fprintf(w, "Wrapper:\ttrue\n")
	}
	fmt.Fprintf(w, "Creative:\t%s, %.1fs\n", d.Creative.Type, d.Creative.DurationSeconds)
	fmt.Fprintf(w, "Deal:\t%s\n", dash(d.DealID))
	fmt.Fprintf(w, "Offer:\t%s\n", dash(d.OfferID))
	fmt.Fprintf(w, "Billing:\t%s\n", dash(d.BillingID))

	events := make([]string, 0, len(d.TrackingEvents))
	for event, urls := range d.TrackingEvents {
		events = append(events, fmt.Sprintf("%s(%d)", event, len(urls)))
	}
	sort.Strings(events)
	fmt.Fprintf(w, "Tracking:\t%s\n", strings.Join(events, " "))
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout())
	w = newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "\tMIME\tDELIVERY\tBITRATE\tSIZE\tURL")
	for i, m := range d.MediaCandidates {
		marker := ""
		if r.Selected == &d.MediaCandidates[i] {
			marker = "*"
		}
		bitrate := "-"
		if m.Bitrate != nil {
			bitrate = fmt.Sprintf("%d", *m.Bitrate)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dx%d\t%s\n", marker, m.MimeType, m.Delivery, bitrate, m.Width, m.Height, m.URL)
	}
	return w.Flush()
}
