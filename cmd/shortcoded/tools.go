package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gourl/shortcode/internal/config"
	"github.com/gourl/shortcode/internal/engine"
	"github.com/gourl/shortcode/internal/idgen"
	"github.com/gourl/shortcode/internal/repository"
	"github.com/gourl/shortcode/pkg/logger"
)

func newEncodeCmd() *cobra.Command {
	var pad int

	cmd := &cobra.Command{
		Use:   "encode <id>...",
		Short: "Print the base62 form of numeric IDs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				id, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q: %w", arg, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), idgen.EncodeWithPadding(id, pad))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pad, "pad", 0, "left-pad codes with '0' to this length")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <code>...",
		Short: "Print the numeric ID of base62 codes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				id, err := idgen.Decode(arg)
				if err != nil {
					return fmt.Errorf("invalid code %q: %w", arg, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

// newSampleCmd issues codes from an engine over an in-memory store, using
// the configured generation settings. Nothing is persisted.
func newSampleCmd() *cobra.Command {
	var (
		count  int
		length int
		stats  bool
	)

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate codes offline with the configured settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("count must be at least 1, got %d", count)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			// Offline sampling never advances shared counters.
			cfg.Engine.SequenceSource = config.SequenceMemory

			store := repository.NewMemoryStore()
			eng, err := engine.New(cfg.Engine, engine.Deps{
				Store: store,
				Log:   logger.Nop(),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				code, err := eng.GetCode(cmd.Context(), length)
				if err != nil {
					return err
				}
				if err := store.Insert(cmd.Context(), repository.CodeRecord{ShortCode: code}); err != nil {
					return err
				}
				fmt.Fprintln(out, code)
			}

			if stats {
				s := eng.GetStats()
				fmt.Fprintf(out, "issued=%d collisions=%d reserved_rejections=%d collision_rate=%.4f\n",
					s.CodesIssued, s.CollisionsObserved, s.ReservedRejections, s.CollisionRate)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "number of codes to generate")
	cmd.Flags().IntVarP(&length, "length", "l", 0, "code length (0 uses ENGINE_DEFAULT_LENGTH)")
	cmd.Flags().BoolVar(&stats, "stats", false, "print generation statistics after the codes")
	return cmd
}
