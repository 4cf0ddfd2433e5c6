package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/catalog"
	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

// ── list ────────────────────────────────────────────────────────────────

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local ledgers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := a.mgr.List()
			out := cmd.OutOrStdout()
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			var merr *multierror.Error
			if errors.As(err, &merr) {
				// Bad entries are reported but do not hide good ones.
				for _, e := range merr.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", e)
				}
				return nil
			}
			return err
		},
	}
}

// ── new / remove ────────────────────────────────────────────────────────

func (a *app) newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <name> <genesis-hash>",
		Short: "Create a ledger anchored at a genesis block hash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			genesis, err := types.HexToHash(args[1])
			if err != nil {
				return fmt.Errorf("genesis hash: %w", err)
			}
			if err := a.mgr.Create(args[0], genesis); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created ledger %s (genesis %s)\n", args[0], genesis)
			return nil
		},
	}
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a ledger and all its blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.mgr.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed ledger %s\n", args[0])
			return nil
		},
	}
}

// ── put / get ───────────────────────────────────────────────────────────

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <name> <file>",
		Short: "Store an encoded block read from file (- for stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if args[1] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[1])
			}
			if err != nil {
				return fmt.Errorf("read block: %w", err)
			}
			hash, err := a.mgr.Import(args[0], raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "get <name> <hash>",
		Short: "Show a stored block",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := types.HexToHash(args[1])
			if err != nil {
				return fmt.Errorf("block hash: %w", err)
			}
			out := cmd.OutOrStdout()
			if raw {
				data, err := a.mgr.GetRawBlock(args[0], hash)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, hex.EncodeToString(data))
				return nil
			}

			blk, err := a.mgr.GetBlock(args[0], hash)
			if err != nil {
				return err
			}
			h := blk.Header
			fmt.Fprintf(out, "Hash:       %s\n", blk.Hash())
			fmt.Fprintf(out, "Version:    %d\n", h.Version)
			fmt.Fprintf(out, "Height:     %d\n", h.Height)
			fmt.Fprintf(out, "Prev:       %s\n", h.PrevHash)
			fmt.Fprintf(out, "Body Hash:  %s\n", h.BodyHash)
			ts := time.Unix(int64(h.Timestamp), 0).UTC()
			fmt.Fprintf(out, "Timestamp:  %s\n", ts.Format("2006-01-02 15:04:05 UTC"))
			if len(h.Producer) > 0 {
				fmt.Fprintf(out, "Producer:   %x\n", h.Producer)
			}
			fmt.Fprintf(out, "Body:       %d bytes\n", len(blk.Body))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the stored bytes as hex")
	return cmd
}

// ── verify ──────────────────────────────────────────────────────────────

func (a *app) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <name>",
		Short: "Walk a ledger from its tip to genesis and check every block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := a.mgr.Verify(args[0], a.cfg.Verify.MaxBlocks)
			if outcome == nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ledger:   %s\n", args[0])
			fmt.Fprintf(out, "Genesis:  %s\n", outcome.Genesis)
			fmt.Fprintf(out, "Tip:      %s\n", outcome.Tip)
			fmt.Fprintf(out, "Visited:  %d\n", outcome.Visited)
			for _, f := range outcome.Faults {
				fmt.Fprintf(out, "Fault:    %s %v", f.Hash, f.Kind)
				if f.Err != nil {
					fmt.Fprintf(out, " (%v)", f.Err)
				}
				fmt.Fprintln(out)
			}

			switch {
			case err != nil:
				return err
			case outcome.Truncated:
				fmt.Fprintf(out, "Status:   not reached genesis after %d blocks\n", outcome.Visited)
			default:
				fmt.Fprintln(out, "Status:   valid")
			}
			return nil
		},
	}
	cmd.Flags().Int("max-blocks", 0, "stop after this many blocks (0 walks to genesis)")
	return cmd
}

// ── forward / tip ───────────────────────────────────────────────────────

func (a *app) forwardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forward <name> <hash>",
		Short: "Move a ledger's tip to a stored block",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := types.HexToHash(args[1])
			if err != nil {
				return fmt.Errorf("target hash: %w", err)
			}
			if err := a.mgr.Forward(args[0], target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tip:      %s\n", target)
			return nil
		},
	}
}

func (a *app) tipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tip <name>",
		Short: "Show a ledger's genesis and tip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := a.mgr.Tip(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Genesis:  %s\n", idx.Anchor())
			fmt.Fprintf(out, "Tip:      %s\n", idx.Tip())
			return nil
		},
	}
}

func (a *app) blocksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blocks <name>",
		Short: "List every block hash stored in a ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hashes, err := a.mgr.Blocks(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, h := range hashes {
				fmt.Fprintln(out, h)
			}
			return nil
		},
	}
}

// ── init-config ─────────────────────────────────────────────────────────

func (a *app) initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.cfgFile); err == nil {
				return fmt.Errorf("config file %s already exists", a.cfgFile)
			}
			if err := os.MkdirAll(a.cfg.RootDir, 0700); err != nil {
				return fmt.Errorf("%w: %w", catalog.ErrCannotInitialize, err)
			}
			if err := config.WriteDefaultConfig(a.cfgFile); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", a.cfgFile)
			return nil
		},
	}
}

// exitHint adds a pointer to the usual fix for common failures.
func exitHint(err error) string {
	switch {
	case errors.Is(err, catalog.ErrNoLedgers):
		return "create one with: klingnet-ledger new <name> <genesis-hash>"
	case errors.Is(err, chain.ErrGenesisNotFound):
		return "store the genesis block with: klingnet-ledger put <name> <file>"
	case errors.Is(err, chain.ErrForwardTargetMissing):
		return "store the block first with: klingnet-ledger put <name> <file>"
	}
	return ""
}
