package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reoring/bimgraph"
	"github.com/reoring/bimgraph/codec"
	"github.com/reoring/bimgraph/store"
)

func (a *app) openStore(dir string) (*store.Store, error) {
	if dir == "" {
		dir = a.cfg.Store.Dir
	}
	cfg := store.DefaultConfig(dir)
	cfg.SyncWrites = a.cfg.Store.SyncWrites
	cfg.Logger = a.logger
	return store.Open(cfg)
}

func (a *app) storeCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage graph snapshots in the local store",
		Long: `Snapshots are whole-graph documents kept in an embedded database under
the configured store directory.

Examples:
  bimgraph store save model.jsonl --name v1
  bimgraph store list
  bimgraph store load v1 --format yaml
  bimgraph store delete v1`,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "store directory (default from config)")

	var name string
	save := &cobra.Command{
		Use:   "save RECORDS",
		Short: "Load a record file and store it as a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.loadGraph(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			s, err := a.openStore(dir)
			if err != nil {
				return err
			}
			defer s.Close()
			info, err := s.Save(cmd.Context(), name, g)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s: %d entities, %d bytes\n", a.style.ok.Render("saved"), info.Name, info.Entities, info.Bytes)
			return nil
		},
	}
	save.Flags().StringVar(&name, "name", "", "snapshot name")
	_ = save.MarkFlagRequired("name")

	var format string
	var pretty bool
	load := &cobra.Command{
		Use:   "load NAME",
		Short: "Write a stored snapshot as a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = a.cfg.Output.Format
			}
			f, err := codec.Lookup(format)
			if err != nil {
				return err
			}
			s, err := a.openStore(dir)
			if err != nil {
				return err
			}
			defer s.Close()
			g, err := s.Load(cmd.Context(), args[0], a.def, bimgraph.LoadOpt{Logger: a.logger})
			if err != nil {
				return err
			}
			data, err := a.encode(g, "", f, bimgraph.DictOpt{}, pretty || a.cfg.Output.Pretty)
			if err != nil {
				return err
			}
			return a.emit("", data, f != codec.MsgPack)
		},
	}
	load.Flags().StringVar(&format, "format", "", "json, yaml or msgpack (default from config)")
	load.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore(dir)
			if err != nil {
				return err
			}
			defer s.Close()
			infos, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, in := range infos {
				fmt.Fprintf(a.out, "%s %s %s %d entities %d bytes %s\n",
					a.style.title.Render(in.Name),
					in.Schema, in.Version, in.Entities, in.Bytes,
					a.style.muted.Render(in.SavedAt.Format(time.RFC3339)))
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(dir)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s\n", a.style.ok.Render("deleted"), args[0])
			return nil
		},
	}

	cmd.AddCommand(save, load, list, del)
	return cmd
}
