package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reoring/bimgraph"
	"github.com/reoring/bimgraph/codec"
	"github.com/reoring/bimgraph/ifc"
	"github.com/reoring/bimgraph/mesh"
)

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate RECORDS",
		Short: "Load a record file and validate every record against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.loadGraph(cmd.Context(), args[0], true)
			if iss, ok := bimgraph.AsIssues(err); ok {
				for _, it := range iss {
					fmt.Fprintf(a.out, "%s %s %s",
						a.style.err.Render(it.Code),
						a.style.muted.Render(it.Path),
						it.Message)
					fmt.Fprintln(a.out)
				}
				return &exitError{code: 1, err: fmt.Errorf("%d issue(s) in %s", len(iss), args[0])}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %d entities conform to %s\n", a.style.ok.Render("ok"), g.Len(), a.def.Name())
			return nil
		},
	}
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect RECORDS KEY",
		Short: "Show one entity by global id or #id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.loadGraph(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			e, err := lookup(g, args[1])
			if err != nil {
				return err
			}
			return a.printEntity(e)
		},
	}
}

func (a *app) printEntity(e *bimgraph.Entity) error {
	w := a.out
	fmt.Fprintln(w, a.style.title.Render(e.String()))
	fmt.Fprintf(w, "  %s %s\n", a.style.muted.Render("inheritance"), strings.Join(e.Inheritance(), " > "))
	parent, err := e.Parent()
	if err != nil {
		return err
	}
	if parent != nil {
		fmt.Fprintf(w, "  %s %s\n", a.style.muted.Render("parent"), parent)
	}
	for _, name := range e.AllAttributeNames() {
		v, err := e.Get(name)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		if l, ok := v.([]any); ok && len(l) == 0 {
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", a.style.typ.Render(name), formatValue(v))
	}
	if a.def.Has(ifc.TypeRelDefinesByProperties) {
		psets, err := ifc.PropertySets(e)
		if err != nil {
			return err
		}
		for _, name := range sortedKeys(psets) {
			fmt.Fprintf(w, "  %s\n", a.style.title.Render(name))
			for _, k := range sortedKeys(psets[name]) {
				fmt.Fprintf(w, "    %s %s\n", a.style.typ.Render(k), formatValue(psets[name][k]))
			}
		}
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case *bimgraph.Entity:
		return x.String()
	case []*bimgraph.Entity:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return fmt.Sprintf("%q", x)
	}
	return fmt.Sprint(v)
}

func (a *app) queryCmd() *cobra.Command {
	var typeName, name string
	var count bool
	cmd := &cobra.Command{
		Use:   "query RECORDS",
		Short: "List entities by type and/or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.loadGraph(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			var found []*bimgraph.Entity
			switch {
			case typeName != "":
				if !a.def.Has(typeName) {
					return &bimgraph.NotFoundError{Kind: "type", Key: typeName}
				}
				found = g.GetEntitiesByType(typeName)
			case name != "":
				found = g.GetEntitiesByName(name)
			default:
				found = g.GetAllEntities()
			}
			if typeName != "" && name != "" {
				kept := found[:0]
				for _, e := range found {
					if e.Name() == name {
						kept = append(kept, e)
					}
				}
				found = kept
			}
			if count {
				fmt.Fprintln(a.out, len(found))
				return nil
			}
			for _, e := range found {
				fmt.Fprintf(a.out, "%s %s\n", a.style.muted.Render(bimgraph.Ref{ID: e.ID()}.String()), e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "entity type, subtypes included")
	cmd.Flags().StringVar(&name, "name", "", "exact entity name")
	cmd.Flags().BoolVar(&count, "count", false, "print only the number of matches")
	return cmd
}

func (a *app) hierarchyCmd() *cobra.Command {
	var depth int
	var rootKey string
	cmd := &cobra.Command{
		Use:   "hierarchy RECORDS",
		Short: "Print the spatial containment hierarchy",
		Long: `Print the containment hierarchy below --root, or below every entity that
contains others without being contained itself. A negative --depth prints
the whole tree.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.loadGraph(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			var tops []*bimgraph.Entity
			if rootKey != "" {
				e, err := lookup(g, rootKey)
				if err != nil {
					return err
				}
				tops = []*bimgraph.Entity{e}
			} else if tops, err = roots(g); err != nil {
				return err
			}
			for _, top := range tops {
				var buf bytes.Buffer
				if err := top.PrintSpatialHierarchy(&buf, depth); err != nil {
					return err
				}
				a.writeHierarchy(&buf)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 4, "maximum depth below the root")
	cmd.Flags().StringVar(&rootKey, "root", "", "global id or #id of the root entity")
	return cmd
}

func (a *app) writeHierarchy(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		label := strings.TrimLeft(line, "-")
		prefix := line[:len(line)-len(label)]
		fmt.Fprintln(a.out, a.style.muted.Render(prefix)+label)
	}
}

func (a *app) exportCmd() *cobra.Command {
	var (
		rootKey, format, output string
		pretty, shallow         bool
		include, ignore         []string
	)
	cmd := &cobra.Command{
		Use:   "export RECORDS",
		Short: "Write the graph (or one entity) as a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = a.cfg.Output.Format
			}
			f, err := codec.Lookup(format)
			if err != nil {
				return err
			}
			g, err := a.loadGraph(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			opt := bimgraph.DictOpt{Include: include, Ignore: ignore, Shallow: shallow}
			data, err := a.encode(g, rootKey, f, opt, pretty || a.cfg.Output.Pretty)
			if err != nil {
				return err
			}
			return a.emit(output, data, f != codec.MsgPack)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&rootKey, "root", "", "export only this entity (global id or #id)")
	fl.StringVar(&format, "format", "", "json, yaml or msgpack (default from config)")
	fl.StringVarP(&output, "output", "o", "", "output file (default stdout)")
	fl.BoolVar(&pretty, "pretty", false, "indent JSON output")
	fl.BoolVar(&shallow, "shallow", false, "write nested entities as references")
	fl.StringSliceVar(&include, "include", nil, "attributes to keep")
	fl.StringSliceVar(&ignore, "ignore", nil, "attributes to drop")
	return cmd
}

func (a *app) encode(g *bimgraph.Graph, rootKey string, f codec.Format, opt bimgraph.DictOpt, pretty bool) ([]byte, error) {
	if rootKey != "" {
		e, err := lookup(g, rootKey)
		if err != nil {
			return nil, err
		}
		if f == codec.JSON {
			return e.ToJSON(bimgraph.JSONOpt{DictOpt: opt, Pretty: pretty})
		}
		tree, err := e.ToDict(opt)
		if err != nil {
			return nil, err
		}
		return f.Marshal(tree)
	}
	if f == codec.JSON {
		return g.ToJSON(bimgraph.JSONOpt{DictOpt: opt, Pretty: pretty})
	}
	tree, err := g.ToDict(opt)
	if err != nil {
		return nil, err
	}
	return f.Marshal(tree)
}

// emit writes data to output, or to stdout followed by a newline when text
// is true.
func (a *app) emit(output string, data []byte, text bool) error {
	if output != "" {
		return os.WriteFile(output, data, 0o644)
	}
	if _, err := a.out.Write(data); err != nil {
		return err
	}
	if text && !bytes.HasSuffix(data, []byte("\n")) {
		_, err := io.WriteString(a.out, "\n")
		return err
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// formatFor picks a codec from the file extension, falling back to the
// configured output format.
func (a *app) formatFor(path, flag string) (codec.Format, error) {
	if flag != "" {
		return codec.Lookup(flag)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return codec.JSON, nil
	case ".yaml", ".yml":
		return codec.YAML, nil
	case ".msgpack", ".mpk":
		return codec.MsgPack, nil
	}
	return codec.Lookup(a.cfg.Output.Format)
}

func (a *app) importCmd() *cobra.Command {
	var format, save string
	cmd := &cobra.Command{
		Use:   "import DOCUMENT",
		Short: "Decode a document and report what it holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.formatFor(args[0], format)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			g, root, err := a.decode(f, data)
			if err != nil {
				return err
			}
			if root != nil {
				fmt.Fprintf(a.out, "root %s\n", root)
			}
			fmt.Fprintf(a.out, "%s %d entities (%s %s)\n", a.style.ok.Render("imported"), g.Len(), a.def.Name(), f.Name())
			if save == "" {
				return nil
			}
			s, err := a.openStore("")
			if err != nil {
				return err
			}
			defer s.Close()
			info, err := s.Save(cmd.Context(), save, g)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "saved snapshot %s (%d bytes)\n", info.Name, info.Bytes)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json, yaml or msgpack (default from extension)")
	cmd.Flags().StringVar(&save, "save", "", "also store the graph as a snapshot with this name")
	return cmd
}

// decode reads either a whole-graph document or a single entity document.
func (a *app) decode(f codec.Format, data []byte) (*bimgraph.Graph, *bimgraph.Entity, error) {
	tree, err := f.Unmarshal(data)
	if err != nil {
		return nil, nil, err
	}
	m, _ := tree.(map[string]any)
	if _, whole := m[bimgraph.KeyEntities]; whole {
		if f == codec.JSON {
			g, err := bimgraph.GraphFromJSON(a.def, data)
			return g, nil, err
		}
		g, err := bimgraph.GraphFromDict(a.def, tree, bimgraph.LoadOpt{Logger: a.logger})
		return g, nil, err
	}
	var e *bimgraph.Entity
	if f == codec.JSON {
		e, err = bimgraph.FromJSON(a.def, data)
	} else {
		e, err = bimgraph.FromDict(a.def, tree)
	}
	if err != nil {
		return nil, nil, err
	}
	return e.Graph(), e, nil
}

func (a *app) hashCmd() *cobra.Command {
	var precision int
	cmd := &cobra.Command{
		Use:   "hash MESH",
		Short: "Print the SHA-256 content digest of a mesh (or a list of meshes)",
		Long: `Hash a mesh file: {"vertices":[[x,y,z],...],"edges":[[a,b],...],"faces":[[i,j,k],...]}
or a JSON/YAML list of them. Coordinates are truncated to --precision decimals;
-1 hashes exact values.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("precision") {
				precision = a.cfg.Mesh.Precision
			}
			meshes, err := readMeshes(args[0])
			if err != nil {
				return err
			}
			digests, err := mesh.DigestAll(cmd.Context(), meshes, precision)
			if err != nil {
				return err
			}
			for _, d := range digests {
				fmt.Fprintln(a.out, d)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&precision, "precision", 3, "decimals kept per coordinate")
	return cmd
}

func readMeshes(path string) ([]mesh.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	isYAML := strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
	unmarshal := json.Unmarshal
	if isYAML {
		unmarshal = yaml.Unmarshal
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || (isYAML && trimmed[0] == '-')) {
		var ms []mesh.Mesh
		if err := unmarshal(data, &ms); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return ms, nil
	}
	var m mesh.Mesh
	if err := unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return []mesh.Mesh{m}, nil
}

func (a *app) jsonschemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jsonschema TYPE",
		Short: "Print the JSON Schema of a type's attribute map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.def.JSONSchema(args[0])
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return err
			}
			return a.emit("", b, true)
		},
	}
}
