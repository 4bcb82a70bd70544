package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/arthur-debert/treecalc/formats"
	"github.com/arthur-debert/treecalc/types"
)

// itemView is the printable form of an item
type itemView struct {
	ID        uint64   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Kind      string   `json:"kind" yaml:"kind"`
	Reduction string   `json:"reduction,omitempty" yaml:"reduction,omitempty"`
	Children  []string `json:"children,omitempty" yaml:"children,omitempty"`
	RefCount  uint64   `json:"ref_count" yaml:"ref_count"`
	Value     *float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

type valueView struct {
	ID    uint64  `json:"id" yaml:"id"`
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

func (cli *CLI) format() string {
	return strings.ToLower(cli.v.GetString("format"))
}

// render prints v in the configured format. text renders the text form and
// may be nil when the caller handles text output itself.
func (cli *CLI) render(v interface{}, text func() string) error {
	if cli.format() == "text" && text != nil {
		fmt.Fprint(cli.out, text())
		return nil
	}
	return cli.renderAs(cli.format(), v)
}

func (cli *CLI) renderAs(format string, v interface{}) error {
	codec, err := formats.Get(format)
	if err != nil {
		return NewValidationError("render output", "format", format,
			"Available formats: text, "+strings.Join(formats.List(), ", "))
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return WrapError("render output", types.WrapError("render", types.ErrIO, err))
	}
	_, err = cli.out.Write(data)
	return err
}

// itemViews converts items to views ordered by id
func itemViews(items []*types.Item) []itemView {
	names := make(map[uint64]string, len(items))
	for _, it := range items {
		names[it.ID] = it.Name
	}

	views := make([]itemView, 0, len(items))
	for _, it := range items {
		view := itemView{ID: it.ID, Name: it.Name, Kind: "leaf", RefCount: it.RefCount, Value: it.Value}
		if it.IsComposite() {
			view.Kind = "composite"
			view.Reduction = it.Expand.Reduction.String()
			view.Children = []string{}
			for _, child := range it.Expand.Children {
				name, ok := names[child]
				if !ok {
					name = fmt.Sprintf("<missing #%d>", child)
				}
				view.Children = append(view.Children, name)
			}
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

func itemTable(views []itemView) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tREDUCTION\tREFS\tVALUE\tCHILDREN")
	for _, v := range views {
		value := "-"
		if v.Value != nil {
			value = formats.FormatNumber(*v.Value)
		}
		reduction := v.Reduction
		if reduction == "" {
			reduction = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			v.ID, v.Name, v.Kind, reduction, v.RefCount, value, strings.Join(v.Children, ", "))
	}
	_ = w.Flush()
	return b.String()
}

func joinIDs(ids []uint64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ", ")
}
