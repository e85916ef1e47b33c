package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chartbot/internal/models"
	"chartbot/internal/tabular"
)

var columnsCmd = &cobra.Command{
	Use:   "columns FILE",
	Short: "List the columns of FILE and how each would be plotted",
	Args:  cobra.ExactArgs(1),
	RunE:  runColumns,
}

func runColumns(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(args[0])
	var ds *models.Dataset
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		ds, err = tabular.ParseXLSX(name, f)
	} else {
		ds, err = tabular.ParseReader(name, f)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d rows\n", color.New(color.Bold).Sprint(name), ds.NumRows())
	for i, kind := range tabular.Classify(ds) {
		fmt.Fprintf(out, "  %-24s %s\n", ds.Columns[i], kindColor(kind))
	}
	return nil
}

func kindColor(kind tabular.ColumnKind) string {
	switch kind {
	case tabular.KindKey:
		return color.CyanString(string(kind))
	case tabular.KindNumeric:
		return color.GreenString(string(kind))
	default:
		return color.YellowString(string(kind))
	}
}
