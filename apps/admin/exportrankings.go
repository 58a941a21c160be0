package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/triolingo/backend/core"
)

const defaultSheet = "Sheet1"

// exportRankings writes the general ranking, or the ranking of `lang`, to the Excel file `out`.
func (cli *commandLine) exportRankings(out, lang string, limit int) error {
	ctx := context.Background()
	lang = core.CleanString(lang)

	var (
		sheet  string
		header []interface{}
		rows   [][]interface{}
	)
	if lang == "" {
		rankings, err := cli.usrSvc.GeneralRanking(ctx, limit)
		if err != nil {
			return err
		}
		sheet = "General"
		header = []interface{}{"Position", "Name", "UID", "Points", "Completed lessons", "Correct answers", "Exercises"}
		for _, r := range rankings {
			rows = append(rows, []interface{}{
				r.Position, r.Name, r.UID, r.Points,
				r.Stats.CompletedLessons, r.Stats.TotalCorrectAnswers, r.Stats.TotalExercises,
			})
		}
	} else {
		rankings, err := cli.usrSvc.LanguageRanking(ctx, lang, limit)
		if err != nil {
			return err
		}
		sheet = "Language " + lang
		header = []interface{}{"Position", "Name", "UID", "Correct answers", "Completed lessons"}
		for _, r := range rankings {
			rows = append(rows, []interface{}{r.Position, r.Name, r.UID, r.Points, r.CompletedLessons})
		}
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName(defaultSheet, sheet)

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err = f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	return errors.Wrapf(f.SaveAs(out), "saving %s", out)
}
