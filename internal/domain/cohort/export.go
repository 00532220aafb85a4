package cohort

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/okian/boostcalc/internal/domain/model"
)

// CSVHeader is the column order written by WriteCSV.
var CSVHeader = []string{"Name", "Profile ID", "Badges Completed", "Games Completed", "Total Items", "Points", "Progress %"} //nolint:gochecknoglobals // fixed export layout

// WriteCSV exports samples, one row each, in the given order.
func WriteCSV(w io.Writer, samples []model.CohortSample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range samples {
		row := []string{
			s.Name,
			s.ProfileID,
			strconv.Itoa(s.Badges),
			strconv.Itoa(s.Games),
			strconv.Itoa(s.TotalItems),
			strconv.Itoa(s.Points),
			strconv.FormatFloat(s.Progress, 'f', 1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for %s: %w", s.ProfileID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
