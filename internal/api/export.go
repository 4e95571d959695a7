package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// ExportWorkbook renders the user's valuation as an xlsx workbook with one
// sheet of current holdings and one sheet of the valuation history. It goes
// through the same cache-or-sync path as GetValuation.
func (h *Handler) ExportWorkbook(c *gin.Context) {
	name := c.Param("name")

	valuation, err := h.tracker.SyncUser(c.Request.Context(), name, false, h.since(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const holdingsSheet = "Holdings"
	f.SetSheetName(f.GetSheetName(0), holdingsSheet)
	headers := []interface{}{"Item", "Count", "Price", "Sum", "Min", "Max"}
	_ = f.SetSheetRow(holdingsSheet, "A1", &headers)
	for i, holding := range valuation.Holdings {
		row := []interface{}{
			holding.Name, holding.Count, holding.Price,
			holding.Sum, holding.Min, holding.Max,
		}
		_ = f.SetSheetRow(holdingsSheet, fmt.Sprintf("A%d", i+2), &row)
	}

	const historySheet = "History"
	_, err = f.NewSheet(historySheet)
	if err == nil {
		headers := []interface{}{"Timestamp", "Currency", "Value"}
		_ = f.SetSheetRow(historySheet, "A1", &headers)
		for i, point := range valuation.Series {
			row := []interface{}{
				point.UpdatedAt.Format("2006-01-02 15:04:05"), point.Code, point.Value,
			}
			_ = f.SetSheetRow(historySheet, fmt.Sprintf("A%d", i+2), &row)
		}
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s-valuation.xlsx", name))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}
