package explorer

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func queueUpdate(app *tview.Application, fn func()) {
	if app == nil {
		fn()
		return
	}

	if err := app.QueueUpdateDraw(fn); err != nil {
		fn()
	}
}

func newModal(content tview.Primitive, width, height int) tview.Primitive {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 10
	}

	return tview.NewGrid().
		SetRows(0, height, 0).
		SetColumns(0, width, 0).
		AddItem(content, 1, 1, 1, 1, 0, 0, true)
}

func fillGrid(view *tview.Table, snap snapshot) {
	view.Clear()
	for i, col := range snap.Columns {
		cell := tview.NewTableCell(col).SetSelectable(false).SetAlign(tview.AlignCenter).SetAttributes(tcell.AttrBold)
		view.SetCell(0, i, cell)
	}
	for r, row := range snap.Rows {
		for c, val := range row {
			view.SetCell(r+1, c, tview.NewTableCell(val).SetExpansion(1))
		}
	}
}
